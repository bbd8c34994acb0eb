package messaging

import (
	"context"
	"time"
)

type DirectMessageRepository interface {
	Create(ctx context.Context, m *DirectMessage) error
	GetByID(ctx context.Context, id string) (*DirectMessage, error)
	// ListForParty returns messages the user sent or received, newest first.
	ListForParty(ctx context.Context, userID string) ([]*DirectMessage, error)
	// ListBetween returns messages exchanged by a and b in either direction,
	// oldest first.
	ListBetween(ctx context.Context, a, b string) ([]*DirectMessage, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}
