package identity

import "context"

// UserRepository persists users. Create returns a Conflict error when the
// email is already registered; lookups return NotFound for unknown users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListByRole(ctx context.Context, role string) ([]*User, error)
}
