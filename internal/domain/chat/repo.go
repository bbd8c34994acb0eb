package chat

import "context"

// ConversationRepository stores conversations as whole documents: Save
// replaces the stored conversation, messages included.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id string) (*Conversation, error)
	Save(ctx context.Context, c *Conversation) error
	Delete(ctx context.Context, id string) error
	// ListByPatient returns the patient's conversations, newest updatedAt first.
	ListByPatient(ctx context.Context, patientID string) ([]*Conversation, error)
	// ListForDoctor returns conversations assigned to the doctor or owned by
	// one of patientIDs, newest updatedAt first.
	ListForDoctor(ctx context.Context, doctorID string, patientIDs []string) ([]*Conversation, error)
	// ForEach calls fn for every stored conversation.
	ForEach(ctx context.Context, fn func(*Conversation) error) error
}
