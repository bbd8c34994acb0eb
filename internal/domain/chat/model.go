package chat

import (
	"time"
	"unicode/utf8"
)

const (
	StatusOpen       = "open"
	StatusInProgress = "in-progress"
	StatusClosed     = "closed"
	StatusArchived   = "archived"
)

var validConversationStatuses = map[string]bool{
	StatusOpen: true, StatusInProgress: true, StatusClosed: true, StatusArchived: true,
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

var validMessageRoles = map[string]bool{
	RoleUser: true, RoleAssistant: true, RoleSystem: true,
}

const (
	DefaultTitle   = "New Conversation"
	DefaultWelcome = "Hello! I'm your FeelWell health assistant. How can I help you today?"
	previewLimit   = 100
)

// Message is a single entry of a conversation.
type Message struct {
	Role       string    `json:"role" bson:"role"`
	Content    string    `json:"content" bson:"content"`
	Thinking   string    `json:"thinking,omitempty" bson:"thinking,omitempty"`
	FromDoctor bool      `json:"fromDoctor" bson:"fromDoctor"`
	DoctorID   string    `json:"doctorId,omitempty" bson:"doctorId,omitempty"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

func NewUserMessage(content string, at time.Time) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: at}
}

func NewAssistantMessage(content, thinking string, at time.Time) Message {
	return Message{Role: RoleAssistant, Content: content, Thinking: thinking, Timestamp: at}
}

// NewDoctorMessage is a doctor's reply. Doctors speak in the assistant role.
func NewDoctorMessage(doctorID, content string, at time.Time) Message {
	return Message{Role: RoleAssistant, Content: content, FromDoctor: true, DoctorID: doctorID, Timestamp: at}
}

func NewSystemMessage(content string, at time.Time) Message {
	return Message{Role: RoleSystem, Content: content, Timestamp: at}
}

// Conversation is a chat thread owned by one patient.
type Conversation struct {
	ID            string     `json:"_id"`
	PatientID     string     `json:"patientId"`
	DoctorID      string     `json:"doctorId,omitempty"`
	AppointmentID string     `json:"appointmentId,omitempty"`
	Title         string     `json:"title"`
	Messages      []Message  `json:"messages"`
	LastMessage   string     `json:"lastMessage"`
	MessageCount  int        `json:"messageCount"`
	Status        string     `json:"status"`
	ClosedAt      *time.Time `json:"closedAt,omitempty"`
	ClosedBy      string     `json:"closedBy,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// IsWritable reports whether messages may still be appended.
func (c *Conversation) IsWritable() bool {
	return c.Status != StatusClosed && c.Status != StatusArchived
}

// Append adds msgs and keeps messageCount and lastMessage in step. The first
// assistant reply moves an open conversation to in-progress.
func (c *Conversation) Append(msgs ...Message) {
	for _, m := range msgs {
		c.Messages = append(c.Messages, m)
		if m.Role == RoleAssistant && c.Status == StatusOpen {
			c.Status = StatusInProgress
		}
	}
	c.refresh()
}

func (c *Conversation) refresh() {
	c.MessageCount = len(c.Messages)
	if n := len(c.Messages); n > 0 {
		c.LastMessage = Preview(c.Messages[n-1].Content)
	} else {
		c.LastMessage = ""
	}
}

// Preview truncates content to its first 100 characters followed by "...".
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLimit {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLimit]) + "..."
}

// CreateInput starts a conversation. UserID is accepted as an alias for
// PatientID.
type CreateInput struct {
	PatientID      string `json:"patientId"`
	UserID         string `json:"userId"`
	Title          string `json:"title"`
	InitialMessage string `json:"initialMessage"`
	DoctorID       string `json:"doctorId"`
	AppointmentID  string `json:"appointmentId"`
}

// AppendInput adds a message. With AutoReply on a user message the assistant
// answers in the same write.
type AppendInput struct {
	Content   string `json:"content"`
	Role      string `json:"role"`
	Thinking  string `json:"thinking"`
	AutoReply bool   `json:"autoReply"`
}

// UpdateInput holds the fields Update may change. Nil fields are left as is.
type UpdateInput struct {
	Title         *string `json:"title"`
	Status        *string `json:"status"`
	DoctorID      *string `json:"doctorId"`
	AppointmentID *string `json:"appointmentId"`
}
