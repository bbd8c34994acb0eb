package messaging

import "time"

const (
	SenderPatient = "patient"
	SenderDoctor  = "doctor"
)

var validSenderTypes = map[string]bool{
	SenderPatient: true, SenderDoctor: true,
}

const (
	TypeDirect      = "direct"
	TypeTest        = "test"
	TypeAutomated   = "automated"
	TypeAppointment = "appointment"
	TypeMedical     = "medical"
)

var validMessageTypes = map[string]bool{
	TypeDirect: true, TypeTest: true, TypeAutomated: true, TypeAppointment: true, TypeMedical: true,
}

// DirectMessage is a message between a patient and a doctor. Only the read
// flag changes after it is sent.
type DirectMessage struct {
	ID           string     `json:"_id"`
	SenderID     string     `json:"senderId"`
	SenderType   string     `json:"senderType"`
	SenderName   string     `json:"senderName"`
	ReceiverID   string     `json:"receiverId"`
	ReceiverName string     `json:"receiverName"`
	Content      string     `json:"content"`
	Read         bool       `json:"read"`
	ReadAt       *time.Time `json:"readAt,omitempty"`
	MessageType  string     `json:"messageType"`
	ReplyTo      string     `json:"replyTo,omitempty"`
	Urgent       bool       `json:"urgent"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// SendInput is a send request. ReceiverEmail is used by SendByEmail.
type SendInput struct {
	SenderID      string `json:"senderId"`
	ReceiverID    string `json:"receiverId"`
	ReceiverEmail string `json:"receiverEmail"`
	Content       string `json:"content"`
	SenderType    string `json:"senderType"`
	MessageType   string `json:"messageType"`
	ReplyTo       string `json:"replyTo"`
	Urgent        bool   `json:"urgent"`
}
