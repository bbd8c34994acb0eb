package messaging

import (
	"context"
	"strings"
	"time"

	"github.com/feelwell/feelwell/internal/domain/identity"
	"github.com/feelwell/feelwell/internal/platform/apperr"
	"github.com/feelwell/feelwell/internal/platform/auth"
	"github.com/feelwell/feelwell/internal/platform/websocket"
)

// UserLookup resolves message parties by id or email.
type UserLookup interface {
	Get(ctx context.Context, id string) (*identity.User, error)
	GetByEmail(ctx context.Context, email string) (*identity.User, error)
}

type Service struct {
	messages DirectMessageRepository
	users    UserLookup
	events   *websocket.Notifier
	now      func() time.Time
}

func NewService(messages DirectMessageRepository, users UserLookup, events *websocket.Notifier) *Service {
	return &Service{messages: messages, users: users, events: events, now: time.Now}
}

// Send delivers a message from in.SenderID to in.ReceiverID. Both parties must
// exist; nothing is stored otherwise.
func (s *Service) Send(ctx context.Context, in SendInput) (*DirectMessage, error) {
	if strings.TrimSpace(in.ReceiverID) == "" {
		return nil, apperr.Validation("receiverId is required")
	}
	if err := s.checkSender(ctx, in); err != nil {
		return nil, err
	}
	receiver, err := s.party(ctx, in.ReceiverID, "receiver")
	if err != nil {
		return nil, err
	}
	return s.send(ctx, in, receiver)
}

// SendByEmail is Send with the receiver resolved by email address.
func (s *Service) SendByEmail(ctx context.Context, in SendInput) (*DirectMessage, error) {
	email := identity.NormalizeEmail(in.ReceiverEmail)
	if email == "" {
		return nil, apperr.Validation("receiverEmail is required")
	}
	if err := s.checkSender(ctx, in); err != nil {
		return nil, err
	}
	receiver, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("receiver")
		}
		return nil, err
	}
	return s.send(ctx, in, receiver)
}

func (s *Service) checkSender(ctx context.Context, in SendInput) error {
	if strings.TrimSpace(in.SenderID) == "" {
		return apperr.Validation("senderId is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return apperr.Validation("content is required")
	}
	if !auth.IsSelfOrRole(ctx, in.SenderID) {
		return apperr.Forbidden("cannot send messages as another user")
	}
	return nil
}

func (s *Service) send(ctx context.Context, in SendInput, receiver *identity.User) (*DirectMessage, error) {
	sender, err := s.party(ctx, in.SenderID, "sender")
	if err != nil {
		return nil, err
	}

	senderType := strings.ToLower(strings.TrimSpace(in.SenderType))
	if senderType == "" {
		senderType = sender.Role
	}
	if !validSenderTypes[senderType] {
		return nil, apperr.Validation("invalid senderType: %s", senderType)
	}
	messageType := strings.ToLower(strings.TrimSpace(in.MessageType))
	if messageType == "" {
		messageType = TypeDirect
	}
	if !validMessageTypes[messageType] {
		return nil, apperr.Validation("invalid messageType: %s", in.MessageType)
	}

	m := &DirectMessage{
		SenderID:     sender.ID,
		SenderType:   senderType,
		SenderName:   displayName(sender),
		ReceiverID:   receiver.ID,
		ReceiverName: displayName(receiver),
		Content:      in.Content,
		MessageType:  messageType,
		ReplyTo:      strings.TrimSpace(in.ReplyTo),
		Urgent:       in.Urgent,
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, err
	}
	s.notify(ctx, websocket.EventDirectMessageSent, m)
	return m, nil
}

func displayName(u *identity.User) string {
	if u.IsDoctor() {
		return identity.DoctorDisplayName(u.Name)
	}
	return identity.DisplayName(u.Name)
}

func (s *Service) party(ctx context.Context, id, what string) (*identity.User, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound(what)
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID string) ([]*DirectMessage, error) {
	return s.listForParty(ctx, patientID)
}

func (s *Service) ListForPatientByEmail(ctx context.Context, email string) ([]*DirectMessage, error) {
	email = identity.NormalizeEmail(email)
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	patient, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("patient")
		}
		return nil, err
	}
	return s.listForParty(ctx, patient.ID)
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID string) ([]*DirectMessage, error) {
	return s.listForParty(ctx, doctorID)
}

func (s *Service) listForParty(ctx context.Context, userID string) ([]*DirectMessage, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	if !auth.IsSelfOrRole(ctx, userID) {
		return nil, apperr.Forbidden("cannot read another user's messages")
	}
	return s.messages.ListForParty(ctx, userID)
}

// ListBetween returns the conversation between a and b, oldest first.
func (s *Service) ListBetween(ctx context.Context, a, b string) ([]*DirectMessage, error) {
	if a == "" || b == "" {
		return nil, apperr.Validation("sender and receiver ids are required")
	}
	if !auth.IsSelfOrRole(ctx, a) && !auth.IsSelfOrRole(ctx, b) {
		return nil, apperr.Forbidden("cannot read another user's messages")
	}
	return s.messages.ListBetween(ctx, a, b)
}

// MarkRead flags the message as read. Marking an already read message keeps
// the original readAt.
func (s *Service) MarkRead(ctx context.Context, id string) (*DirectMessage, error) {
	m, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.IsSelfOrRole(ctx, m.ReceiverID) {
		return nil, apperr.Forbidden("only the receiver can mark a message as read")
	}
	if m.Read {
		return m, nil
	}
	now := s.now().UTC()
	if err := s.messages.MarkRead(ctx, id, now); err != nil {
		return nil, err
	}
	m.Read, m.ReadAt = true, &now
	s.events.Notify(ctx, websocket.NewEvent(websocket.EventDirectMessageRead,
		websocket.UserTopic(m.SenderID), "DirectMessage", m.ID, m))
	return m, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	m, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !auth.IsSelfOrRole(ctx, m.SenderID) && !auth.IsSelfOrRole(ctx, m.ReceiverID) {
		return apperr.Forbidden("not a party to this message")
	}
	if err := s.messages.Delete(ctx, id); err != nil {
		return err
	}
	s.notify(ctx, websocket.EventDirectMessageDelete, m)
	return nil
}

func (s *Service) notify(ctx context.Context, eventType string, m *DirectMessage) {
	s.events.Notify(ctx,
		websocket.NewEvent(eventType, websocket.UserTopic(m.ReceiverID), "DirectMessage", m.ID, m),
		websocket.NewEvent(eventType, websocket.UserTopic(m.SenderID), "DirectMessage", m.ID, m),
	)
}
