package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/feelwell/feelwell/internal/domain/identity"
	"github.com/feelwell/feelwell/internal/platform/apperr"
	"github.com/feelwell/feelwell/internal/platform/auth"
	"github.com/feelwell/feelwell/internal/platform/llm"
	"github.com/feelwell/feelwell/internal/platform/websocket"
)

// UserLookup resolves patients and doctors.
type UserLookup interface {
	Get(ctx context.Context, id string) (*identity.User, error)
}

// CareScope lists the patients a doctor has appointments with.
type CareScope interface {
	PatientIDsForDoctor(ctx context.Context, doctorID string) ([]string, error)
}

// Assistant produces assistant replies. It never fails; on upstream errors
// it answers with a fallback text.
type Assistant interface {
	Respond(ctx context.Context, history []llm.Message) llm.Reply
}

type Service struct {
	convs     ConversationRepository
	users     UserLookup
	scope     CareScope
	assistant Assistant
	thinking  ThinkingConfig
	events    *websocket.Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(convs ConversationRepository, users UserLookup, scope CareScope, assistant Assistant,
	thinking ThinkingConfig, events *websocket.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		convs:     convs,
		users:     users,
		scope:     scope,
		assistant: assistant,
		thinking:  thinking,
		events:    events,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) timestamp() time.Time { return s.now().UTC() }

func (s *Service) view(ctx context.Context, c *Conversation) *Conversation {
	return s.thinking.ForViewer(c, auth.PrimaryRole(ctx))
}

func (s *Service) viewAll(ctx context.Context, convs []*Conversation) []*Conversation {
	out := make([]*Conversation, 0, len(convs))
	for _, c := range convs {
		out = append(out, s.view(ctx, c))
	}
	return out
}

func (s *Service) lookup(ctx context.Context, id, what string) (*identity.User, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound(what)
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) doctor(ctx context.Context, id string) (*identity.User, error) {
	d, err := s.lookup(ctx, id, "doctor")
	if err != nil {
		return nil, err
	}
	if !d.IsDoctor() {
		return nil, apperr.Validation("user %s is not a doctor", id)
	}
	return d, nil
}

// CreateConversation starts a conversation for the patient, seeded with a
// single assistant welcome message.
func (s *Service) CreateConversation(ctx context.Context, in CreateInput) (*Conversation, error) {
	patientID := strings.TrimSpace(in.PatientID)
	if patientID == "" {
		patientID = strings.TrimSpace(in.UserID)
	}
	if patientID == "" {
		return nil, apperr.Validation("patientId is required")
	}
	if !auth.IsSelfOrRole(ctx, patientID, auth.RoleDoctor) {
		return nil, apperr.Forbidden("cannot start a conversation for another patient")
	}
	if _, err := s.lookup(ctx, patientID, "patient"); err != nil {
		return nil, err
	}
	doctorID := strings.TrimSpace(in.DoctorID)
	if doctorID != "" {
		if _, err := s.doctor(ctx, doctorID); err != nil {
			return nil, err
		}
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = DefaultTitle
	}
	welcome := strings.TrimSpace(in.InitialMessage)
	if welcome == "" {
		welcome = DefaultWelcome
	}

	now := s.timestamp()
	conv := &Conversation{
		PatientID:     patientID,
		DoctorID:      doctorID,
		AppointmentID: strings.TrimSpace(in.AppointmentID),
		Title:         title,
		Messages:      []Message{NewAssistantMessage(welcome, "", now)},
		Status:        StatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	conv.refresh()
	if err := s.convs.Create(ctx, conv); err != nil {
		return nil, err
	}

	events := []websocket.Event{
		websocket.NewEvent(websocket.EventConversationCreated, websocket.UserTopic(patientID), "Conversation", conv.ID, conv),
	}
	if doctorID != "" {
		events = append(events, websocket.NewEvent(websocket.EventConversationCreated,
			websocket.UserTopic(doctorID), "Conversation", conv.ID, conv))
	}
	s.events.Notify(ctx, events...)
	return s.view(ctx, conv), nil
}

// load fetches a conversation the caller may access: its patient, its
// doctor, or an admin.
func (s *Service) load(ctx context.Context, id string) (*Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("conversation id is required")
	}
	conv, err := s.convs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if auth.IsSelfOrRole(ctx, conv.PatientID) {
		return conv, nil
	}
	if conv.DoctorID != "" && auth.UserIDFromContext(ctx) == conv.DoctorID {
		return conv, nil
	}
	if conv.DoctorID == "" && auth.HasRole(ctx, auth.RoleDoctor) {
		return conv, nil
	}
	return nil, apperr.Forbidden("not a participant in this conversation")
}

// CanAccessConversation reports whether the caller may read the conversation.
// The websocket hub uses it to authorize conversation topics.
func (s *Service) CanAccessConversation(ctx context.Context, id string) bool {
	_, err := s.load(ctx, id)
	return err == nil
}

func (s *Service) save(ctx context.Context, conv *Conversation) error {
	conv.UpdatedAt = s.timestamp()
	return s.convs.Save(ctx, conv)
}

func (s *Service) keepThinking(thinking string) string {
	if !s.thinking.SaveThinkingHistory {
		return ""
	}
	return strings.TrimSpace(thinking)
}

// AppendMessage adds a message to the conversation. With AutoReply on a user
// message the assistant's answer is appended in the same save.
func (s *Service) AppendMessage(ctx context.Context, id string, in AppendInput) (*Conversation, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apperr.Validation("content is required")
	}
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if role == "" {
		role = RoleUser
	}
	if !validMessageRoles[role] {
		return nil, apperr.Validation("invalid role: %s", in.Role)
	}

	conv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.IsWritable() {
		return nil, apperr.Conflict("conversation is %s", conv.Status)
	}

	now := s.timestamp()
	var msg Message
	switch role {
	case RoleUser:
		msg = NewUserMessage(content, now)
	case RoleAssistant:
		msg = NewAssistantMessage(content, s.keepThinking(in.Thinking), now)
	default:
		msg = NewSystemMessage(content, now)
	}
	added := []Message{msg}

	if in.AutoReply && role == RoleUser {
		reply := s.assistant.Respond(ctx, history(conv.Messages, msg))
		if reply.Fallback {
			s.logger.Warn().Str("conversation_id", conv.ID).Msg("assistant reply fell back to apology")
		}
		added = append(added, NewAssistantMessage(reply.Content, s.keepThinking(reply.Thinking), s.timestamp()))
	}

	conv.Append(added...)
	if err := s.save(ctx, conv); err != nil {
		return nil, err
	}
	s.events.Notify(ctx, websocket.NewEvent(websocket.EventMessageAppended,
		websocket.ConversationTopic(conv.ID), "Conversation", conv.ID, withoutThinking(added)))
	return s.view(ctx, conv), nil
}

// history converts stored messages plus next into the gateway's chat format.
// System notices are not part of the dialogue and are left out.
func history(stored []Message, next Message) []llm.Message {
	out := make([]llm.Message, 0, len(stored)+1)
	for _, m := range stored {
		if m.Role != RoleSystem {
			out = append(out, llm.Message{Role: m.Role, Content: m.Content})
		}
	}
	return append(out, llm.Message{Role: next.Role, Content: next.Content})
}

// AppendDoctorResponse adds a doctor's reply and assigns the doctor when the
// conversation has none.
func (s *Service) AppendDoctorResponse(ctx context.Context, id, doctorID, content string) (*Conversation, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("content is required")
	}
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		doctorID = auth.UserIDFromContext(ctx)
	}
	if !auth.IsSelfOrRole(ctx, doctorID) {
		return nil, apperr.Forbidden("cannot respond as another doctor")
	}
	if _, err := s.doctor(ctx, doctorID); err != nil {
		return nil, err
	}

	conv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.IsWritable() {
		return nil, apperr.Conflict("conversation is %s", conv.Status)
	}
	if conv.DoctorID == "" {
		conv.DoctorID = doctorID
	}
	msg := NewDoctorMessage(doctorID, content, s.timestamp())
	conv.Append(msg)
	if err := s.save(ctx, conv); err != nil {
		return nil, err
	}
	s.events.Notify(ctx,
		websocket.NewEvent(websocket.EventMessageAppended, websocket.ConversationTopic(conv.ID), "Conversation", conv.ID, []Message{msg}),
		websocket.NewEvent(websocket.EventMessageAppended, websocket.UserTopic(conv.PatientID), "Conversation", conv.ID, []Message{msg}),
	)
	return s.view(ctx, conv), nil
}

// SetStatus changes the conversation status. Closing appends one system
// message and records who closed it; closing twice is a conflict.
func (s *Service) SetStatus(ctx context.Context, id, doctorID, status string) (*Conversation, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !validConversationStatuses[status] {
		return nil, apperr.Validation("invalid status: %s", status)
	}
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		doctorID = auth.UserIDFromContext(ctx)
	}
	if !auth.IsSelfOrRole(ctx, doctorID) {
		return nil, apperr.Forbidden("cannot change status as another doctor")
	}

	conv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyStatus(ctx, conv, status, doctorID); err != nil {
		return nil, err
	}
	if err := s.save(ctx, conv); err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, conv)
	return s.view(ctx, conv), nil
}

func (s *Service) applyStatus(ctx context.Context, conv *Conversation, status, actorID string) error {
	if status != StatusClosed {
		conv.Status = status
		conv.ClosedAt, conv.ClosedBy = nil, ""
		return nil
	}
	if conv.Status == StatusClosed {
		return apperr.Conflict("conversation is already closed")
	}

	now := s.timestamp()
	conv.Append(NewSystemMessage(s.closingNotice(ctx, actorID), now))
	conv.Status = StatusClosed
	conv.ClosedAt = &now
	conv.ClosedBy = actorID
	return nil
}

func (s *Service) closingNotice(ctx context.Context, actorID string) string {
	if actorID != "" {
		if u, err := s.users.Get(ctx, actorID); err == nil && u.IsDoctor() {
			return fmt.Sprintf("This conversation has been closed by %s.", identity.DoctorDisplayName(u.Name))
		}
	}
	return "This conversation has been closed."
}

func (s *Service) notifyStatus(ctx context.Context, conv *Conversation) {
	eventType := websocket.EventConversationUpdated
	if conv.Status == StatusClosed {
		eventType = websocket.EventConversationClosed
	}
	s.events.Notify(ctx,
		websocket.NewEvent(eventType, websocket.ConversationTopic(conv.ID), "Conversation", conv.ID,
			map[string]interface{}{"status": conv.Status, "closedBy": conv.ClosedBy}),
		websocket.NewEvent(eventType, websocket.UserTopic(conv.PatientID), "Conversation", conv.ID,
			map[string]interface{}{"status": conv.Status, "closedBy": conv.ClosedBy}),
	)
}

func (s *Service) Get(ctx context.Context, id string) (*Conversation, error) {
	conv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, conv), nil
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Conversation, error) {
	conv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, apperr.Validation("title must not be empty")
		}
		conv.Title = title
	}
	if in.DoctorID != nil {
		doctorID := strings.TrimSpace(*in.DoctorID)
		if doctorID != "" {
			if _, err := s.doctor(ctx, doctorID); err != nil {
				return nil, err
			}
		}
		conv.DoctorID = doctorID
	}
	if in.AppointmentID != nil {
		conv.AppointmentID = strings.TrimSpace(*in.AppointmentID)
	}
	if in.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*in.Status))
		if !validConversationStatuses[status] {
			return nil, apperr.Validation("invalid status: %s", *in.Status)
		}
		if status != conv.Status {
			if !auth.HasRole(ctx, auth.RoleDoctor) {
				return nil, apperr.Forbidden("only doctors may change conversation status")
			}
			if err := s.applyStatus(ctx, conv, status, auth.UserIDFromContext(ctx)); err != nil {
				return nil, err
			}
		}
	}

	if err := s.save(ctx, conv); err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, conv)
	return s.view(ctx, conv), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	conv, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.convs.Delete(ctx, conv.ID); err != nil {
		return err
	}
	s.events.Notify(ctx,
		websocket.NewEvent(websocket.EventConversationDeleted, websocket.ConversationTopic(conv.ID), "Conversation", conv.ID, nil),
		websocket.NewEvent(websocket.EventConversationDeleted, websocket.UserTopic(conv.PatientID), "Conversation", conv.ID, nil),
	)
	return nil
}

// ListByUser returns the patient's conversations, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Conversation, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	if !auth.IsSelfOrRole(ctx, userID) {
		return nil, apperr.Forbidden("cannot list another user's conversations")
	}
	convs, err := s.convs.ListByPatient(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.viewAll(ctx, convs), nil
}

// ListByDoctor returns conversations assigned to the doctor and those of
// patients with a non-cancelled appointment with the doctor, newest first.
func (s *Service) ListByDoctor(ctx context.Context, doctorID string) ([]*Conversation, error) {
	if doctorID == "" {
		return nil, apperr.Validation("doctor id is required")
	}
	if !auth.IsSelfOrRole(ctx, doctorID) {
		return nil, apperr.Forbidden("cannot list another doctor's conversations")
	}
	var patients []string
	if s.scope != nil {
		ids, err := s.scope.PatientIDsForDoctor(ctx, doctorID)
		if err != nil {
			return nil, err
		}
		patients = ids
	}
	convs, err := s.convs.ListForDoctor(ctx, doctorID, patients)
	if err != nil {
		return nil, err
	}
	return s.viewAll(ctx, convs), nil
}

// RepairReport summarizes a RepairRoles run.
type RepairReport struct {
	Scanned       int `json:"scanned"`
	Updated       int `json:"updated"`
	MessagesFixed int `json:"messagesFixed"`
}

// RepairRoles assigns roles to stored messages that lack a valid one. Only
// conversations that change are written, and updatedAt is left untouched.
func (s *Service) RepairRoles(ctx context.Context, dryRun bool) (RepairReport, error) {
	var report RepairReport
	err := s.convs.ForEach(ctx, func(conv *Conversation) error {
		report.Scanned++
		msgs, fixed := NormalizeRoles(conv.Messages)
		if fixed == 0 {
			return nil
		}
		report.Updated++
		report.MessagesFixed += fixed
		if dryRun {
			return nil
		}
		conv.Messages = msgs
		conv.refresh()
		if err := s.convs.Save(ctx, conv); err != nil {
			return fmt.Errorf("save conversation %s: %w", conv.ID, err)
		}
		s.logger.Info().Str("conversation_id", conv.ID).Int("fixed", fixed).Msg("repaired message roles")
		return nil
	})
	return report, err
}
