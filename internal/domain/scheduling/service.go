package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/feelwell/feelwell/internal/domain/identity"
	"github.com/feelwell/feelwell/internal/platform/apperr"
	"github.com/feelwell/feelwell/internal/platform/auth"
	"github.com/feelwell/feelwell/internal/platform/websocket"
)

const referenceAttempts = 5

// UserLookup resolves the parties of an appointment.
type UserLookup interface {
	Get(ctx context.Context, id string) (*identity.User, error)
}

type Service struct {
	appointments AppointmentRepository
	users        UserLookup
	loc          *time.Location
	events       *websocket.Notifier
	now          func() time.Time
}

func NewService(appts AppointmentRepository, users UserLookup, loc *time.Location, events *websocket.Notifier) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{appointments: appts, users: users, loc: loc, events: events, now: time.Now}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	patientID := strings.TrimSpace(in.PatientID)
	if patientID == "" {
		patientID = strings.TrimSpace(in.UserID)
	}
	doctorID := strings.TrimSpace(in.DoctorID)
	if patientID == "" || doctorID == "" {
		return nil, apperr.Validation("patientId and doctorId are required")
	}
	if in.Date == "" || in.Time == "" {
		return nil, apperr.Validation("date and time are required")
	}
	if !auth.IsSelfOrRole(ctx, patientID, auth.RoleDoctor) {
		return nil, apperr.Forbidden("cannot book an appointment for another patient")
	}

	patient, err := s.lookup(ctx, patientID, "patient")
	if err != nil {
		return nil, err
	}
	doctor, err := s.lookup(ctx, doctorID, "doctor")
	if err != nil {
		return nil, err
	}
	if !doctor.IsDoctor() {
		return nil, apperr.Validation("user %s is not a doctor", doctorID)
	}

	at, err := ScheduledAt(in.Date, in.Time, s.loc)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	status := StatusScheduled
	if in.Status != "" {
		if !validAppointmentStatuses[in.Status] {
			return nil, apperr.Validation("invalid status: %s", in.Status)
		}
		status = in.Status
	}
	if !canSetStatus(ctx, status) {
		return nil, apperr.Forbidden("only doctors may book an appointment as " + status)
	}

	a := &Appointment{
		PatientID:   patientID,
		PatientName: identity.DisplayName(patient.Name),
		DoctorID:    doctorID,
		DoctorName:  identity.DoctorDisplayName(doctor.Name),
		Date:        strings.TrimSpace(in.Date),
		Time:        strings.TrimSpace(in.Time),
		ScheduledAt: at,
		VisitType:   strings.TrimSpace(in.VisitType),
		Notes:       in.Notes,
	}
	s.applyStatus(a, status)
	if err := s.checkAvailable(ctx, a); err != nil {
		return nil, err
	}
	if err := s.insert(ctx, a); err != nil {
		return nil, err
	}
	s.notify(ctx, websocket.EventAppointmentCreated, a)
	return a, nil
}

// insert stores a with a fresh reference number, retrying on collisions.
func (s *Service) insert(ctx context.Context, a *Appointment) error {
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		a.ReferenceNumber = NewReferenceNumber(s.now())
		err := s.appointments.Create(ctx, a)
		if !errors.Is(err, ErrDuplicateReference) {
			return err
		}
	}
	return apperr.Conflict("could not allocate a unique reference number")
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

func (s *Service) checkAvailable(ctx context.Context, a *Appointment) error {
	if a.Status == StatusCancelled {
		return nil
	}
	busy, err := s.appointments.ActiveAt(ctx, a.DoctorID, a.ScheduledAt, a.ID)
	if err != nil {
		return err
	}
	if busy {
		return apperr.Conflict("doctor already has an appointment at %s %s", a.Date, a.Time)
	}
	return nil
}

// applyStatus sets the status and stamps the matching timestamp. A repeated
// confirmation keeps the first confirmedAt.
func (s *Service) applyStatus(a *Appointment, status string) {
	now := s.now().UTC()
	if status == StatusConfirmed && a.ConfirmedAt == nil {
		a.ConfirmedAt = &now
	}
	if status == StatusCancelled && a.Status != StatusCancelled {
		a.CancelledAt = &now
	}
	a.Status = status
}

func (s *Service) Get(ctx context.Context, id string) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(ctx, a) {
		return nil, apperr.Forbidden("not a party to this appointment")
	}
	return a, nil
}

// canSetStatus reports whether the caller may move an appointment to status.
// Patients may book and cancel; confirming and completing are for doctors.
func canSetStatus(ctx context.Context, status string) bool {
	return status == StatusScheduled || status == StatusCancelled || auth.HasRole(ctx, auth.RoleDoctor)
}

func canAccess(ctx context.Context, a *Appointment) bool {
	return auth.IsSelfOrRole(ctx, a.PatientID) || auth.IsSelfOrRole(ctx, a.DoctorID)
}

// ListQuery is the raw query string form of a List request.
type ListQuery struct {
	UserID    string
	DoctorID  string
	Status    string
	StartDate string
	EndDate   string
}

// List returns appointments sorted by scheduledAt. Non-admin callers only see
// their own appointments. EndDate is inclusive.
func (s *Service) List(ctx context.Context, q ListQuery) ([]*Appointment, error) {
	f := ListFilter{PatientID: q.UserID, DoctorID: q.DoctorID, Status: q.Status}
	if f.Status != "" && !validAppointmentStatuses[f.Status] {
		return nil, apperr.Validation("invalid status: %s", f.Status)
	}
	if q.StartDate != "" {
		from, err := ParseDate(q.StartDate, s.loc)
		if err != nil {
			return nil, apperr.Validation("%s", err.Error())
		}
		from = from.UTC()
		f.From = &from
	}
	if q.EndDate != "" {
		end, err := ParseDate(q.EndDate, s.loc)
		if err != nil {
			return nil, apperr.Validation("%s", err.Error())
		}
		to := end.AddDate(0, 0, 1).UTC()
		f.To = &to
	}

	if !auth.HasRole(ctx, auth.RoleAdmin) {
		self := auth.UserIDFromContext(ctx)
		switch {
		case self == "":
			return nil, apperr.AuthFailure("authentication required")
		case auth.HasRole(ctx, auth.RoleDoctor) && (f.DoctorID == "" || f.DoctorID == self):
			f.DoctorID = self
		case f.PatientID == "" || f.PatientID == self:
			f.PatientID = self
		default:
			return nil, apperr.Forbidden("cannot list another user's appointments")
		}
	}
	return s.appointments.List(ctx, f)
}

// PatientIDsForDoctor returns the patients holding a non-cancelled
// appointment with the doctor.
func (s *Service) PatientIDsForDoctor(ctx context.Context, doctorID string) ([]string, error) {
	appts, err := s.appointments.List(ctx, ListFilter{DoctorID: doctorID})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var ids []string
	for _, a := range appts {
		if a.Status == StatusCancelled || seen[a.PatientID] {
			continue
		}
		seen[a.PatientID] = true
		ids = append(ids, a.PatientID)
	}
	return ids, nil
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (*Appointment, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rescheduled := false
	if p.Date != nil && strings.TrimSpace(*p.Date) != a.Date {
		a.Date = strings.TrimSpace(*p.Date)
		rescheduled = true
	}
	if p.Time != nil && strings.TrimSpace(*p.Time) != a.Time {
		a.Time = strings.TrimSpace(*p.Time)
		rescheduled = true
	}
	if rescheduled {
		at, err := ScheduledAt(a.Date, a.Time, s.loc)
		if err != nil {
			return nil, apperr.Validation("%s", err.Error())
		}
		a.ScheduledAt = at
	}
	if p.VisitType != nil {
		a.VisitType = strings.TrimSpace(*p.VisitType)
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	reopened := false
	if p.Status != nil {
		if !validAppointmentStatuses[*p.Status] {
			return nil, apperr.Validation("invalid status: %s", *p.Status)
		}
		if *p.Status != a.Status && !canSetStatus(ctx, *p.Status) {
			return nil, apperr.Forbidden("only doctors may mark an appointment " + *p.Status)
		}
		reopened = a.Status == StatusCancelled && *p.Status != StatusCancelled
		s.applyStatus(a, *p.Status)
	}
	if rescheduled || reopened {
		if err := s.checkAvailable(ctx, a); err != nil {
			return nil, err
		}
	}

	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	s.notify(ctx, websocket.EventAppointmentUpdated, a)
	return a, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.appointments.Delete(ctx, id); err != nil {
		return err
	}
	s.notify(ctx, websocket.EventAppointmentDeleted, a)
	return nil
}

func (s *Service) notify(ctx context.Context, eventType string, a *Appointment) {
	s.events.Notify(ctx,
		websocket.NewEvent(eventType, websocket.UserTopic(a.PatientID), "Appointment", a.ID, a),
		websocket.NewEvent(eventType, websocket.UserTopic(a.DoctorID), "Appointment", a.ID, a),
	)
}
