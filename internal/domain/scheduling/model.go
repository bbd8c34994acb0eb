package scheduling

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

var validAppointmentStatuses = map[string]bool{
	StatusScheduled: true, StatusConfirmed: true, StatusCancelled: true, StatusCompleted: true,
}

type Appointment struct {
	ID              string     `json:"_id"`
	PatientID       string     `json:"patientId"`
	PatientName     string     `json:"patientName"`
	DoctorID        string     `json:"doctorId"`
	DoctorName      string     `json:"doctorName"`
	Date            string     `json:"date"`
	Time            string     `json:"time"`
	ScheduledAt     time.Time  `json:"scheduledAt"`
	VisitType       string     `json:"visitType,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Status          string     `json:"status"`
	ReferenceNumber string     `json:"referenceNumber"`
	ConfirmedAt     *time.Time `json:"confirmedAt,omitempty"`
	CancelledAt     *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// CreateInput is a booking request. UserID is accepted as an alias for
// PatientID.
type CreateInput struct {
	PatientID string `json:"patientId"`
	UserID    string `json:"userId"`
	DoctorID  string `json:"doctorId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	VisitType string `json:"visitType"`
	Notes     string `json:"notes"`
	Status    string `json:"status"`
}

// Patch holds the fields an update may change. Nil fields are left as is.
type Patch struct {
	Date      *string `json:"date"`
	Time      *string `json:"time"`
	VisitType *string `json:"visitType"`
	Notes     *string `json:"notes"`
	Status    *string `json:"status"`
}

// ListFilter narrows List. From is inclusive and To exclusive.
type ListFilter struct {
	PatientID string
	DoctorID  string
	Status    string
	From      *time.Time
	To        *time.Time
}

const dateLayout = "2006-01-02"

var timeLayouts = []string{"3:04 PM", "3:04PM", "15:04", "15:04:05"}

// ParseDate parses a YYYY-MM-DD date at midnight in loc.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return d, nil
}

// ScheduledAt combines date and clock into a UTC instant, reading both in loc.
// clock may be "h:mm AM/PM" or 24-hour "HH:MM".
func ScheduledAt(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	clock = strings.ToUpper(strings.TrimSpace(clock))
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, clock)
		if err != nil {
			continue
		}
		return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q, expected h:mm AM/PM or HH:MM", clock)
}

const referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewReferenceNumber returns FW-<unix millis>-<6 uppercase alphanumerics>.
func NewReferenceNumber(now time.Time) string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = referenceAlphabet[rand.Intn(len(referenceAlphabet))]
	}
	return fmt.Sprintf("FW-%d-%s", now.UnixMilli(), suffix)
}
