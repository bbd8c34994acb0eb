package scheduling

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateReference is returned by Create when the reference number is
// already taken.
var ErrDuplicateReference = errors.New("duplicate reference number")

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id string) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id string) error
	// List returns matching appointments ordered by scheduledAt ascending.
	List(ctx context.Context, f ListFilter) ([]*Appointment, error)
	// ActiveAt reports whether the doctor has a non-cancelled appointment at
	// the instant, ignoring excludeID.
	ActiveAt(ctx context.Context, doctorID string, at time.Time, excludeID string) (bool, error)
}
