package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feelwell/feelwell/internal/platform/apperr"
	"github.com/feelwell/feelwell/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const apptCols = `id, patient_id, patient_name, doctor_id, doctor_name, date, time, scheduled_at,
	visit_type, notes, status, reference_number, confirmed_at, cancelled_at, created_at, updated_at`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var id uuid.UUID
	err := row.Scan(&id, &a.PatientID, &a.PatientName, &a.DoctorID, &a.DoctorName,
		&a.Date, &a.Time, &a.ScheduledAt, &a.VisitType, &a.Notes, &a.Status,
		&a.ReferenceNumber, &a.ConfirmedAt, &a.CancelledAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("appointment")
		}
		return nil, err
	}
	a.ID = id.String()
	a.ScheduledAt = a.ScheduledAt.UTC()
	return &a, nil
}

func parseUUID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id")
	}
	return uid, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	id := uuid.New()
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, patient_name, doctor_id, doctor_name, date, time,
			scheduled_at, visit_type, notes, status, reference_number, confirmed_at, cancelled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING `+apptCols,
		id, a.PatientID, a.PatientName, a.DoctorID, a.DoctorName, a.Date, a.Time,
		a.ScheduledAt, a.VisitType, a.Notes, a.Status, a.ReferenceNumber, a.ConfirmedAt, a.CancelledAt)
	created, err := r.scanAppt(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return err
	}
	*a = *created
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id string) (*Appointment, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, err
	}
	return r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, uid))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	uid, err := parseUUID(a.ID)
	if err != nil {
		return err
	}
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET date=$2, time=$3, scheduled_at=$4, visit_type=$5, notes=$6,
			status=$7, confirmed_at=$8, cancelled_at=$9, updated_at=NOW()
		WHERE id = $1
		RETURNING `+apptCols,
		uid, a.Date, a.Time, a.ScheduledAt, a.VisitType, a.Notes, a.Status, a.ConfirmedAt, a.CancelledAt)
	updated, err := r.scanAppt(row)
	if err != nil {
		return err
	}
	*a = *updated
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id string) error {
	uid, err := parseUUID(id)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment")
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f ListFilter) ([]*Appointment, error) {
	query := `SELECT ` + apptCols + ` FROM appointments WHERE 1=1`
	var args []interface{}
	idx := 1

	add := func(clause string, v interface{}) {
		query += fmt.Sprintf(" AND "+clause, idx)
		args = append(args, v)
		idx++
	}
	if f.PatientID != "" {
		add("patient_id = $%d", f.PatientID)
	}
	if f.DoctorID != "" {
		add("doctor_id = $%d", f.DoctorID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != nil {
		add("scheduled_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("scheduled_at < $%d", *f.To)
	}
	query += " ORDER BY scheduled_at ASC, created_at ASC"

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) ActiveAt(ctx context.Context, doctorID string, at time.Time, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM appointments
		WHERE doctor_id = $1 AND scheduled_at = $2 AND status <> 'cancelled'`
	args := []interface{}{doctorID, at}
	if excludeID != "" {
		if uid, err := uuid.Parse(excludeID); err == nil {
			query += ` AND id <> $3`
			args = append(args, uid)
		}
	}
	query += `)`

	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, strings.TrimSpace(query), args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
