package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feelwell/feelwell/internal/platform/apperr"
	"github.com/feelwell/feelwell/internal/platform/db"
)

type conversationRepoPG struct{ pool *pgxpool.Pool }

func NewConversationRepoPG(pool *pgxpool.Pool) ConversationRepository {
	return &conversationRepoPG{pool: pool}
}

func (r *conversationRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const convCols = `id, patient_id, COALESCE(doctor_id, ''), COALESCE(appointment_id, ''), title, messages,
	last_message, message_count, status, closed_at, COALESCE(closed_by, ''), created_at, updated_at`

func (r *conversationRepoPG) scanConv(row pgx.Row) (*Conversation, error) {
	var c Conversation
	var id uuid.UUID
	var raw []byte
	err := row.Scan(&id, &c.PatientID, &c.DoctorID, &c.AppointmentID, &c.Title, &raw,
		&c.LastMessage, &c.MessageCount, &c.Status, &c.ClosedAt, &c.ClosedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("conversation")
		}
		return nil, err
	}
	c.ID = id.String()
	c.Messages = []Message{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.Messages); err != nil {
			return nil, fmt.Errorf("decode messages of conversation %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func encodeMessages(msgs []Message) ([]byte, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	return json.Marshal(msgs)
}

func (r *conversationRepoPG) Create(ctx context.Context, c *Conversation) error {
	msgs, err := encodeMessages(c.Messages)
	if err != nil {
		return err
	}
	id := uuid.New()
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO conversations (id, patient_id, doctor_id, appointment_id, title, messages,
			last_message, message_count, status, closed_at, closed_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		id, c.PatientID, nullable(c.DoctorID), nullable(c.AppointmentID), c.Title, msgs,
		c.LastMessage, c.MessageCount, c.Status, c.ClosedAt, nullable(c.ClosedBy), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return err
	}
	c.ID = id.String()
	return nil
}

func parseUUID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id")
	}
	return uid, nil
}

func (r *conversationRepoPG) GetByID(ctx context.Context, id string) (*Conversation, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, err
	}
	return r.scanConv(r.conn(ctx).QueryRow(ctx, `SELECT `+convCols+` FROM conversations WHERE id = $1`, uid))
}

func (r *conversationRepoPG) Save(ctx context.Context, c *Conversation) error {
	uid, err := parseUUID(c.ID)
	if err != nil {
		return err
	}
	msgs, err := encodeMessages(c.Messages)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE conversations SET doctor_id=$2, appointment_id=$3, title=$4, messages=$5,
			last_message=$6, message_count=$7, status=$8, closed_at=$9, closed_by=$10, updated_at=$11
		WHERE id = $1`,
		uid, nullable(c.DoctorID), nullable(c.AppointmentID), c.Title, msgs,
		c.LastMessage, c.MessageCount, c.Status, c.ClosedAt, nullable(c.ClosedBy), c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("conversation")
	}
	return nil
}

func (r *conversationRepoPG) Delete(ctx context.Context, id string) error {
	uid, err := parseUUID(id)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM conversations WHERE id = $1`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("conversation")
	}
	return nil
}

func (r *conversationRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Conversation, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c, err := r.scanConv(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *conversationRepoPG) ListByPatient(ctx context.Context, patientID string) ([]*Conversation, error) {
	return r.query(ctx, `SELECT `+convCols+` FROM conversations
		WHERE patient_id = $1 ORDER BY updated_at DESC`, patientID)
}

func (r *conversationRepoPG) ListForDoctor(ctx context.Context, doctorID string, patientIDs []string) ([]*Conversation, error) {
	if patientIDs == nil {
		patientIDs = []string{}
	}
	return r.query(ctx, `SELECT `+convCols+` FROM conversations
		WHERE doctor_id = $1 OR patient_id = ANY($2)
		ORDER BY updated_at DESC`, doctorID, patientIDs)
}

func (r *conversationRepoPG) ForEach(ctx context.Context, fn func(*Conversation) error) error {
	convs, err := r.query(ctx, `SELECT `+convCols+` FROM conversations ORDER BY created_at`)
	if err != nil {
		return err
	}
	for _, c := range convs {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}
