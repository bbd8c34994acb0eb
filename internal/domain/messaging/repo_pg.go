package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/feelwell/feelwell/internal/platform/apperr"
	"github.com/feelwell/feelwell/internal/platform/db"
)

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewDirectMessageRepoPG(pool *pgxpool.Pool) DirectMessageRepository {
	return &messageRepoPG{pool: pool}
}

func (r *messageRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFrom(ctx, r.pool)
}

const msgCols = `id, sender_id, sender_type, sender_name, receiver_id, receiver_name, content,
	read, read_at, message_type, COALESCE(reply_to, ''), urgent, created_at`

func (r *messageRepoPG) scanMessage(row pgx.Row) (*DirectMessage, error) {
	var m DirectMessage
	var id uuid.UUID
	err := row.Scan(&id, &m.SenderID, &m.SenderType, &m.SenderName, &m.ReceiverID, &m.ReceiverName,
		&m.Content, &m.Read, &m.ReadAt, &m.MessageType, &m.ReplyTo, &m.Urgent, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("message")
		}
		return nil, err
	}
	m.ID = id.String()
	return &m, nil
}

func parseUUID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id")
	}
	return uid, nil
}

func (r *messageRepoPG) Create(ctx context.Context, m *DirectMessage) error {
	var replyTo *string
	if m.ReplyTo != "" {
		replyTo = &m.ReplyTo
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO direct_messages (id, sender_id, sender_type, sender_name, receiver_id, receiver_name,
			content, message_type, reply_to, urgent)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING `+msgCols,
		uuid.New(), m.SenderID, m.SenderType, m.SenderName, m.ReceiverID, m.ReceiverName,
		m.Content, m.MessageType, replyTo, m.Urgent)
	created, err := r.scanMessage(row)
	if err != nil {
		return err
	}
	*m = *created
	return nil
}

func (r *messageRepoPG) GetByID(ctx context.Context, id string) (*DirectMessage, error) {
	uid, err := parseUUID(id)
	if err != nil {
		return nil, err
	}
	return r.scanMessage(r.conn(ctx).QueryRow(ctx, `SELECT `+msgCols+` FROM direct_messages WHERE id = $1`, uid))
}

func (r *messageRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*DirectMessage, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DirectMessage
	for rows.Next() {
		m, err := r.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *messageRepoPG) ListForParty(ctx context.Context, userID string) ([]*DirectMessage, error) {
	return r.query(ctx, `SELECT `+msgCols+` FROM direct_messages
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC, id DESC`, userID)
}

func (r *messageRepoPG) ListBetween(ctx context.Context, a, b string) ([]*DirectMessage, error) {
	return r.query(ctx, `SELECT `+msgCols+` FROM direct_messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, id ASC`, a, b)
}

func (r *messageRepoPG) MarkRead(ctx context.Context, id string, at time.Time) error {
	uid, err := parseUUID(id)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE direct_messages SET read = TRUE, read_at = $2 WHERE id = $1`, uid, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("message")
	}
	return nil
}

func (r *messageRepoPG) Delete(ctx context.Context, id string) error {
	uid, err := parseUUID(id)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM direct_messages WHERE id = $1`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("message")
	}
	return nil
}
