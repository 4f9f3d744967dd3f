package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"inbox_monitor/internal/domain/inbound"
	"inbox_monitor/internal/domain/monitor"
)

var ErrOutboxStore = errors.New("outbox store failure")

// Reply is a queued outbound message.
type Reply struct {
	ID        string
	UserID    string
	ItemID    string
	ThreadID  string
	Recipient string
	Subject   string
	Content   string
	CreatedAt time.Time
	SentAt    *time.Time
}

// OutboxRepository is an inbound.Responder that queues replies in
// outbound_replies for a separate sender process.
type OutboxRepository struct {
	conn *Conn
	now  func() time.Time
}

func NewOutboxRepository(conn *Conn) *OutboxRepository {
	return &OutboxRepository{conn: conn, now: time.Now}
}

func (r *OutboxRepository) Respond(ctx context.Context, item inbound.Item, content string) error {
	subject := item.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	query := r.conn.rebind(`INSERT INTO outbound_replies (id, user_id, item_id, thread_id, recipient, subject, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.conn.DB.ExecContext(ctx, query,
		uuid.NewString(), item.UserID, item.ID, item.ThreadID, monitor.Address(item.Sender), subject, content, millis(r.now()))
	if err != nil {
		return storeError(ErrOutboxStore, "queue reply", err)
	}
	return nil
}

// Pending returns unsent replies, oldest first.
func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]Reply, error) {
	query := r.conn.rebind(`SELECT id, user_id, item_id, thread_id, recipient, subject, content, created_at, sent_at
		FROM outbound_replies WHERE sent_at IS NULL
		ORDER BY created_at, id
		LIMIT ?`)
	rows, err := r.conn.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, storeError(ErrOutboxStore, "list pending", err)
	}
	defer rows.Close()

	replies := make([]Reply, 0)
	for rows.Next() {
		var (
			rep     Reply
			created int64
			sent    sql.NullInt64
		)
		if err := rows.Scan(&rep.ID, &rep.UserID, &rep.ItemID, &rep.ThreadID, &rep.Recipient, &rep.Subject, &rep.Content, &created, &sent); err != nil {
			return nil, storeError(ErrOutboxStore, "scan reply", err)
		}
		rep.CreatedAt = fromMillis(created)
		if sent.Valid {
			at := fromMillis(sent.Int64)
			rep.SentAt = &at
		}
		replies = append(replies, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(ErrOutboxStore, "iterate replies", err)
	}
	return replies, nil
}

// MarkSent flags a reply as delivered by the sender process.
func (r *OutboxRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	query := r.conn.rebind(`UPDATE outbound_replies SET sent_at = ? WHERE id = ? AND sent_at IS NULL`)
	if _, err := r.conn.DB.ExecContext(ctx, query, millis(at), id); err != nil {
		return storeError(ErrOutboxStore, "mark sent", err)
	}
	return nil
}
