package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"inbox_monitor/internal/domain/inbound"
	"inbox_monitor/internal/domain/monitor"
)

var ErrInboxStore = errors.New("inbox store failure")

// fetchLimit caps how many rows one FetchCandidates call scans.
const fetchLimit = 500

// InboxRepository is an inbound.Source over inbound_items. A separate
// ingester fills the table from the mail provider; items are never removed
// here, so the same item may be fetched by many cycles.
type InboxRepository struct {
	conn *Conn
}

func NewInboxRepository(conn *Conn) *InboxRepository {
	return &InboxRepository{conn: conn}
}

// Ingest stores an inbound item. Re-ingesting a known item is a no-op.
func (r *InboxRepository) Ingest(ctx context.Context, item inbound.Item) error {
	query := r.conn.rebind(`INSERT INTO inbound_items (user_id, item_id, thread_id, sender, subject, body, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, item_id) DO NOTHING`)
	_, err := r.conn.DB.ExecContext(ctx, query, item.UserID, item.ID, item.ThreadID, item.Sender, item.Subject, item.Body, millis(item.ReceivedAt))
	if err != nil {
		return storeError(ErrInboxStore, "ingest item", err)
	}
	return nil
}

// FetchCandidates returns the user's items received at or after since whose
// sender matches the filter, oldest first. Keyword matching is left to the
// caller so it can report filtered items.
func (r *InboxRepository) FetchCandidates(ctx context.Context, userID string, filter monitor.Filter, since time.Time) ([]inbound.Item, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Sender)) + "%"
	query := r.conn.rebind(`SELECT item_id, user_id, thread_id, sender, subject, body, received_at
		FROM inbound_items
		WHERE user_id = ? AND received_at >= ? AND LOWER(sender) LIKE ?
		ORDER BY received_at, item_id
		LIMIT ?`)
	rows, err := r.conn.DB.QueryContext(ctx, query, userID, millis(since), pattern, fetchLimit)
	if err != nil {
		return nil, storeError(ErrInboxStore, "fetch candidates", err)
	}
	defer rows.Close()

	items := make([]inbound.Item, 0)
	for rows.Next() {
		var (
			it       inbound.Item
			received int64
		)
		if err := rows.Scan(&it.ID, &it.UserID, &it.ThreadID, &it.Sender, &it.Subject, &it.Body, &received); err != nil {
			return nil, storeError(ErrInboxStore, "scan item", err)
		}
		it.ReceivedAt = fromMillis(received)
		// LIKE is only a prefilter; display names and lookalike domains are settled here.
		if !filter.MatchesSender(it.Sender) {
			continue
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(ErrInboxStore, "iterate items", err)
	}
	return items, nil
}
