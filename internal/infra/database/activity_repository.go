package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"inbox_monitor/internal/domain/activity"
)

var ErrActivityStore = errors.New("activity store failure")

// ActivityRepository persists the activity log.
type ActivityRepository struct {
	conn *Conn
}

func NewActivityRepository(conn *Conn) *ActivityRepository {
	return &ActivityRepository{conn: conn}
}

func (r *ActivityRepository) Record(ctx context.Context, e activity.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	query := r.conn.rebind(`INSERT INTO activity_log (id, user_id, monitor_id, item_id, status, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.conn.DB.ExecContext(ctx, query, e.ID, e.UserID, e.MonitorID, e.ItemID, string(e.Status), e.Detail, millis(e.CreatedAt))
	if err != nil {
		return storeError(ErrActivityStore, fmt.Sprintf("record %s entry", e.Status), err)
	}
	return nil
}

func (r *ActivityRepository) Recent(ctx context.Context, userID string, limit int) ([]activity.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := r.conn.rebind(`SELECT id, user_id, monitor_id, item_id, status, detail, created_at
		FROM activity_log WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`)
	rows, err := r.conn.DB.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, storeError(ErrActivityStore, "list activity", err)
	}
	defer rows.Close()

	entries := make([]activity.Entry, 0, limit)
	for rows.Next() {
		var (
			e       activity.Entry
			status  string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.MonitorID, &e.ItemID, &status, &e.Detail, &created); err != nil {
			return nil, storeError(ErrActivityStore, "scan activity", err)
		}
		e.Status = activity.Status(status)
		e.CreatedAt = fromMillis(created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(ErrActivityStore, "iterate activity", err)
	}
	return entries, nil
}
