package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"inbox_monitor/internal/domain/monitor"
)

// StateRepository is a monitor.StateStore over monitor_checks and
// monitor_responses.
type StateRepository struct {
	conn *Conn
}

func NewStateRepository(conn *Conn) *StateRepository {
	return &StateRepository{conn: conn}
}

func (r *StateRepository) LastCheckedAt(ctx context.Context, monitorID string) (*time.Time, error) {
	query := r.conn.rebind(`SELECT last_checked_at FROM monitor_checks WHERE monitor_id = ?`)
	var ms int64
	err := r.conn.DB.QueryRowContext(ctx, query, monitorID).Scan(&ms)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError(monitor.ErrStateFailure, "read last check", err)
	}
	at := fromMillis(ms)
	return &at, nil
}

func (r *StateRepository) MarkChecked(ctx context.Context, monitorID string, at time.Time) error {
	query := r.conn.rebind(`INSERT INTO monitor_checks (monitor_id, last_checked_at) VALUES (?, ?)
		ON CONFLICT (monitor_id) DO UPDATE SET last_checked_at = excluded.last_checked_at
		WHERE monitor_checks.last_checked_at < excluded.last_checked_at`)
	if _, err := r.conn.DB.ExecContext(ctx, query, monitorID, millis(at)); err != nil {
		return storeError(monitor.ErrStateFailure, "mark checked", err)
	}
	return nil
}

func (r *StateRepository) HasResponded(ctx context.Context, monitorID, periodID string) (bool, error) {
	query := r.conn.rebind(`SELECT 1 FROM monitor_responses WHERE monitor_id = ? AND period_id = ?`)
	var one int
	err := r.conn.DB.QueryRowContext(ctx, query, monitorID, periodID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, storeError(monitor.ErrStateFailure, "read response marker", err)
	}
	return true, nil
}

func (r *StateRepository) MarkResponded(ctx context.Context, monitorID, periodID string, at time.Time) error {
	query := r.conn.rebind(`INSERT INTO monitor_responses (monitor_id, period_id, responded_at) VALUES (?, ?, ?)
		ON CONFLICT (monitor_id, period_id) DO NOTHING`)
	if _, err := r.conn.DB.ExecContext(ctx, query, monitorID, periodID, millis(at)); err != nil {
		return storeError(monitor.ErrStateFailure, "mark responded", err)
	}
	return nil
}
