package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"inbox_monitor/internal/domain/quota"
)

// QuotaRepository is a quota.Store backed by the quota_counters table. The
// increment is a single conditional UPDATE, so it stays atomic across
// processes sharing the database.
type QuotaRepository struct {
	conn *Conn
	now  func() time.Time
}

func NewQuotaRepository(conn *Conn) *QuotaRepository {
	return &QuotaRepository{conn: conn, now: time.Now}
}

func (r *QuotaRepository) TryIncrement(ctx context.Context, userID, monitorID, periodID string, max int) (quota.Outcome, error) {
	now := millis(r.now())

	create := r.conn.rebind(`INSERT INTO quota_counters (monitor_id, period_id, user_id, current_count, max_count, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT (monitor_id, period_id) DO NOTHING`)
	if _, err := r.conn.DB.ExecContext(ctx, create, monitorID, periodID, userID, max, now); err != nil {
		return quota.Outcome{}, storeError(quota.ErrStoreFailure, "create counter", err)
	}

	increment := r.conn.rebind(`UPDATE quota_counters
		SET current_count = current_count + 1, max_count = ?, updated_at = ?
		WHERE monitor_id = ? AND period_id = ? AND current_count < ?
		RETURNING current_count`)
	var current int
	err := r.conn.DB.QueryRowContext(ctx, increment, max, now, monitorID, periodID, max).Scan(&current)
	switch {
	case err == nil:
		return quota.Allowed(current, max), nil
	case !errors.Is(err, sql.ErrNoRows):
		return quota.Outcome{}, storeError(quota.ErrStoreFailure, "increment counter", err)
	}

	read := r.conn.rebind(`SELECT current_count FROM quota_counters WHERE monitor_id = ? AND period_id = ?`)
	if err := r.conn.DB.QueryRowContext(ctx, read, monitorID, periodID).Scan(&current); err != nil {
		return quota.Outcome{}, storeError(quota.ErrStoreFailure, "read counter", err)
	}
	return quota.Denied(current, max), nil
}

func (r *QuotaRepository) Reset(ctx context.Context, userID string) (int64, error) {
	query := r.conn.rebind(`UPDATE quota_counters SET current_count = 0, updated_at = ? WHERE user_id = ?`)
	res, err := r.conn.DB.ExecContext(ctx, query, millis(r.now()), userID)
	if err != nil {
		return 0, storeError(quota.ErrStoreFailure, "reset counters", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError(quota.ErrStoreFailure, "reset counters", err)
	}
	return n, nil
}

func (r *QuotaRepository) List(ctx context.Context, userID string) ([]*quota.Counter, error) {
	query := r.conn.rebind(`SELECT monitor_id, period_id, user_id, current_count, max_count, updated_at
		FROM quota_counters WHERE user_id = ?
		ORDER BY period_id, monitor_id`)
	rows, err := r.conn.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, storeError(quota.ErrStoreFailure, "list counters", err)
	}
	defer rows.Close()

	counters := make([]*quota.Counter, 0)
	for rows.Next() {
		var (
			c       quota.Counter
			updated int64
		)
		if err := rows.Scan(&c.MonitorID, &c.PeriodID, &c.UserID, &c.CurrentCount, &c.MaxCount, &updated); err != nil {
			return nil, storeError(quota.ErrStoreFailure, "scan counter", err)
		}
		c.UpdatedAt = fromMillis(updated)
		counters = append(counters, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(quota.ErrStoreFailure, "iterate counters", err)
	}
	return counters, nil
}
