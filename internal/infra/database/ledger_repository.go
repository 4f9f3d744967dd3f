package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"inbox_monitor/internal/domain/ledger"
)

// LedgerRepository is a ledger.Ledger over responded_items. The primary key
// on (user_id, item_id) decides which concurrent claim wins.
type LedgerRepository struct {
	conn *Conn
	now  func() time.Time
}

func NewLedgerRepository(conn *Conn) *LedgerRepository {
	return &LedgerRepository{conn: conn, now: time.Now}
}

func (r *LedgerRepository) TryClaim(ctx context.Context, userID, itemID, threadID string) (ledger.ClaimResult, error) {
	query := r.conn.rebind(`INSERT INTO responded_items (user_id, item_id, thread_id, claimed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, item_id) DO NOTHING`)
	res, err := r.conn.DB.ExecContext(ctx, query, userID, itemID, threadID, millis(r.now()))
	if err != nil {
		return 0, storeError(ledger.ErrStoreFailure, "claim item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError(ledger.ErrStoreFailure, "claim item", err)
	}
	if n == 0 {
		return ledger.AlreadyClaimed, nil
	}
	return ledger.Claimed, nil
}

func (r *LedgerRepository) HasClaimed(ctx context.Context, userID, itemID string) (bool, error) {
	query := r.conn.rebind(`SELECT 1 FROM responded_items WHERE user_id = ? AND item_id = ?`)
	var one int
	err := r.conn.DB.QueryRowContext(ctx, query, userID, itemID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, storeError(ledger.ErrStoreFailure, "check claim", err)
	}
	return true, nil
}

// Get returns the record for an item, or nil when it was never claimed.
func (r *LedgerRepository) Get(ctx context.Context, userID, itemID string) (*ledger.Record, error) {
	query := r.conn.rebind(`SELECT user_id, item_id, thread_id, claimed_at FROM responded_items WHERE user_id = ? AND item_id = ?`)
	var (
		rec     ledger.Record
		claimed int64
	)
	err := r.conn.DB.QueryRowContext(ctx, query, userID, itemID).Scan(&rec.UserID, &rec.ItemID, &rec.ThreadID, &claimed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError(ledger.ErrStoreFailure, "get claim", err)
	}
	rec.ClaimedAt = fromMillis(claimed)
	return &rec, nil
}
