package quota

import (
	"context"
	"errors"
)

// ErrStoreFailure wraps every persistence failure. It is retryable and is
// never a denial.
var ErrStoreFailure = errors.New("quota store failure")

// Store owns per-(monitor, period) counters.
type Store interface {
	// TryIncrement atomically adds one use if the counter is below max.
	// Concurrent callers on the same key never push the count past max.
	TryIncrement(ctx context.Context, userID, monitorID, periodID string, max int) (Outcome, error)
	// Reset zeroes every counter owned by the user, across all periods, and
	// returns how many counters were touched.
	Reset(ctx context.Context, userID string) (int64, error)
	// List returns the user's counters ordered by period, then monitor.
	List(ctx context.Context, userID string) ([]*Counter, error)
}
