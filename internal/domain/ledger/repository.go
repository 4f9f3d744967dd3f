package ledger

import (
	"context"
	"errors"
)

// ErrStoreFailure wraps every persistence failure. A claim that fails this
// way is neither Claimed nor AlreadyClaimed.
var ErrStoreFailure = errors.New("response ledger failure")

// Ledger guarantees at most one response per (user, item).
type Ledger interface {
	// TryClaim inserts the record if absent. Exactly one of any number of
	// concurrent callers for the same key observes Claimed.
	TryClaim(ctx context.Context, userID, itemID, threadID string) (ClaimResult, error)
	// HasClaimed is a read-only pre-check; it does not replace TryClaim.
	HasClaimed(ctx context.Context, userID, itemID string) (bool, error)
}
