package ledger

import "time"

// ClaimResult is the outcome of a claim attempt.
type ClaimResult int

const (
	Claimed ClaimResult = iota + 1
	AlreadyClaimed
)

func (r ClaimResult) String() string {
	switch r {
	case Claimed:
		return "claimed"
	case AlreadyClaimed:
		return "already_claimed"
	default:
		return "unknown"
	}
}

// Record marks one inbound item as handled for a user. At most one exists
// per (UserID, ItemID).
type Record struct {
	UserID    string
	ItemID    string
	ThreadID  string
	ClaimedAt time.Time
}
