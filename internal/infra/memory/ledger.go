package memory

import (
	"context"
	"sync"
	"time"

	"inbox_monitor/internal/domain/ledger"
)

// Ledger is an in-process ledger.Ledger.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]ledger.Record
	now     func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		records: make(map[string]ledger.Record),
		now:     time.Now,
	}
}

func recordKey(userID, itemID string) string { return userID + "\x00" + itemID }

func (l *Ledger) TryClaim(ctx context.Context, userID, itemID, threadID string) (ledger.ClaimResult, error) {
	key := recordKey(userID, itemID)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.records[key]; exists {
		return ledger.AlreadyClaimed, nil
	}
	l.records[key] = ledger.Record{UserID: userID, ItemID: itemID, ThreadID: threadID, ClaimedAt: l.now()}
	return ledger.Claimed, nil
}

func (l *Ledger) HasClaimed(ctx context.Context, userID, itemID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, exists := l.records[recordKey(userID, itemID)]
	return exists, nil
}

// Records returns a copy of every claim, for status pages and tests.
func (l *Ledger) Records() []ledger.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ledger.Record, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, r)
	}
	return out
}
