package memory

import (
	"context"
	"sync"

	"inbox_monitor/internal/domain/activity"
)

// ActivityLog keeps activity entries in memory, oldest first.
type ActivityLog struct {
	mu      sync.RWMutex
	entries []activity.Entry
}

func NewActivityLog() *ActivityLog {
	return &ActivityLog{}
}

func (l *ActivityLog) Record(ctx context.Context, e activity.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	return nil
}

func (l *ActivityLog) Recent(ctx context.Context, userID string, limit int) ([]activity.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]activity.Entry, 0)
	for i := len(l.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if l.entries[i].UserID == userID {
			out = append(out, l.entries[i])
		}
	}
	return out, nil
}

// Entries returns a copy of every entry in insertion order.
func (l *ActivityLog) Entries() []activity.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]activity.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
