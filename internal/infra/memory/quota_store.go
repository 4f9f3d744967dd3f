package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"inbox_monitor/internal/domain/quota"
)

// QuotaStore is an in-process quota.Store. Counters do not survive a restart
// and are not shared between processes.
type QuotaStore struct {
	mu       sync.RWMutex
	counters map[string]*quota.Counter
	now      func() time.Time
}

func NewQuotaStore() *QuotaStore {
	return &QuotaStore{
		counters: make(map[string]*quota.Counter),
		now:      time.Now,
	}
}

func counterKey(monitorID, periodID string) string { return monitorID + "\x00" + periodID }

func (s *QuotaStore) TryIncrement(ctx context.Context, userID, monitorID, periodID string, max int) (quota.Outcome, error) {
	key := counterKey(monitorID, periodID)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		c = &quota.Counter{MonitorID: monitorID, PeriodID: periodID, UserID: userID}
		s.counters[key] = c
	}
	if c.CurrentCount >= max {
		return quota.Denied(c.CurrentCount, max), nil
	}
	c.CurrentCount++
	c.MaxCount = max
	c.UpdatedAt = s.now()
	return quota.Allowed(c.CurrentCount, max), nil
}

func (s *QuotaStore) Reset(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, c := range s.counters {
		if c.UserID != userID {
			continue
		}
		c.CurrentCount = 0
		c.UpdatedAt = s.now()
		n++
	}
	return n, nil
}

func (s *QuotaStore) List(ctx context.Context, userID string) ([]*quota.Counter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*quota.Counter, 0)
	for _, c := range s.counters {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PeriodID != out[j].PeriodID {
			return out[i].PeriodID < out[j].PeriodID
		}
		return out[i].MonitorID < out[j].MonitorID
	})
	return out, nil
}
