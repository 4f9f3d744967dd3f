package memory

import (
	"context"
	"sync"
	"time"
)

// StateStore is an in-process monitor.StateStore.
type StateStore struct {
	mu        sync.RWMutex
	checked   map[string]time.Time
	responded map[string]time.Time
}

func NewStateStore() *StateStore {
	return &StateStore{
		checked:   make(map[string]time.Time),
		responded: make(map[string]time.Time),
	}
}

func (s *StateStore) LastCheckedAt(ctx context.Context, monitorID string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.checked[monitorID]
	if !ok {
		return nil, nil
	}
	return &at, nil
}

func (s *StateStore) MarkChecked(ctx context.Context, monitorID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.checked[monitorID]; !ok || at.After(prev) {
		s.checked[monitorID] = at
	}
	return nil
}

func (s *StateStore) HasResponded(ctx context.Context, monitorID, periodID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.responded[counterKey(monitorID, periodID)]
	return ok, nil
}

func (s *StateStore) MarkResponded(ctx context.Context, monitorID, periodID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey(monitorID, periodID)
	if _, ok := s.responded[key]; !ok {
		s.responded[key] = at
	}
	return nil
}
