package activity

import (
	"context"
	"errors"
	"time"
)

// Status is the outcome recorded for an item.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusResponded Status = "RESPONDED"
	StatusFiltered  Status = "FILTERED"
	StatusError     Status = "ERROR"
)

// Entry is one line of a user's activity log.
type Entry struct {
	ID        string
	UserID    string
	MonitorID string
	ItemID    string // empty for monitor-level events such as a failed fetch
	Status    Status
	Detail    string
	CreatedAt time.Time
}

// Sink receives activity entries. Callers treat it as fire-and-forget.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// Reader lists recent entries for a user, newest first.
type Reader interface {
	Recent(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// Multi fans an entry out to several sinks, attempting all of them.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
