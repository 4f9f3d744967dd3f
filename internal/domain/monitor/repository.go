package monitor

import (
	"context"
	"errors"
	"time"
)

// ErrStateFailure wraps any failure of a StateStore.
var ErrStateFailure = errors.New("monitor state store failure")

// Source supplies the monitors that should be polled. Implementations return
// a snapshot; callers treat it as read-only for the duration of a cycle.
type Source interface {
	ActiveMonitors(ctx context.Context) ([]Monitor, error)
}

// StateStore keeps the small amount of per-monitor state a poll cycle needs:
// when the monitor was last checked and whether it already responded in a period.
type StateStore interface {
	// LastCheckedAt returns nil when the monitor has never been checked.
	LastCheckedAt(ctx context.Context, monitorID string) (*time.Time, error)
	// MarkChecked records a check; it never moves the timestamp backwards.
	MarkChecked(ctx context.Context, monitorID string, at time.Time) error
	HasResponded(ctx context.Context, monitorID, periodID string) (bool, error)
	MarkResponded(ctx context.Context, monitorID, periodID string, at time.Time) error
}
