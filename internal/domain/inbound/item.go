package inbound

import (
	"context"
	"time"

	"inbox_monitor/internal/domain/monitor"
)

// Item is one inbound message or thread entry offered by a provider. ID is
// stable across fetches and is the ledger key.
type Item struct {
	ID         string
	UserID     string
	ThreadID   string
	Sender     string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Source fetches candidate items received since a point in time. The same
// item may be returned by successive calls.
type Source interface {
	FetchCandidates(ctx context.Context, userID string, filter monitor.Filter, since time.Time) ([]Item, error)
}

// Generator produces the reply text for an item.
type Generator interface {
	Generate(ctx context.Context, m monitor.Monitor, item Item) (string, error)
}

// Responder delivers a reply. It is called at most once per claimed item and
// is never retried by the poll cycle.
type Responder interface {
	Respond(ctx context.Context, item Item, content string) error
}
