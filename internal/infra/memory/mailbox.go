package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"inbox_monitor/internal/domain/inbound"
	"inbox_monitor/internal/domain/monitor"
)

// Inbox is an in-process inbound.Source fed through Ingest.
type Inbox struct {
	mu    sync.RWMutex
	items map[string]inbound.Item
}

func NewInbox() *Inbox {
	return &Inbox{items: make(map[string]inbound.Item)}
}

// Ingest adds an item; a known (user, item) pair is left unchanged.
func (b *Inbox) Ingest(ctx context.Context, item inbound.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := recordKey(item.UserID, item.ID)
	if _, ok := b.items[key]; !ok {
		b.items[key] = item
	}
	return nil
}

func (b *Inbox) FetchCandidates(ctx context.Context, userID string, filter monitor.Filter, since time.Time) ([]inbound.Item, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]inbound.Item, 0)
	for _, it := range b.items {
		if it.UserID == userID && !it.ReceivedAt.Before(since) && filter.MatchesSender(it.Sender) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SentReply is a reply captured by Outbox.
type SentReply struct {
	Item    inbound.Item
	Content string
	At      time.Time
}

// Outbox is an inbound.Responder that keeps replies in memory.
type Outbox struct {
	mu   sync.Mutex
	sent []SentReply
}

func NewOutbox() *Outbox { return &Outbox{} }

func (o *Outbox) Respond(ctx context.Context, item inbound.Item, content string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, SentReply{Item: item, Content: content, At: time.Now()})
	return nil
}

func (o *Outbox) Sent() []SentReply {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]SentReply, len(o.sent))
	copy(out, o.sent)
	return out
}
