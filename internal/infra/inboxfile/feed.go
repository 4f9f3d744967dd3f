package inboxfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"inbox_monitor/internal/domain/inbound"
	"inbox_monitor/internal/infra/filewatch"
)

// Ingester stores inbound items. Re-ingesting a known item must be a no-op.
type Ingester interface {
	Ingest(ctx context.Context, item inbound.Item) error
}

// Document is the on-disk shape of an inbox feed file.
type Document struct {
	Items []ItemConfig `yaml:"items"`
}

type ItemConfig struct {
	ID         string `yaml:"id"`
	UserID     string `yaml:"user_id"`
	ThreadID   string `yaml:"thread_id"`
	Sender     string `yaml:"sender"`
	Subject    string `yaml:"subject"`
	Body       string `yaml:"body"`
	ReceivedAt string `yaml:"received_at"` // RFC 3339
}

// Parse decodes a feed document. Any invalid item fails the whole document.
func Parse(data []byte) ([]inbound.Item, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode inbox feed: %w", err)
	}

	items := make([]inbound.Item, 0, len(doc.Items))
	for i, c := range doc.Items {
		id, user, sender := strings.TrimSpace(c.ID), strings.TrimSpace(c.UserID), strings.TrimSpace(c.Sender)
		if id == "" || user == "" || sender == "" {
			return nil, fmt.Errorf("item #%d: id, user_id and sender are required", i)
		}
		at, err := time.Parse(time.RFC3339, strings.TrimSpace(c.ReceivedAt))
		if err != nil {
			return nil, fmt.Errorf("item #%d (%s): invalid received_at: %w", i, id, err)
		}
		thread := strings.TrimSpace(c.ThreadID)
		if thread == "" {
			thread = id
		}
		items = append(items, inbound.Item{
			ID:         id,
			UserID:     user,
			ThreadID:   thread,
			Sender:     sender,
			Subject:    c.Subject,
			Body:       c.Body,
			ReceivedAt: at.UTC(),
		})
	}
	return items, nil
}

// Feed ingests the items of a YAML file into an item store. Appending items
// to the file and saving it delivers them to a running process.
type Feed struct {
	path string
	dst  Ingester
	log  *logrus.Entry
}

func NewFeed(path string, dst Ingester, log *logrus.Entry) *Feed {
	return &Feed{path: path, dst: dst, log: log.WithFields(logrus.Fields{"component": "inboxfile", "path": path})}
}

// Load ingests every item of the file and returns how many were offered.
func (f *Feed) Load(ctx context.Context) (int, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read inbox feed: %w", err)
	}
	items, err := Parse(data)
	if err != nil {
		return 0, err
	}
	for _, it := range items {
		if err := f.dst.Ingest(ctx, it); err != nil {
			return 0, fmt.Errorf("failed to ingest item %s: %w", it.ID, err)
		}
	}
	f.log.WithField("items", len(items)).Info("Inbox feed ingested")
	return len(items), nil
}

// Watch ingests the file again whenever it changes until ctx ends.
func (f *Feed) Watch(ctx context.Context) error {
	return filewatch.Watch(ctx, f.path, f.log, func() {
		if _, err := f.Load(ctx); err != nil {
			f.log.WithError(err).Warn("Inbox feed reload failed")
		}
	})
}
