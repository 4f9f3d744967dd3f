package monitorfile

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"inbox_monitor/internal/domain/monitor"
	"inbox_monitor/internal/infra/filewatch"
)

// Store serves the monitors of one YAML file and reloads it on change. It
// implements monitor.Source.
type Store struct {
	path string
	log  *logrus.Entry

	mu       sync.RWMutex
	monitors []monitor.Monitor
}

func NewStore(path string, log *logrus.Entry) *Store {
	return &Store{path: path, log: log.WithFields(logrus.Fields{"component": "monitorfile", "path": path})}
}

// Load reads the file and replaces the current snapshot. On error the
// previous snapshot stays in place.
func (s *Store) Load() (*Result, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read monitors file: %w", err)
	}
	res, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for _, r := range res.Rejections {
		s.log.WithFields(logrus.Fields{"index": r.Index, "monitor_id": r.ID}).
			Warnf("Monitor rejected: %s", r.Violations.Error())
	}

	s.mu.Lock()
	s.monitors = res.Monitors
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"active":   len(res.Monitors),
		"disabled": res.Disabled,
		"rejected": len(res.Rejections),
	}).Info("Monitors loaded")
	return res, nil
}

func (s *Store) ActiveMonitors(ctx context.Context) ([]monitor.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]monitor.Monitor, len(s.monitors))
	copy(out, s.monitors)
	return out, nil
}

// Watch reloads the file whenever it changes until ctx ends.
func (s *Store) Watch(ctx context.Context) error {
	return filewatch.Watch(ctx, s.path, s.log, func() {
		if _, err := s.Load(); err != nil {
			s.log.WithError(err).Warn("Reload failed; keeping previous monitors")
		}
	})
}
