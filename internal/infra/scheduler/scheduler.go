package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"inbox_monitor/internal/app"
	"inbox_monitor/internal/domain/monitor"
)

// UserRunner runs the poll cycles of one user's monitors.
type UserRunner interface {
	RunUser(ctx context.Context, userID string, monitors []monitor.Monitor, now time.Time) ([]*app.CycleReport, error)
}

// PollScheduler fires a poll tick on a cron spec. Each tick loads the active
// monitors and runs every user's cycles, at most maxConcurrent users at a time.
type PollScheduler struct {
	cronEngine    *cron.Cron
	runner        UserRunner
	source        monitor.Source
	log           *logrus.Entry
	cronSpec      string
	cycleTimeout  time.Duration
	maxConcurrent int
	clock         func() time.Time
}

func NewPollScheduler(
	runner UserRunner,
	source monitor.Source,
	log *logrus.Entry,
	cronSpec string, // e.g. "* * * * *" (every minute)
	cycleTimeout time.Duration,
	maxConcurrent int,
) *PollScheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	log = log.WithField("component", "scheduler")
	return &PollScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.PrintfLogger(log))),
		),
		runner:        runner,
		source:        source,
		log:           log,
		cronSpec:      cronSpec,
		cycleTimeout:  cycleTimeout,
		maxConcurrent: maxConcurrent,
		clock:         time.Now,
	}
}

// Start registers the poll job and starts the cron engine.
func (s *PollScheduler) Start() error {
	s.log.WithField("spec", s.cronSpec).Info("Starting poll scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.Tick(context.Background())
	})
	if err != nil {
		return fmt.Errorf("could not add poll cron job %q: %w", s.cronSpec, err)
	}

	s.cronEngine.Start()
	s.log.Info("Poll scheduler started.")
	return nil
}

// Tick runs one poll pass and returns every cycle report it produced.
func (s *PollScheduler) Tick(ctx context.Context) []*app.CycleReport {
	started := s.clock()
	monitors, err := s.source.ActiveMonitors(ctx)
	if err != nil {
		s.log.WithError(err).Error("Failed to load active monitors")
		return nil
	}
	if len(monitors) == 0 {
		s.log.Debug("No active monitors")
		return nil
	}

	byUser := make(map[string][]monitor.Monitor)
	for _, m := range monitors {
		byUser[m.UserID] = append(byUser[m.UserID], m)
	}
	users := make([]string, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sort.Strings(users)

	var (
		mu      sync.Mutex
		reports []*app.CycleReport
		wg      sync.WaitGroup
		sem     = make(chan struct{}, s.maxConcurrent)
	)
	for _, userID := range users {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			s.log.WithError(ctx.Err()).Warn("Tick cancelled before all users ran")
			wg.Wait()
			return reports
		}
		wg.Add(1)
		go func(userID string, ms []monitor.Monitor) {
			defer wg.Done()
			defer func() { <-sem }()

			cctx, cancel := context.WithTimeout(ctx, s.cycleTimeout)
			defer cancel()

			rs, err := s.runner.RunUser(cctx, userID, ms, s.clock())
			if err != nil {
				s.log.WithError(err).WithField("user_id", userID).Error("Poll cycle aborted")
			}
			mu.Lock()
			for _, r := range rs {
				if r != nil {
					reports = append(reports, r)
				}
			}
			mu.Unlock()
		}(userID, byUser[userID])
	}
	wg.Wait()

	s.log.WithFields(logrus.Fields{
		"users":    len(users),
		"monitors": len(monitors),
		"took":     s.clock().Sub(started).String(),
	}).Debug("Poll tick finished")
	return reports
}

func (s *PollScheduler) Stop() {
	s.log.Info("Stopping poll scheduler...")
	ctx := s.cronEngine.Stop() // waits for running jobs
	<-ctx.Done()
	s.log.Info("Poll scheduler gracefully stopped.")
}
