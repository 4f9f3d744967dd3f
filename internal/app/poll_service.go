package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"inbox_monitor/internal/domain/activity"
	"inbox_monitor/internal/domain/inbound"
	"inbox_monitor/internal/domain/ledger"
	"inbox_monitor/internal/domain/monitor"
	"inbox_monitor/internal/domain/quota"
	"inbox_monitor/internal/domain/schedule"
)

// ErrInvalidMonitor is returned by RunCycle for a monitor that cannot be
// polled, such as one with a non-positive max count.
var ErrInvalidMonitor = errors.New("invalid monitor")

const defaultFetchLookback = 24 * time.Hour

// CycleOutcome summarizes how far a poll cycle got.
type CycleOutcome string

const (
	OutcomeSkipped    CycleOutcome = "skipped"    // schedule said no
	OutcomeSuppressed CycleOutcome = "suppressed" // already responded this period
	OutcomeDenied     CycleOutcome = "denied"     // quota exhausted
	OutcomeChecked    CycleOutcome = "checked"
	OutcomeAborted    CycleOutcome = "aborted"
)

// CycleReport describes one RunCycle call.
type CycleReport struct {
	UserID    string
	MonitorID string
	PeriodID  string
	Decision  schedule.Decision
	Outcome   CycleOutcome
	Quota     quota.Outcome

	Candidates int
	Filtered   int
	Skipped    int // already claimed
	Responded  int
	Failed     int
	// Interrupted is set when the context ended before every candidate was seen.
	Interrupted bool
}

// PollDeps are the collaborators of a PollService. Activity may be nil.
type PollDeps struct {
	Quota     quota.Store
	Ledger    ledger.Ledger
	State     monitor.StateStore
	Source    inbound.Source
	Generator inbound.Generator
	Responder inbound.Responder
	Activity  activity.Sink
}

// PollService runs poll cycles. It holds no per-monitor state of its own,
// so any number of cycles may run concurrently, including two for the same
// monitor.
type PollService struct {
	quota     quota.Store
	ledger    ledger.Ledger
	state     monitor.StateStore
	source    inbound.Source
	generator inbound.Generator
	responder inbound.Responder
	activity  activity.Sink

	log      *logrus.Entry
	lookback time.Duration
	newID    func() string
	clock    func() time.Time
}

func NewPollService(deps PollDeps, log *logrus.Entry, lookback time.Duration) *PollService {
	if lookback <= 0 {
		lookback = defaultFetchLookback
	}
	return &PollService{
		quota:     deps.Quota,
		ledger:    deps.Ledger,
		state:     deps.State,
		source:    deps.Source,
		generator: deps.Generator,
		responder: deps.Responder,
		activity:  deps.Activity,
		log:       log.WithField("component", "poll"),
		lookback:  lookback,
		newID:     uuid.NewString,
		clock:     time.Now,
	}
}

// RunCycle performs one check of m at now. A returned error means the cycle
// aborted before any item was touched; per-item failures only show up in the
// report and the activity log.
func (s *PollService) RunCycle(ctx context.Context, m monitor.Monitor, now time.Time) (*CycleReport, error) {
	report := &CycleReport{UserID: m.UserID, MonitorID: m.ID}
	log := s.log.WithFields(logrus.Fields{"user_id": m.UserID, "monitor_id": m.ID})

	if m.MaxCount <= 0 {
		report.Outcome = OutcomeAborted
		return report, fmt.Errorf("%w: monitor %s has max_count %d", ErrInvalidMonitor, m.ID, m.MaxCount)
	}

	last, err := s.state.LastCheckedAt(ctx, m.ID)
	if err != nil {
		report.Outcome = OutcomeAborted
		return report, fmt.Errorf("failed to load last check for monitor %s: %w", m.ID, err)
	}

	decision := schedule.Evaluate(m.Schedule, now, last)
	report.Decision = decision
	report.PeriodID = decision.PeriodID
	if !decision.Eligible {
		report.Outcome = OutcomeSkipped
		if decision.Reason == schedule.ReasonInvalidSchedule {
			log.Warn("Monitor has an invalid schedule; skipping")
		} else {
			log.WithField("reason", decision.Reason).Debug("Monitor not eligible")
		}
		return report, nil
	}
	log = log.WithField("period_id", decision.PeriodID)

	if m.StopPolicy.SuppressesPeriod() {
		done, err := s.state.HasResponded(ctx, m.ID, decision.PeriodID)
		if err != nil {
			report.Outcome = OutcomeAborted
			return report, fmt.Errorf("failed to read response marker for monitor %s: %w", m.ID, err)
		}
		if done {
			report.Outcome = OutcomeSuppressed
			log.WithField("stop_policy", m.StopPolicy).Debug("Already responded this period")
			return report, nil
		}
	}

	q, err := s.quota.TryIncrement(ctx, m.UserID, m.ID, decision.PeriodID, m.MaxCount)
	if err != nil {
		report.Outcome = OutcomeAborted
		return report, fmt.Errorf("failed to charge quota for monitor %s: %w", m.ID, err)
	}
	report.Quota = q
	if !q.Allowed {
		report.Outcome = OutcomeDenied
		log.WithField("quota", q.String()).Info("Quota exhausted for period")
		return report, nil
	}

	// The quota is spent. Bookkeeping from here on must outlive cancellation.
	book := context.WithoutCancel(ctx)
	report.Outcome = OutcomeChecked

	if err := s.state.MarkChecked(book, m.ID, now); err != nil {
		log.WithError(err).Warn("Failed to record check time")
	}

	// Items skipped by an earlier cycle stay in the window until answered;
	// the ledger drops the answered ones.
	since := now.Add(-s.lookback)
	items, err := s.source.FetchCandidates(ctx, m.UserID, m.Filter, since)
	if err != nil {
		report.Failed++
		log.WithError(err).Error("Failed to fetch candidates")
		s.record(book, log, m, "", activity.StatusError, "fetch: "+err.Error())
		return report, nil
	}
	report.Candidates = len(items)

	for _, item := range items {
		if ctx.Err() != nil {
			report.Interrupted = true
			log.WithError(ctx.Err()).Warn("Cycle interrupted; remaining items wait for the next tick")
			break
		}
		fresh := last == nil || !item.ReceivedAt.Before(*last)
		if !s.handleItem(ctx, book, log.WithField("item_id", item.ID), m, decision.PeriodID, item, fresh, report) {
			continue
		}
		if m.StopPolicy == monitor.StopAfterFirst {
			break
		}
	}

	log.WithFields(logrus.Fields{
		"candidates": report.Candidates,
		"responded":  report.Responded,
		"filtered":   report.Filtered,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
		"quota":      q.String(),
	}).Info("Poll cycle finished")
	return report, nil
}

// handleItem claims and answers one candidate. It reports whether a response
// was delivered. fresh marks items received since the previous check; only
// those are logged as FILTERED, so the lookback window does not repeat them.
func (s *PollService) handleItem(ctx, book context.Context, log *logrus.Entry, m monitor.Monitor, periodID string, item inbound.Item, fresh bool, report *CycleReport) bool {
	if !m.Filter.MatchesSender(item.Sender) {
		return false
	}
	if !m.Filter.MatchesKeywords(item.Subject, item.Body) {
		report.Filtered++
		if fresh {
			s.record(book, log, m, item.ID, activity.StatusFiltered, "no keyword matched")
		}
		return false
	}

	seen, err := s.ledger.HasClaimed(ctx, m.UserID, item.ID)
	if err != nil {
		log.WithError(err).Warn("Claim pre-check failed; relying on claim")
	} else if seen {
		report.Skipped++
		return false
	}

	res, err := s.ledger.TryClaim(ctx, m.UserID, item.ID, item.ThreadID)
	if err != nil {
		report.Failed++
		log.WithError(err).Error("Failed to claim item; will retry next tick")
		s.record(book, log, m, item.ID, activity.StatusError, "claim: "+err.Error())
		return false
	}
	if res == ledger.AlreadyClaimed {
		report.Skipped++
		log.Debug("Item already claimed")
		return false
	}

	s.record(book, log, m, item.ID, activity.StatusNew, item.Subject)

	content, err := s.generator.Generate(ctx, m, item)
	if err != nil {
		report.Failed++
		log.WithError(err).Error("Failed to generate reply")
		s.record(book, log, m, item.ID, activity.StatusError, "generate: "+err.Error())
		return false
	}
	if err := s.responder.Respond(ctx, item, content); err != nil {
		report.Failed++
		log.WithError(err).Error("Failed to send reply")
		s.record(book, log, m, item.ID, activity.StatusError, "respond: "+err.Error())
		return false
	}

	report.Responded++
	s.record(book, log, m, item.ID, activity.StatusResponded, "replied to "+monitor.Address(item.Sender))
	if m.StopPolicy.SuppressesPeriod() {
		if err := s.state.MarkResponded(book, m.ID, periodID, s.clock()); err != nil {
			log.WithError(err).Warn("Failed to record response marker")
		}
	}
	log.Info("Replied to item")
	return true
}

func (s *PollService) record(ctx context.Context, log *logrus.Entry, m monitor.Monitor, itemID string, status activity.Status, detail string) {
	if s.activity == nil {
		return
	}
	e := activity.Entry{
		ID:        s.newID(),
		UserID:    m.UserID,
		MonitorID: m.ID,
		ItemID:    itemID,
		Status:    status,
		Detail:    detail,
		CreatedAt: s.clock(),
	}
	if err := s.activity.Record(ctx, e); err != nil {
		log.WithError(err).WithField("status", status).Warn("Failed to record activity")
	}
}

// RunUser runs one cycle per monitor owned by userID, concurrently. Reports
// keep the order of the matching monitors; errors are joined.
func (s *PollService) RunUser(ctx context.Context, userID string, monitors []monitor.Monitor, now time.Time) ([]*CycleReport, error) {
	owned := make([]monitor.Monitor, 0, len(monitors))
	for _, m := range monitors {
		if m.UserID == userID {
			owned = append(owned, m)
		}
	}

	reports := make([]*CycleReport, len(owned))
	errs := make([]error, len(owned))
	var wg sync.WaitGroup
	for i, m := range owned {
		wg.Add(1)
		go func(i int, m monitor.Monitor) {
			defer wg.Done()
			reports[i], errs[i] = s.RunCycle(ctx, m, now)
		}(i, m)
	}
	wg.Wait()
	return reports, errors.Join(errs...)
}
