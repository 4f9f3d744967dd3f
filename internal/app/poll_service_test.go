package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"inbox_monitor/internal/domain/activity"
	"inbox_monitor/internal/domain/inbound"
	"inbox_monitor/internal/domain/ledger"
	"inbox_monitor/internal/domain/monitor"
	"inbox_monitor/internal/domain/quota"
	"inbox_monitor/internal/domain/schedule"
	"inbox_monitor/internal/infra/memory"
)

type staticSource struct {
	mu    sync.Mutex
	items []inbound.Item
	err   error
	calls int
}

func (s *staticSource) FetchCandidates(ctx context.Context, userID string, f monitor.Filter, since time.Time) ([]inbound.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]inbound.Item, 0, len(s.items))
	for _, it := range s.items {
		if it.UserID == userID && !it.ReceivedAt.Before(since) {
			out = append(out, it)
		}
	}
	return out, nil
}

type fixedGenerator struct{}

func (fixedGenerator) Generate(ctx context.Context, m monitor.Monitor, item inbound.Item) (string, error) {
	return "Out of office: " + item.Subject, nil
}

type recordingResponder struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
}

func (r *recordingResponder) Respond(ctx context.Context, item inbound.Item, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[item.ID] {
		return errors.New("smtp: 451 try again later")
	}
	r.sent = append(r.sent, item.ID)
	return nil
}

func (r *recordingResponder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type failingQuota struct{ quota.Store }

func (failingQuota) TryIncrement(ctx context.Context, userID, monitorID, periodID string, max int) (quota.Outcome, error) {
	return quota.Outcome{}, fmt.Errorf("%w: connection refused", quota.ErrStoreFailure)
}

// flakyLedger fails the first claim and then delegates.
type flakyLedger struct {
	ledger.Ledger
	mu     sync.Mutex
	failed bool
}

func (l *flakyLedger) TryClaim(ctx context.Context, userID, itemID, threadID string) (ledger.ClaimResult, error) {
	l.mu.Lock()
	if !l.failed {
		l.failed = true
		l.mu.Unlock()
		return 0, fmt.Errorf("%w: deadlock detected", ledger.ErrStoreFailure)
	}
	l.mu.Unlock()
	return l.Ledger.TryClaim(ctx, userID, itemID, threadID)
}

type fixture struct {
	svc       *PollService
	quota     *memory.QuotaStore
	ledger    *memory.Ledger
	state     *memory.StateStore
	activity  *memory.ActivityLog
	source    *staticSource
	responder *recordingResponder
	hook      *test.Hook
}

func newFixture(t *testing.T, items ...inbound.Item) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := &fixture{
		quota:     memory.NewQuotaStore(),
		ledger:    memory.NewLedger(),
		state:     memory.NewStateStore(),
		activity:  memory.NewActivityLog(),
		source:    &staticSource{items: items},
		responder: &recordingResponder{failFor: map[string]bool{}},
		hook:      hook,
	}
	f.svc = NewPollService(PollDeps{
		Quota:     f.quota,
		Ledger:    f.ledger,
		State:     f.state,
		Source:    f.source,
		Generator: fixedGenerator{},
		Responder: f.responder,
		Activity:  f.activity,
	}, logrus.NewEntry(logger), 24*time.Hour)
	return f
}

func (f *fixture) statuses(s activity.Status) int {
	n := 0
	for _, e := range f.activity.Entries() {
		if e.Status == s {
			n++
		}
	}
	return n
}

func workdayMonitor(t *testing.T, maxCount int, policy monitor.StopPolicy) monitor.Monitor {
	t.Helper()
	def, err := schedule.Build(schedule.Config{
		Type:                 "recurring",
		DaysOfWeek:           []int{1, 2, 3, 4, 5},
		TimeWindowStart:      "09:00",
		TimeWindowEnd:        "17:00",
		CheckIntervalMinutes: 15,
	})
	if err != nil {
		t.Fatalf("schedule.Build: %v", err)
	}
	return monitor.Monitor{
		ID:         "m1",
		UserID:     "u1",
		Filter:     monitor.Filter{Sender: "boss@example.com"},
		Schedule:   def,
		MaxCount:   maxCount,
		StopPolicy: policy,
	}
}

var monday9 = time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)

func item(id string, at time.Time) inbound.Item {
	return inbound.Item{ID: id, UserID: "u1", ThreadID: "t-" + id, Sender: "Boss <boss@example.com>", Subject: "ping " + id, ReceivedAt: at}
}

func TestRunCycleQuotaPerPeriod(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := workdayMonitor(t, 10, monitor.StopNever)
	ctx := context.Background()

	now := monday9
	for i := 1; i <= 10; i++ {
		r, err := f.svc.RunCycle(ctx, m, now)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if r.Outcome != OutcomeChecked || r.Quota.Current != i {
			t.Fatalf("tick %d: %+v", i, r)
		}
		now = now.Add(15 * time.Minute)
	}

	r, err := f.svc.RunCycle(ctx, m, now)
	if err != nil {
		t.Fatalf("tick 11: %v", err)
	}
	if r.Outcome != OutcomeDenied || r.Quota.Current != 10 || r.Quota.Max != 10 {
		t.Fatalf("tick 11 = %+v, want denied 10/10", r)
	}
	if f.source.calls != 10 {
		t.Fatalf("denied cycle fetched items: %d calls", f.source.calls)
	}

	tuesday := monday9.AddDate(0, 0, 1)
	r, err = f.svc.RunCycle(ctx, m, tuesday)
	if err != nil {
		t.Fatalf("next day: %v", err)
	}
	if r.Outcome != OutcomeChecked || r.PeriodID != "2026-10-13" || r.Quota.Current != 1 {
		t.Fatalf("next day = %+v", r)
	}
}

func TestRunCycleSkipsWhenNotEligible(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := workdayMonitor(t, 10, monitor.StopNever)
	ctx := context.Background()

	r, _ := f.svc.RunCycle(ctx, m, monday9.Add(-time.Hour))
	if r.Outcome != OutcomeSkipped || r.Decision.Reason != schedule.ReasonOutsideWindow {
		t.Fatalf("before window = %+v", r)
	}

	if _, err := f.svc.RunCycle(ctx, m, monday9); err != nil {
		t.Fatal(err)
	}
	r, _ = f.svc.RunCycle(ctx, m, monday9.Add(14*time.Minute))
	if r.Outcome != OutcomeSkipped || r.Decision.Reason != schedule.ReasonTooSoon {
		t.Fatalf("14m later = %+v", r)
	}
	if list, _ := f.quota.List(ctx, "u1"); list[0].CurrentCount != 1 {
		t.Fatalf("skipped tick charged quota: %+v", list[0])
	}
}

func TestRunCycleStopAfterFirst(t *testing.T) {
	t.Parallel()
	f := newFixture(t, item("a", monday9.Add(-time.Hour)), item("b", monday9.Add(-30*time.Minute)))
	m := workdayMonitor(t, 10, monitor.StopAfterFirst)
	ctx := context.Background()

	r, err := f.svc.RunCycle(ctx, m, monday9)
	if err != nil {
		t.Fatal(err)
	}
	if r.Responded != 1 || f.responder.count() != 1 {
		t.Fatalf("first cycle responded %d, sent %d", r.Responded, f.responder.count())
	}

	// A new item arrives; quota remains but the period is done.
	f.source.mu.Lock()
	f.source.items = append(f.source.items, item("c", monday9.Add(5*time.Minute)))
	f.source.mu.Unlock()

	r, err = f.svc.RunCycle(ctx, m, monday9.Add(15*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeSuppressed {
		t.Fatalf("second cycle = %+v, want suppressed", r)
	}
	if f.responder.count() != 1 {
		t.Fatalf("sent %d replies, want 1", f.responder.count())
	}
	if list, _ := f.quota.List(ctx, "u1"); list[0].CurrentCount >= list[0].MaxCount {
		t.Fatalf("quota exhausted: %+v", list[0])
	}

	// The next day is a new period.
	r, _ = f.svc.RunCycle(ctx, m, monday9.AddDate(0, 0, 1))
	if r.Outcome != OutcomeChecked {
		t.Fatalf("next day = %+v", r)
	}
}

func TestRunCycleStopAfterEachPeriodFinishesCycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, item("a", monday9.Add(-time.Hour)), item("b", monday9.Add(-30*time.Minute)))
	m := workdayMonitor(t, 10, monitor.StopAfterEachPeriod)

	r, err := f.svc.RunCycle(context.Background(), m, monday9)
	if err != nil {
		t.Fatal(err)
	}
	if r.Responded != 2 {
		t.Fatalf("responded = %d, want 2", r.Responded)
	}
	r, _ = f.svc.RunCycle(context.Background(), m, monday9.Add(time.Hour))
	if r.Outcome != OutcomeSuppressed {
		t.Fatalf("later cycle = %+v, want suppressed", r)
	}
}

func TestOverlappingCyclesRespondOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, item("x", monday9.Add(-time.Minute)))
	m := workdayMonitor(t, 10, monitor.StopNever)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.RunCycle(context.Background(), m, monday9); err != nil {
				t.Errorf("RunCycle: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.statuses(activity.StatusResponded); got != 1 {
		t.Fatalf("RESPONDED entries = %d, want 1", got)
	}
	if got := f.responder.count(); got != 1 {
		t.Fatalf("replies sent = %d, want 1", got)
	}
}

func TestRunCycleQuotaFailureAborts(t *testing.T) {
	t.Parallel()
	f := newFixture(t, item("a", monday9.Add(-time.Minute)))
	f.svc.quota = failingQuota{}
	m := workdayMonitor(t, 10, monitor.StopNever)

	r, err := f.svc.RunCycle(context.Background(), m, monday9)
	if !errors.Is(err, quota.ErrStoreFailure) {
		t.Fatalf("err = %v, want ErrStoreFailure", err)
	}
	if r.Outcome != OutcomeAborted {
		t.Fatalf("outcome = %s", r.Outcome)
	}
	if f.source.calls != 0 || len(f.ledger.Records()) != 0 {
		t.Fatal("aborted cycle touched items")
	}
	if at, _ := f.state.LastCheckedAt(context.Background(), m.ID); at != nil {
		t.Fatal("aborted cycle recorded a check")
	}
}

func TestRunCycleLedgerFailureSkipsItem(t *testing.T) {
	t.Parallel()
	f := newFixture(t, item("a", monday9.Add(-time.Minute)))
	f.svc.ledger = &flakyLedger{Ledger: f.ledger}
	m := workdayMonitor(t, 10, monitor.StopNever)
	ctx := context.Background()

	r, err := f.svc.RunCycle(ctx, m, monday9)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if r.Failed != 1 || r.Responded != 0 || f.statuses(activity.StatusError) != 1 {
		t.Fatalf("first cycle = %+v", r)
	}

	// The item predates the first check and is still answered on the next tick.
	r, err = f.svc.RunCycle(ctx, m, monday9.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if r.Candidates != 1 || r.Responded != 1 {
		t.Fatalf("retry cycle = %+v", r)
	}
	if got := f.responder.sent; len(got) != 1 || got[0] != "a" {
		t.Fatalf("sent = %v, want [a]", got)
	}
}

func TestRunCycleFetchFailureRetriesNextTick(t *testing.T) {
	t.Parallel()
	f := newFixture(t, item("a", monday9.Add(-time.Minute)))
	f.source.err = errors.New("imap: connection reset")
	m := workdayMonitor(t, 10, monitor.StopNever)
	ctx := context.Background()

	r, err := f.svc.RunCycle(ctx, m, monday9)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if r.Outcome != OutcomeChecked || r.Failed != 1 || f.statuses(activity.StatusError) != 1 {
		t.Fatalf("failed fetch = %+v", r)
	}

	f.source.mu.Lock()
	f.source.err = nil
	f.source.mu.Unlock()

	r, err = f.svc.RunCycle(ctx, m, monday9.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if r.Candidates != 1 || r.Responded != 1 {
		t.Fatalf("retry cycle = %+v", r)
	}
}

// cancelingResponder cancels the cycle's context after its first reply.
type cancelingResponder struct {
	recordingResponder
	cancel context.CancelFunc
}

func (r *cancelingResponder) Respond(ctx context.Context, item inbound.Item, content string) error {
	err := r.recordingResponder.Respond(ctx, item, content)
	r.cancel()
	return err
}

func TestRunCycleInterruptedItemsWaitForNextTick(t *testing.T) {
	t.Parallel()
	f := newFixture(t, item("a", monday9.Add(-time.Hour)), item("b", monday9.Add(-30*time.Minute)))
	m := workdayMonitor(t, 10, monitor.StopNever)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	responder := &cancelingResponder{cancel: cancel}
	f.svc.responder = responder

	r, err := f.svc.RunCycle(ctx, m, monday9)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !r.Interrupted || r.Responded != 1 {
		t.Fatalf("interrupted cycle = %+v", r)
	}
	if at, _ := f.state.LastCheckedAt(context.Background(), m.ID); at == nil {
		t.Fatal("interrupted cycle lost its check time")
	}

	f.svc.responder = &responder.recordingResponder
	r, err = f.svc.RunCycle(context.Background(), m, monday9.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if r.Candidates != 2 || r.Skipped != 1 || r.Responded != 1 {
		t.Fatalf("next cycle = %+v", r)
	}
	if got := responder.sent; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("sent = %v, want [a b]", got)
	}
}

func TestRunCycleFilteredItemLoggedOnce(t *testing.T) {
	t.Parallel()
	it := item("a", monday9.Add(-time.Minute))
	it.Subject = "lunch?"
	f := newFixture(t, it)
	m := workdayMonitor(t, 10, monitor.StopNever)
	m.Filter.Keywords = []string{"urgent"}

	for i := 0; i < 3; i++ {
		if _, err := f.svc.RunCycle(context.Background(), m, monday9.Add(time.Duration(i)*15*time.Minute)); err != nil {
			t.Fatalf("RunCycle: %v", err)
		}
	}
	if got := f.statuses(activity.StatusFiltered); got != 1 {
		t.Fatalf("FILTERED entries = %d, want 1", got)
	}
}

func TestRunCycleResponderFailureContinues(t *testing.T) {
	t.Parallel()
	f := newFixture(t, item("a", monday9.Add(-time.Hour)), item("b", monday9.Add(-time.Minute)))
	f.responder.failFor["a"] = true
	m := workdayMonitor(t, 10, monitor.StopNever)

	r, err := f.svc.RunCycle(context.Background(), m, monday9)
	if err != nil {
		t.Fatal(err)
	}
	if r.Failed != 1 || r.Responded != 1 {
		t.Fatalf("report = %+v", r)
	}
	// A failed send still spends the item.
	if ok, _ := f.ledger.HasClaimed(context.Background(), "u1", "a"); !ok {
		t.Fatal("failed item was not claimed")
	}
}

func TestRunCycleKeywordFilter(t *testing.T) {
	t.Parallel()
	it := item("a", monday9.Add(-time.Minute))
	it.Subject = "lunch?"
	f := newFixture(t, it)
	m := workdayMonitor(t, 10, monitor.StopNever)
	m.Filter.Keywords = []string{"urgent"}

	r, _ := f.svc.RunCycle(context.Background(), m, monday9)
	if r.Filtered != 1 || r.Responded != 0 || f.statuses(activity.StatusFiltered) != 1 {
		t.Fatalf("report = %+v", r)
	}
	if ok, _ := f.ledger.HasClaimed(context.Background(), "u1", "a"); ok {
		t.Fatal("filtered item was claimed")
	}
}

func TestRunCycleInvalidScheduleLogsWarning(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := workdayMonitor(t, 10, monitor.StopNever)
	m.Schedule = schedule.Definition{}

	r, err := f.svc.RunCycle(context.Background(), m, monday9)
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != OutcomeSkipped || r.Decision.Reason != schedule.ReasonInvalidSchedule {
		t.Fatalf("report = %+v", r)
	}
	last := f.hook.LastEntry()
	if last == nil || last.Level != logrus.WarnLevel || last.Data["monitor_id"] != "m1" {
		t.Fatalf("last log entry = %+v", last)
	}
}

func TestRunCycleRejectsNonPositiveMax(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := workdayMonitor(t, 0, monitor.StopNever)
	if _, err := f.svc.RunCycle(context.Background(), m, monday9); !errors.Is(err, ErrInvalidMonitor) {
		t.Fatalf("err = %v, want ErrInvalidMonitor", err)
	}
}

func TestRunUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	a := workdayMonitor(t, 5, monitor.StopNever)
	b := a
	b.ID = "m2"
	other := a
	other.ID, other.UserID = "m3", "u2"

	reports, err := f.svc.RunUser(context.Background(), "u1", []monitor.Monitor{a, other, b}, monday9)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 || reports[0].MonitorID != "m1" || reports[1].MonitorID != "m2" {
		t.Fatalf("reports = %+v", reports)
	}
}
