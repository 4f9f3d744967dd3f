package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"inbox_monitor/internal/domain/activity"
	"inbox_monitor/internal/infra/memory"
)

const testAdminID int64 = 42

func newUsageFixture(t *testing.T) (*UsageService, *memory.QuotaStore, *memory.ActivityLog) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	qs := memory.NewQuotaStore()
	al := memory.NewActivityLog()
	return NewUsageService(qs, al, testAdminID, logrus.NewEntry(logger)), qs, al
}

func TestUsageServiceRequiresAdmin(t *testing.T) {
	t.Parallel()
	svc, _, _ := newUsageFixture(t)
	ctx := context.Background()

	if _, err := svc.ListUsage(ctx, 7, "alice"); !errors.Is(err, ErrAdminNotAuthorized) {
		t.Fatalf("ListUsage err = %v, want ErrAdminNotAuthorized", err)
	}
	if _, err := svc.ResetUsage(ctx, 7, "alice"); !errors.Is(err, ErrAdminNotAuthorized) {
		t.Fatalf("ResetUsage err = %v, want ErrAdminNotAuthorized", err)
	}
	if _, err := svc.RecentActivity(ctx, 7, "alice", 0); !errors.Is(err, ErrAdminNotAuthorized) {
		t.Fatalf("RecentActivity err = %v, want ErrAdminNotAuthorized", err)
	}
	if _, err := svc.ListUsage(ctx, testAdminID, "  "); !errors.Is(err, ErrUserIDRequired) {
		t.Fatalf("blank user err = %v, want ErrUserIDRequired", err)
	}
}

func TestUsageServiceListAndReset(t *testing.T) {
	t.Parallel()
	svc, qs, _ := newUsageFixture(t)
	ctx := context.Background()

	for _, period := range []string{"2026-10-12", "2026-10-13"} {
		for i := 0; i < 3; i++ {
			if _, err := qs.TryIncrement(ctx, "alice", "boss", period, 5); err != nil {
				t.Fatalf("TryIncrement: %v", err)
			}
		}
	}
	if _, err := qs.TryIncrement(ctx, "bob", "bob-boss", "2026-10-12", 5); err != nil {
		t.Fatalf("TryIncrement: %v", err)
	}

	counters, err := svc.ListUsage(ctx, testAdminID, "alice")
	if err != nil {
		t.Fatalf("ListUsage: %v", err)
	}
	if len(counters) != 2 || counters[0].CurrentCount != 3 {
		t.Fatalf("counters = %+v, want two counters at 3", counters)
	}

	n, err := svc.ResetUsage(ctx, testAdminID, " alice ")
	if err != nil {
		t.Fatalf("ResetUsage: %v", err)
	}
	if n != 2 {
		t.Fatalf("reset %d counters, want 2", n)
	}
	counters, _ = svc.ListUsage(ctx, testAdminID, "alice")
	for _, c := range counters {
		if c.CurrentCount != 0 {
			t.Fatalf("counter %s/%s = %d after reset", c.MonitorID, c.PeriodID, c.CurrentCount)
		}
	}
	bob, _ := svc.ListUsage(ctx, testAdminID, "bob")
	if len(bob) != 1 || bob[0].CurrentCount != 1 {
		t.Fatalf("bob counters = %+v, want untouched", bob)
	}
}

func TestUsageServiceRecentActivity(t *testing.T) {
	t.Parallel()
	svc, _, al := newUsageFixture(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_ = al.Record(ctx, activity.Entry{ID: fmt.Sprint(i), UserID: "alice", Status: activity.StatusNew})
	}

	entries, err := svc.RecentActivity(ctx, testAdminID, "alice", 0)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(entries) != defaultActivityLimit || entries[0].ID != "14" {
		t.Fatalf("got %d entries starting at %q, want %d newest first", len(entries), entries[0].ID, defaultActivityLimit)
	}

	entries, _ = svc.RecentActivity(ctx, testAdminID, "alice", 3)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
}

func TestUsageServiceWithoutActivityLog(t *testing.T) {
	t.Parallel()
	logger, _ := test.NewNullLogger()
	svc := NewUsageService(memory.NewQuotaStore(), nil, testAdminID, logrus.NewEntry(logger))

	if _, err := svc.RecentActivity(context.Background(), testAdminID, "alice", 5); !errors.Is(err, ErrActivityUnavailable) {
		t.Fatalf("err = %v, want ErrActivityUnavailable", err)
	}
}
