package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"inbox_monitor/internal/domain/ledger"
)

func TestLedgerRepositoryClaimOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewLedgerRepository(newTestConn(t))

	if ok, err := repo.HasClaimed(ctx, "u1", "msg-1"); err != nil || ok {
		t.Fatalf("HasClaimed before claim = %v, %v", ok, err)
	}
	res, err := repo.TryClaim(ctx, "u1", "msg-1", "thread-1")
	if err != nil || res != ledger.Claimed {
		t.Fatalf("first TryClaim = %s, %v", res, err)
	}
	res, err = repo.TryClaim(ctx, "u1", "msg-1", "thread-1")
	if err != nil || res != ledger.AlreadyClaimed {
		t.Fatalf("second TryClaim = %s, %v", res, err)
	}
	if ok, err := repo.HasClaimed(ctx, "u1", "msg-1"); err != nil || !ok {
		t.Fatalf("HasClaimed after claim = %v, %v", ok, err)
	}

	// Same item id for another user is a separate key.
	if res, err := repo.TryClaim(ctx, "u2", "msg-1", ""); err != nil || res != ledger.Claimed {
		t.Fatalf("other user TryClaim = %s, %v", res, err)
	}

	rec, err := repo.Get(ctx, "u1", "msg-1")
	if err != nil || rec == nil || rec.ThreadID != "thread-1" {
		t.Fatalf("Get = %+v, %v", rec, err)
	}
	if rec, err := repo.Get(ctx, "u1", "missing"); err != nil || rec != nil {
		t.Fatalf("Get missing = %+v, %v", rec, err)
	}
}

func TestLedgerRepositoryConcurrentClaimExactlyOne(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewLedgerRepository(newTestConn(t))

	var (
		wg      sync.WaitGroup
		claimed atomic.Int32
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := repo.TryClaim(ctx, "u1", "msg-42", "t-42")
			if err != nil {
				t.Errorf("TryClaim: %v", err)
				return
			}
			if res == ledger.Claimed {
				claimed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := claimed.Load(); got != 1 {
		t.Fatalf("claimed = %d, want 1", got)
	}
}

func TestLedgerRepositoryStoreFailure(t *testing.T) {
	t.Parallel()
	conn := newTestConn(t)
	repo := NewLedgerRepository(conn)
	_ = conn.Close()

	res, err := repo.TryClaim(context.Background(), "u1", "msg-1", "")
	if !errors.Is(err, ledger.ErrStoreFailure) {
		t.Fatalf("err = %v, want ErrStoreFailure", err)
	}
	if res == ledger.Claimed || res == ledger.AlreadyClaimed {
		t.Fatalf("result = %s on failure", res)
	}
}
