package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/verdant-market/storecore/internal/domain/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingRevalidator struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRevalidator) Revalidate(ctx context.Context) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
}

func (r *countingRevalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestMonitor_SweepOnce(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.New(ratelimit.Config{}, testLogger())
	rev := &countingRevalidator{}
	m := New(limiter, rev, testLogger(), time.Hour)

	limiter.Record("auth.sign_in", "a@b.com")

	m.SweepOnce(context.Background())

	if got := rev.count(); got != 1 {
		t.Errorf("Revalidate calls = %d, want 1", got)
	}
	snap := m.Stat()
	if snap.Sweeps != 1 {
		t.Errorf("Sweeps = %d, want 1", snap.Sweeps)
	}
	if snap.TrackedKeys != 1 {
		t.Errorf("TrackedKeys = %d, want 1", snap.TrackedKeys)
	}
	if snap.BlockedKeys != 0 {
		t.Errorf("BlockedKeys = %d, want 0", snap.BlockedKeys)
	}
}

func TestMonitor_SnapshotCountsBlockedKeys(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.New(ratelimit.Config{MaxAttempts: 1}, testLogger())
	m := New(limiter, nil, testLogger(), time.Hour)

	limiter.Record("auth.sign_in", "a@b.com")
	limiter.Record("auth.sign_in", "a@b.com")

	if got := m.Stat().BlockedKeys; got != 1 {
		t.Errorf("BlockedKeys = %d, want 1", got)
	}
}

func TestMonitor_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	limiter := ratelimit.New(ratelimit.Config{}, testLogger())
	rev := &countingRevalidator{}
	m := New(limiter, rev, testLogger(), 5*time.Millisecond)

	m.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for rev.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("sweep never ran")
		case <-time.After(time.Millisecond):
		}
	}

	m.Stop()
	m.Stop() // idempotent
}
