// Package monitor runs the periodic security sweep: it expires stale
// rate-limit entries, forces a session re-check against the provider
// and surfaces anomaly signals for alerting.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/verdant-market/storecore/internal/domain/ratelimit"
)

// DefaultInterval is how often the sweep runs.
const DefaultInterval = 5 * time.Minute

// Revalidator re-checks the local session against the auth provider.
// session.Controller is the canonical implementation.
type Revalidator interface {
	Revalidate(ctx context.Context)
}

// Snapshot is a point-in-time view of the security state, read by the
// metrics endpoint.
type Snapshot struct {
	TrackedKeys int
	BlockedKeys int
	Sweeps      uint64
}

// Monitor owns the sweep goroutine. Start once, Stop on shutdown.
type Monitor struct {
	limiter  *ratelimit.Limiter
	sessions Revalidator
	logger   *slog.Logger
	interval time.Duration

	mu     sync.Mutex
	sweeps uint64

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// New creates a Monitor. A zero interval falls back to DefaultInterval.
func New(limiter *ratelimit.Limiter, sessions Revalidator, logger *slog.Logger, interval time.Duration) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		limiter:  limiter,
		sessions: sessions,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep goroutine. The context cancels outstanding
// provider calls on shutdown.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.SweepOnce(ctx)
			case <-m.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// SweepOnce runs a single sweep pass synchronously.
func (m *Monitor) SweepOnce(ctx context.Context) {
	m.limiter.Sweep()
	if m.sessions != nil {
		m.sessions.Revalidate(ctx)
	}

	m.mu.Lock()
	m.sweeps++
	sweeps := m.sweeps
	m.mu.Unlock()

	blocked := m.limiter.BlockedCount()
	if blocked > 0 {
		m.logger.Warn("security sweep found blocked identities",
			"blocked_keys", blocked,
			"tracked_keys", m.limiter.Size(),
		)
	} else {
		m.logger.Debug("security sweep complete",
			"tracked_keys", m.limiter.Size(),
			"sweeps", sweeps,
		)
	}
}

// Stat returns the current snapshot.
func (m *Monitor) Stat() Snapshot {
	m.mu.Lock()
	sweeps := m.sweeps
	m.mu.Unlock()
	return Snapshot{
		TrackedKeys: m.limiter.Size(),
		BlockedKeys: m.limiter.BlockedCount(),
		Sweeps:      sweeps,
	}
}

// Stop terminates the sweep goroutine and waits for it to exit. Safe
// to call more than once.
func (m *Monitor) Stop() {
	m.once.Do(func() {
		close(m.stopChan)
	})
	m.wg.Wait()
}
