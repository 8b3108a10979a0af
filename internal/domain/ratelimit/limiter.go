package ratelimit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Limiter is a sliding-window rate limiter keyed by operation +
// identity. State is in-memory and session-scoped by design: counters
// do not survive a process restart, and the limiter is constructed and
// destroyed with its owning client rather than held in package state.
//
// Thread-safe. Includes background cleanup to prevent unbounded growth.
type Limiter struct {
	cfg     Config
	exempt  map[string]bool
	entries map[string]*Entry

	mu       sync.Mutex
	now      func() time.Time
	logger   *slog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once

	cleanupInterval time.Duration
}

// defaultCleanupInterval is how often the background sweep runs.
const defaultCleanupInterval = 5 * time.Minute

// New creates a Limiter with the given config.
func New(cfg Config, logger *slog.Logger) *Limiter {
	return newLimiter(cfg, logger, time.Now)
}

// NewWithClock creates a Limiter with an injected clock for tests.
func NewWithClock(cfg Config, logger *slog.Logger, now func() time.Time) *Limiter {
	return newLimiter(cfg, logger, now)
}

func newLimiter(cfg Config, logger *slog.Logger, now func() time.Time) *Limiter {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	exempt := make(map[string]bool, len(cfg.ExemptOperations))
	for _, op := range cfg.ExemptOperations {
		exempt[strings.TrimSpace(op)] = true
	}
	return &Limiter{
		cfg:             cfg,
		exempt:          exempt,
		entries:         make(map[string]*Entry),
		now:             now,
		logger:          logger,
		stopChan:        make(chan struct{}),
		cleanupInterval: cfg.CleanupInterval,
	}
}

// Exempt reports whether an operation bypasses limiting entirely.
// The allow-list is configuration, not a per-call-site special case.
func (l *Limiter) Exempt(operation string) bool {
	return l.exempt[operation]
}

// Record registers an attempt for the operation + identity pair.
// A new key starts a window with count 1. An expired window resets to
// count 1. Otherwise the count increments, and crossing MaxAttempts
// blocks the key.
func (l *Limiter) Record(operation, identity string) {
	if l.Exempt(operation) {
		return
	}
	key := FormatKey(operation, identity)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	windowExpired := ok && !e.Blocked && now.Sub(e.FirstAttemptAt) > l.cfg.Window
	blockExpired := ok && e.Blocked && now.Sub(e.LastAttemptAt) >= l.cfg.BlockDuration
	if !ok || windowExpired || blockExpired {
		l.entries[key] = &Entry{
			Key:            key,
			Count:          1,
			FirstAttemptAt: now,
			LastAttemptAt:  now,
		}
		return
	}

	e.Count++
	e.LastAttemptAt = now
	if e.Count > l.cfg.MaxAttempts && !e.Blocked {
		e.Blocked = true
		l.logger.Warn("rate limit block entered",
			"operation", operation,
			"key_fp", Fingerprint(key),
			"count", e.Count,
		)
	}
}

// IsLimited reports whether the operation + identity pair is denied.
// A blocked key clears itself once BlockDuration has elapsed since its
// last attempt, so the next attempt starts a fresh window.
func (l *Limiter) IsLimited(operation, identity string) bool {
	if l.Exempt(operation) {
		return false
	}
	key := FormatKey(operation, identity)

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return false
	}

	now := l.now()
	if e.Blocked {
		if now.Sub(e.LastAttemptAt) < l.cfg.BlockDuration {
			return true
		}
		// Block period elapsed: forget the key entirely.
		delete(l.entries, key)
		return false
	}
	return false
}

// RetryAfter returns how long until a blocked pair is allowed again.
// Zero when the pair is not currently blocked.
func (l *Limiter) RetryAfter(operation, identity string) time.Duration {
	key := FormatKey(operation, identity)

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !e.Blocked {
		return 0
	}
	remaining := l.cfg.BlockDuration - l.now().Sub(e.LastAttemptAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears the entry for one operation + identity pair. Called on
// successful authentication so legitimate retries after a typo are not
// penalized.
func (l *Limiter) Reset(operation, identity string) {
	key := FormatKey(operation, identity)

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// ResetIdentity clears every entry for the identity across all
// operations. This is the sign-out cleanup path.
func (l *Limiter) ResetIdentity(identity string) {
	suffix := ":" + identity

	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.entries {
		if strings.HasSuffix(key, suffix) {
			delete(l.entries, key)
		}
	}
}

// Size returns the number of tracked keys. Useful for tests and the
// metrics gauge.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// BlockedCount returns the number of currently blocked keys, surfaced
// as an anomaly signal by the security monitor.
func (l *Limiter) BlockedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	blocked := 0
	for _, e := range l.entries {
		if e.Blocked && now.Sub(e.LastAttemptAt) < l.cfg.BlockDuration {
			blocked++
		}
	}
	return blocked
}

// StartCleanup starts the background cleanup goroutine. It stops when
// ctx is cancelled or Stop is called.
func (l *Limiter) StartCleanup(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopChan:
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// Sweep removes entries whose window or block period has fully elapsed.
// Called periodically by the cleanup goroutine and by the security
// monitor between ticks.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cleaned := 0
	for key, e := range l.entries {
		expired := false
		if e.Blocked {
			expired = now.Sub(e.LastAttemptAt) >= l.cfg.BlockDuration
		} else {
			expired = now.Sub(e.FirstAttemptAt) > l.cfg.Window
		}
		if expired {
			delete(l.entries, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		l.logger.Debug("rate limiter sweep completed",
			"cleaned_keys", cleaned,
			"remaining_keys", len(l.entries),
		)
	}
}

// Stop gracefully stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (l *Limiter) Stop() {
	l.once.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()
}
