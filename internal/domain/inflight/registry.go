// Package inflight provides the guards that keep sync-engine loads
// race-free: a keyed single-flight registry ("at most one in-flight
// operation per key") and a lifetime flag for discarding responses
// that arrive after their owner was torn down.
package inflight

import "sync"

// Registry tracks in-flight operations by key. A second caller for the
// same key is suppressed, not queued: the concurrent call is a no-op
// and the suppressed caller does not share the first call's result.
type Registry struct {
	mu     sync.Mutex
	active map[string]bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]bool)}
}

// TryAcquire marks key as in-flight. Returns false when an operation
// for key is already outstanding; the caller must then skip the
// operation entirely and must not call Release.
func (r *Registry) TryAcquire(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[key] {
		return false
	}
	r.active[key] = true
	return true
}

// Release clears the in-flight mark for key. Callers pair it with a
// successful TryAcquire, typically via defer.
func (r *Registry) Release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, key)
}

// InFlight reports whether key currently has an outstanding operation.
func (r *Registry) InFlight(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[key]
}

// Lifetime is the mounted flag for a component's lifetime. Responses
// arriving after Close must be discarded to prevent stale writes.
type Lifetime struct {
	mu     sync.RWMutex
	closed bool
}

// NewLifetime creates an open Lifetime.
func NewLifetime() *Lifetime {
	return &Lifetime{}
}

// Alive reports whether the owner is still mounted.
func (l *Lifetime) Alive() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.closed
}

// Close marks the owner unmounted. Idempotent.
func (l *Lifetime) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}
