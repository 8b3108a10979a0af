// Package csrf manages the per-session anti-forgery token.
//
// Exactly one token is authoritative at a time: generating a new token
// invalidates the previous one. The token is session-scoped, in-memory
// state with no persistence across reloads, by design.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Token lifecycle parameters.
const (
	// DefaultTTL is how long a generated token stays valid.
	DefaultTTL = 30 * time.Minute
	// DefaultRefreshWindow is the remaining-lifetime threshold below
	// which callers should proactively rotate rather than fail
	// mid-operation.
	DefaultRefreshWindow = 5 * time.Minute
)

// Token is the anti-forgery token accompanying mutating requests.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Manager owns the single active token for a session context.
// Thread-safe, single-writer.
type Manager struct {
	mu            sync.Mutex
	token         *Token
	ttl           time.Duration
	refreshWindow time.Duration
	now           func() time.Time
}

// NewManager creates a Manager with the default TTL and refresh window.
func NewManager() *Manager {
	return NewManagerWithClock(DefaultTTL, DefaultRefreshWindow, time.Now)
}

// NewManagerWithClock creates a Manager with custom parameters and an
// injected clock for tests.
func NewManagerWithClock(ttl, refreshWindow time.Duration, now func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if refreshWindow <= 0 {
		refreshWindow = DefaultRefreshWindow
	}
	return &Manager{
		ttl:           ttl,
		refreshWindow: refreshWindow,
		now:           now,
	}
}

// Generate mints a fresh token and makes it the single authoritative
// token, invalidating any previous one.
func (m *Manager) Generate() (Token, error) {
	value, err := randomValue()
	if err != nil {
		return Token{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.token = &Token{
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	return *m.token, nil
}

// Current returns the active token, minting a fresh one transparently
// when none exists or the stored token has expired (lazy renewal).
func (m *Manager) Current() (Token, error) {
	m.mu.Lock()
	if m.token != nil && m.now().Before(m.token.ExpiresAt) {
		t := *m.token
		m.mu.Unlock()
		return t, nil
	}
	m.mu.Unlock()
	return m.Generate()
}

// Validate reports whether candidate matches the active unexpired
// token. Comparison is constant-time. An empty candidate, a rotated
// value, or an expired token all fail.
func (m *Manager) Validate(candidate string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil || candidate == "" {
		return false
	}
	if !m.now().Before(m.token.ExpiresAt) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(m.token.Value)) == 1
}

// ShouldRefresh reports whether the active token is inside the refresh
// window, so callers can rotate before an operation rather than fail
// mid-flight. True when no token exists.
func (m *Manager) ShouldRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		return true
	}
	return m.token.ExpiresAt.Sub(m.now()) < m.refreshWindow
}

// Clear drops the active token. Called on sign-out.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
}

// randomValue returns 32 bytes of crypto/rand as 64 hex characters.
func randomValue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
