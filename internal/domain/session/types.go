// Package session turns auth provider events into a validated local
// session with a resolved profile.
package session

import (
	"fmt"
	"time"

	"github.com/verdant-market/storecore/internal/domain/auth"
)

// State is the controller's position in its lifecycle.
type State string

const (
	// StateUninitialized is the state before Start.
	StateUninitialized State = "uninitialized"
	// StateValidating is the transient state while a provider event is
	// being validated and the profile resolved.
	StateValidating State = "validating"
	// StateAuthenticated means a valid session and resolved profile exist.
	StateAuthenticated State = "authenticated"
	// StateUnauthenticated means no session is held.
	StateUnauthenticated State = "unauthenticated"
	// StateError means the last transition failed terminally.
	StateError State = "error"
)

// Lifecycle parameters.
const (
	// MaxSessionAge is the ceiling on provider session age. A session
	// whose last sign-in is older is forced out rather than trusted.
	MaxSessionAge = 24 * time.Hour

	// DefaultRecheckInterval is how often the controller re-validates
	// local state against the provider.
	DefaultRecheckInterval = 5 * time.Minute

	// profileAttempts and profileRetryDelay bound profile resolution.
	profileAttempts   = 3
	profileRetryDelay = time.Second

	// remoteCallTimeout bounds each store call during validation.
	remoteCallTimeout = 5 * time.Second
)

// Session is the validated local session. Valid implies the session is
// unexpired and a resolved Profile exists.
type Session struct {
	UserID    string
	Email     string
	Role      auth.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	Valid     bool
}

// ExpiredAt reports whether the session has expired as of now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Source provides read access to the current session. Controller is
// the canonical implementation; consumers that only need to know "who
// is signed in" depend on this rather than the full controller.
type Source interface {
	CurrentSession() *Session
}

// Profile is the remote-store user record, cached for the session
// lifetime and created lazily when missing.
type Profile struct {
	UserID   string
	FullName string
	Role     auth.Role
}

// IntegrityError means a provider event was missing required fields.
// Always fatal to the current session: the controller performs a full
// local-state cleanup rather than keep a corrupt session.
type IntegrityError struct {
	Field string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("session payload missing required field: %s", e.Field)
}
