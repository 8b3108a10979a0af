// Package local implements the auth provider port against an
// in-process identity table with argon2id password hashes. It backs
// the dev server and the tests; production uses the hosted provider.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/verdant-market/storecore/internal/domain/auth"
)

// DefaultSessionTTL is how long a dev session stays valid.
const DefaultSessionTTL = 24 * time.Hour

// Identity is a dev identity with an argon2id password hash.
type Identity struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         auth.Role
}

// Provider is a local auth.Provider. Events fan out synchronously on
// the calling goroutine, matching the hosted SDK's callback contract.
type Provider struct {
	logger     *slog.Logger
	sessionTTL time.Duration
	now        func() time.Time

	mu         sync.RWMutex
	identities map[string]Identity // keyed by email
	current    *auth.Event
	nextSubID  int
	subs       map[int]func(auth.Event)
}

var _ auth.Provider = (*Provider)(nil)

// NewProvider creates an empty Provider. Identities are added with
// AddIdentity or loaded from a seed file.
func NewProvider(logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		logger:     logger,
		sessionTTL: DefaultSessionTTL,
		now:        func() time.Time { return time.Now().UTC() },
		identities: make(map[string]Identity),
		subs:       make(map[int]func(auth.Event)),
	}
}

// SetClock overrides the time source. Tests use this to age sessions.
func (p *Provider) SetClock(now func() time.Time) { p.now = now }

// SetSessionTTL overrides the session lifetime.
func (p *Provider) SetSessionTTL(d time.Duration) { p.sessionTTL = d }

// AddIdentity registers or replaces a dev identity.
func (p *Provider) AddIdentity(id Identity) {
	p.mu.Lock()
	p.identities[id.Email] = id
	p.mu.Unlock()
}

// SignIn verifies the password hash and, on success, establishes a
// session and emits a SIGNED_IN event.
func (p *Provider) SignIn(ctx context.Context, creds auth.Credentials) error {
	p.mu.RLock()
	id, ok := p.identities[creds.Email]
	p.mu.RUnlock()
	if !ok {
		return auth.ErrInvalidCredentials
	}

	match, err := argon2id.ComparePasswordAndHash(creds.Password, id.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return auth.ErrInvalidCredentials
	}

	now := p.now()
	ev := auth.Event{
		Kind:         auth.EventSignedIn,
		UserID:       id.UserID,
		Email:        id.Email,
		LastSignInAt: now,
		ExpiresAt:    now.Add(p.sessionTTL),
	}

	p.mu.Lock()
	evCopy := ev
	p.current = &evCopy
	p.mu.Unlock()

	p.logger.Debug("local sign-in", "email", id.Email)
	p.emit(ev)
	return nil
}

// SignOut drops the session and emits a SIGNED_OUT event. Signing out
// without a session is not an error.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	prev := p.current
	p.current = nil
	p.mu.Unlock()

	ev := auth.Event{Kind: auth.EventSignedOut}
	if prev != nil {
		ev.UserID = prev.UserID
		ev.Email = prev.Email
	}
	p.emit(ev)
	return nil
}

// CurrentRemote returns the provider's session view, nil when signed
// out or expired.
func (p *Provider) CurrentRemote(ctx context.Context) (*auth.Event, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil || !p.now().Before(p.current.ExpiresAt) {
		return nil, nil
	}
	ev := *p.current
	return &ev, nil
}

// Revoke drops the session without emitting an event, simulating a
// revocation from another device that the re-check must discover.
func (p *Provider) Revoke() {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
}

// Subscribe registers an event callback and returns its removal func.
func (p *Provider) Subscribe(fn func(auth.Event)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *Provider) emit(ev auth.Event) {
	p.mu.RLock()
	fns := make([]func(auth.Event), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
