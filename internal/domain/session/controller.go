package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/verdant-market/storecore/internal/domain/auth"
	"github.com/verdant-market/storecore/internal/domain/csrf"
	"github.com/verdant-market/storecore/internal/domain/event"
	"github.com/verdant-market/storecore/internal/domain/ratelimit"
	"github.com/verdant-market/storecore/internal/port/outbound"
	"github.com/verdant-market/storecore/pkg/retry"
)

// Config holds controller tuning knobs. Zero values get defaults.
type Config struct {
	// RecheckInterval is the period of the background re-validation.
	RecheckInterval time.Duration

	// MaxSessionAge overrides the 24h session age ceiling.
	MaxSessionAge time.Duration

	// ProfileRetryDelay overrides the ~1s backoff between profile
	// resolution attempts. Tests shrink it.
	ProfileRetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.RecheckInterval <= 0 {
		c.RecheckInterval = DefaultRecheckInterval
	}
	if c.MaxSessionAge <= 0 {
		c.MaxSessionAge = MaxSessionAge
	}
	if c.ProfileRetryDelay <= 0 {
		c.ProfileRetryDelay = profileRetryDelay
	}
	return c
}

// Controller is the authentication state machine. It is the sole
// writer of Session and Profile; every other component reads them
// through it. Sign-out is the only path that clears the cross-cutting
// security state (CSRF token, user rate-limit entries).
type Controller struct {
	provider auth.Provider
	store    outbound.DataStore
	limiter  *ratelimit.Limiter
	tokens   *csrf.Manager
	bus      *event.Bus
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time

	// opMu serializes whole transitions, including their remote calls,
	// so a recheck can never interleave with an in-progress sign-in.
	opMu sync.Mutex

	// mu guards the published state fields.
	mu      sync.RWMutex
	state   State
	session *Session
	profile *Profile
	lastErr error

	runCtx      context.Context
	unsubscribe func()
	stopChan    chan struct{}
	wg          sync.WaitGroup
	once        sync.Once
}

// NewController creates a Controller. Call Start to begin consuming
// provider events.
func NewController(
	provider auth.Provider,
	store outbound.DataStore,
	limiter *ratelimit.Limiter,
	tokens *csrf.Manager,
	bus *event.Bus,
	cfg Config,
	logger *slog.Logger,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		provider: provider,
		store:    store,
		limiter:  limiter,
		tokens:   tokens,
		bus:      bus,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		state:    StateUninitialized,
		stopChan: make(chan struct{}),
	}
}

// SetClock injects a clock for tests. Must be called before Start.
func (c *Controller) SetClock(now func() time.Time) { c.now = now }

// Start subscribes to provider events and begins the periodic
// re-check. The controller transitions to Unauthenticated until the
// first SIGNED_IN event arrives.
func (c *Controller) Start(ctx context.Context) {
	c.runCtx = ctx
	c.unsubscribe = c.provider.Subscribe(c.handleEvent)
	c.setState(StateUnauthenticated, nil)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.RecheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopChan:
				return
			case <-ticker.C:
				c.Revalidate(ctx)
			}
		}
	}()
}

// Stop unsubscribes from the provider and stops the re-check loop.
// Safe to call multiple times.
func (c *Controller) Stop() {
	c.once.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		close(c.stopChan)
	})
	c.wg.Wait()
}

// CurrentSession returns a copy of the session, or nil when no valid
// session is held.
func (c *Controller) CurrentSession() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != StateAuthenticated || c.session == nil {
		return nil
	}
	if c.session.ExpiredAt(c.now()) {
		return nil
	}
	s := *c.session
	return &s
}

// CurrentProfile returns a copy of the cached profile, or nil.
func (c *Controller) CurrentProfile() *Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.profile == nil {
		return nil
	}
	p := *c.profile
	return &p
}

// IsAdmin reports whether the current session belongs to an admin.
func (c *Controller) IsAdmin() bool {
	s := c.CurrentSession()
	return s != nil && s.Role == auth.RoleAdmin
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Err returns the error from the last failed transition, if any.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// OnChange subscribes to session transitions. The callback receives no
// payload; observers re-read via CurrentSession. Returns an
// unsubscribe func.
func (c *Controller) OnChange(fn func()) (unsubscribe func()) {
	return c.bus.Subscribe(event.TopicSession, func(event.Topic) { fn() })
}

// handleEvent is the provider callback. Events may arrive in any
// order, including duplicates; each kind maps to one transition.
func (c *Controller) handleEvent(ev auth.Event) {
	switch ev.Kind {
	case auth.EventSignedIn, auth.EventTokenRefreshed, auth.EventUserUpdated:
		c.applySignIn(ev)
	case auth.EventSignedOut:
		c.applySignOut(ev)
	default:
		c.logger.Warn("ignoring unknown provider event", "kind", string(ev.Kind))
	}
}

// applySignIn validates the event and resolves the profile, entering
// Authenticated on success. An over-age session is cleared under the
// lock, then the provider sign-out runs unlocked: providers emit
// SIGNED_OUT synchronously from SignOut, and that emission re-enters
// applySignOut, which takes opMu itself.
func (c *Controller) applySignIn(ev auth.Event) {
	if c.applySignInLocked(ev) {
		c.signOutProvider()
	}
}

// applySignInLocked runs the transition under opMu. It reports whether
// the session failed the age gate and the provider still needs to be
// signed out.
func (c *Controller) applySignInLocked(ev auth.Event) (overAge bool) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.setState(StateValidating, nil)

	if err := integrityCheck(ev); err != nil {
		// A corrupt payload is never kept: full local cleanup.
		c.logger.Error("session integrity failure", "error", err)
		c.clearLocalState(ev.Email, ev.UserID)
		c.setState(StateError, err)
		return false
	}

	now := c.now()
	if now.Sub(ev.LastSignInAt) >= c.cfg.MaxSessionAge {
		c.logger.Warn("session exceeds max age, forcing sign-out",
			"age", now.Sub(ev.LastSignInAt),
			"user_id", ev.UserID,
		)
		c.expireLocked(ev.Email, ev.UserID)
		return true
	}

	profile, err := c.resolveProfile(ev)
	if err != nil {
		c.logger.Error("profile resolution failed", "user_id", ev.UserID, "error", err)
		c.clearLocalState(ev.Email, ev.UserID)
		c.setState(StateError, err)
		return false
	}

	c.mu.Lock()
	c.session = &Session{
		UserID:    ev.UserID,
		Email:     ev.Email,
		Role:      profile.Role,
		IssuedAt:  ev.LastSignInAt,
		ExpiresAt: ev.ExpiresAt,
		Valid:     true,
	}
	c.profile = profile
	c.mu.Unlock()

	c.setState(StateAuthenticated, nil)
	c.logger.Info("session established",
		"user_id", ev.UserID,
		"role", string(profile.Role),
	)
	return false
}

// applySignOut clears all local security state. This is the only path
// allowed to clear the CSRF token and user rate-limit entries. A
// SIGNED_OUT arriving when nothing is held (the provider echoing back
// a forced sign-out) is a duplicate and leaves the recorded reason
// intact.
func (c *Controller) applySignOut(ev auth.Event) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	email, userID := ev.Email, ev.UserID
	c.mu.RLock()
	alreadyOut := c.state == StateUnauthenticated && c.session == nil
	if c.session != nil {
		email, userID = c.session.Email, c.session.UserID
	}
	c.mu.RUnlock()

	if alreadyOut {
		c.logger.Debug("duplicate sign-out event ignored", "user_id", userID)
		return
	}

	c.clearLocalState(email, userID)
	c.setState(StateUnauthenticated, nil)
	c.logger.Info("session cleared", "user_id", userID)
}

// expireLocked clears local state for a session that failed the age
// gate and records the reason. Caller holds opMu and still owes the
// provider a sign-out call after releasing it.
func (c *Controller) expireLocked(email, userID string) {
	c.clearLocalState(email, userID)
	c.setState(StateUnauthenticated, auth.NewAuthError(auth.CodeSessionExpired, "session exceeded maximum age"))
}

// signOutProvider ends the provider session after local state has
// already been cleared. Never call this with opMu held: the provider
// emits SIGNED_OUT synchronously on this goroutine and the emission
// re-enters applySignOut.
func (c *Controller) signOutProvider() {
	ctx, cancel := context.WithTimeout(c.baseCtx(), remoteCallTimeout)
	defer cancel()

	if err := c.provider.SignOut(ctx); err != nil {
		c.logger.Warn("provider sign-out failed during forced sign-out", "error", err)
	}
}

// resolveProfile fetches the profile with bounded retries. A
// definitive "row not found" short-circuits into lazy creation with
// the default role; transient errors are retried.
func (c *Controller) resolveProfile(ev auth.Event) (*Profile, error) {
	cfg := retry.Config{MaxAttempts: profileAttempts, Delay: c.cfg.ProfileRetryDelay}

	record, err := retry.Do(c.baseCtx(), cfg, func(ctx context.Context) (*outbound.ProfileRecord, error) {
		callCtx, cancel := context.WithTimeout(ctx, remoteCallTimeout)
		defer cancel()

		rec, err := c.store.GetProfile(callCtx, ev.UserID)
		if errors.Is(err, outbound.ErrNotFound) {
			// Not retryable: the row is definitively absent.
			return nil, retry.Permanent(err)
		}
		return rec, err
	})

	switch {
	case err == nil:
		role := auth.Role(record.Role)
		if !role.IsValid() {
			role = auth.RoleUser
		}
		return &Profile{UserID: record.UserID, FullName: record.FullName, Role: role}, nil

	case errors.Is(err, outbound.ErrNotFound):
		return c.createProfile(ev)

	default:
		return nil, err
	}
}

// createProfile self-heals a missing profile row with the default
// role. Creation failure is terminal for this sign-in attempt.
func (c *Controller) createProfile(ev auth.Event) (*Profile, error) {
	ctx, cancel := context.WithTimeout(c.baseCtx(), remoteCallTimeout)
	defer cancel()

	record := &outbound.ProfileRecord{
		UserID: ev.UserID,
		Role:   string(auth.RoleUser),
	}
	if err := c.store.CreateProfile(ctx, record); err != nil {
		if errors.Is(err, outbound.ErrConflict) {
			// Another client created it between our read and write;
			// the row exists now, so read it back.
			rec, getErr := c.store.GetProfile(ctx, ev.UserID)
			if getErr == nil {
				role := auth.Role(rec.Role)
				if !role.IsValid() {
					role = auth.RoleUser
				}
				return &Profile{UserID: rec.UserID, FullName: rec.FullName, Role: role}, nil
			}
		}
		return nil, auth.WrapAuthError(auth.CodeProfileCreateFailed, "could not create profile", err)
	}

	c.logger.Info("profile created", "user_id", ev.UserID)
	return &Profile{UserID: ev.UserID, Role: auth.RoleUser}, nil
}

// Revalidate re-checks local state against the provider. If the
// provider reports no session while local state claims Authenticated,
// the session was revoked elsewhere and local state transitions to
// Unauthenticated. Also enforces expiry and the age ceiling.
func (c *Controller) Revalidate(ctx context.Context) {
	if c.revalidateLocked(ctx) {
		c.signOutProvider()
	}
}

// revalidateLocked runs the re-check under opMu and reports whether
// the provider still needs to be signed out for an over-age session.
func (c *Controller) revalidateLocked(ctx context.Context) (overAge bool) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	state := c.state
	var sess *Session
	if c.session != nil {
		s := *c.session
		sess = &s
	}
	c.mu.RUnlock()

	if state != StateAuthenticated || sess == nil {
		return false
	}

	now := c.now()
	if sess.ExpiredAt(now) {
		c.logger.Info("session expired", "user_id", sess.UserID)
		c.clearLocalState(sess.Email, sess.UserID)
		c.setState(StateUnauthenticated, auth.NewAuthError(auth.CodeSessionExpired, "session expired"))
		return false
	}
	if now.Sub(sess.IssuedAt) >= c.cfg.MaxSessionAge {
		c.logger.Warn("session exceeded max age on re-check", "user_id", sess.UserID)
		c.expireLocked(sess.Email, sess.UserID)
		return true
	}

	callCtx, cancel := context.WithTimeout(ctx, remoteCallTimeout)
	defer cancel()
	remote, err := c.provider.CurrentRemote(callCtx)
	if err != nil {
		// Transient provider failure: keep local state, next tick
		// retries.
		c.logger.Warn("provider re-check failed", "error", err)
		return false
	}
	if remote == nil {
		c.logger.Warn("provider reports no session, revoked elsewhere", "user_id", sess.UserID)
		c.clearLocalState(sess.Email, sess.UserID)
		c.setState(StateUnauthenticated, auth.NewAuthError(auth.CodeSessionExpired, "session revoked"))
	}
	return false
}

// clearLocalState drops session, profile, CSRF token, and the user's
// rate-limit entries. Caller holds opMu.
func (c *Controller) clearLocalState(email, userID string) {
	c.mu.Lock()
	c.session = nil
	c.profile = nil
	c.mu.Unlock()

	c.tokens.Clear()
	if email != "" {
		c.limiter.ResetIdentity(email)
	}
	if userID != "" {
		c.limiter.ResetIdentity(userID)
	}
}

// setState records the state and broadcasts the transition.
func (c *Controller) setState(s State, err error) {
	c.mu.Lock()
	c.state = s
	c.lastErr = err
	c.mu.Unlock()
	c.bus.Publish(event.TopicSession)
}

// baseCtx returns the run context, or Background before Start.
func (c *Controller) baseCtx() context.Context {
	if c.runCtx != nil {
		return c.runCtx
	}
	return context.Background()
}

// integrityCheck verifies the event carries the fields a session
// requires.
func integrityCheck(ev auth.Event) error {
	switch {
	case ev.UserID == "":
		return &IntegrityError{Field: "userId"}
	case ev.Email == "":
		return &IntegrityError{Field: "email"}
	case ev.LastSignInAt.IsZero():
		return &IntegrityError{Field: "lastSignInAt"}
	case ev.ExpiresAt.IsZero():
		return &IntegrityError{Field: "expiresAt"}
	}
	return nil
}
