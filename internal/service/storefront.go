// Package service wires the security layer in front of the sync
// engines. Every UI action enters through StorefrontService, which
// applies the guards in a fixed order: sanitize input, rate-limit,
// CSRF check, session check, then the engine call.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/verdant-market/storecore/internal/domain/auth"
	"github.com/verdant-market/storecore/internal/domain/cart"
	"github.com/verdant-market/storecore/internal/domain/csrf"
	"github.com/verdant-market/storecore/internal/domain/event"
	"github.com/verdant-market/storecore/internal/domain/favorites"
	"github.com/verdant-market/storecore/internal/domain/ratelimit"
	"github.com/verdant-market/storecore/internal/domain/sanitize"
	"github.com/verdant-market/storecore/internal/domain/session"
	"github.com/verdant-market/storecore/internal/port/outbound"
)

// Operation names used as rate-limit keys and audit labels.
const (
	OpSignIn          = "auth.sign_in"
	OpCartUpdate      = "cart.update"
	OpFavoritesToggle = "favorites.toggle"
	OpSettingsUpdate  = "settings.update"
	OpCatalogReindex  = "catalog.reindex"
)

// anonymousIdentity keys rate-limit entries for guarded calls made
// before a session exists.
const anonymousIdentity = "anonymous"

// Stats is a monotonic counter snapshot, sampled by the metrics
// endpoint.
type Stats struct {
	SignInSuccesses       uint64
	SignInFailures        uint64
	RateLimitDenials      uint64
	CSRFFailures          uint64
	SanitizerDegradations uint64
}

// StorefrontService is the imperative facade over the security layer
// and the sync engines.
type StorefrontService struct {
	sanitizer *sanitize.Sanitizer
	limiter   *ratelimit.Limiter
	tokens    *csrf.Manager
	sessions  *session.Controller
	cart      *cart.Engine
	favorites *favorites.Engine
	provider  auth.Provider
	store     outbound.DataStore
	bus       *event.Bus
	logger    *slog.Logger

	signInSuccesses  atomic.Uint64
	signInFailures   atomic.Uint64
	rateLimitDenials atomic.Uint64
	csrfFailures     atomic.Uint64
	degradations     atomic.Uint64
}

// NewStorefrontService creates the facade. All collaborators are
// required except logger, which falls back to slog.Default.
func NewStorefrontService(
	sanitizer *sanitize.Sanitizer,
	limiter *ratelimit.Limiter,
	tokens *csrf.Manager,
	sessions *session.Controller,
	cartEngine *cart.Engine,
	favoritesEngine *favorites.Engine,
	provider auth.Provider,
	store outbound.DataStore,
	bus *event.Bus,
	logger *slog.Logger,
) *StorefrontService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorefrontService{
		sanitizer: sanitizer,
		limiter:   limiter,
		tokens:    tokens,
		sessions:  sessions,
		cart:      cartEngine,
		favorites: favoritesEngine,
		provider:  provider,
		store:     store,
		bus:       bus,
		logger:    logger,
	}
}

// SignIn exchanges credentials for a session. The rate-limit check
// runs before the provider is contacted, so a blocked identity never
// generates provider traffic. Every outcome is recorded to the login
// attempt audit.
func (s *StorefrontService) SignIn(ctx context.Context, email, password string) error {
	email = s.clean("email", email)

	// Record first: the attempt that crosses the budget is the one that
	// gets denied, before the provider is ever contacted.
	s.limiter.Record(OpSignIn, email)
	if s.limiter.IsLimited(OpSignIn, email) {
		s.rateLimitDenials.Add(1)
		return &ratelimit.LimitedError{
			Operation:  OpSignIn,
			RetryAfter: s.limiter.RetryAfter(OpSignIn, email),
		}
	}

	err := s.provider.SignIn(ctx, auth.Credentials{Email: email, Password: password})
	if err != nil {
		s.recordAttempt(ctx, email, false)
		s.signInFailures.Add(1)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return auth.WrapAuthError(auth.CodeInvalidCredentials, "sign in rejected", err)
		}
		return fmt.Errorf("sign in: %w", err)
	}

	// Provider events are delivered synchronously, so the controller
	// has already finished its transition. Accepted credentials are
	// not enough: profile resolution or the age gate can still reject
	// the session, and that outcome is a failed sign-in.
	if s.sessions.CurrentSession() == nil {
		s.recordAttempt(ctx, email, false)
		s.signInFailures.Add(1)
		if stateErr := s.sessions.Err(); stateErr != nil {
			return fmt.Errorf("sign in: %w", stateErr)
		}
		return auth.NewAuthError(auth.CodeSessionExpired, "no session established")
	}
	s.recordAttempt(ctx, email, true)

	// Successful authentication clears the attempt counter and arms a
	// fresh CSRF token for the new session.
	s.limiter.Reset(OpSignIn, email)
	if _, err := s.tokens.Generate(); err != nil {
		s.logger.Error("csrf token generation failed", "error", err)
	}
	s.signInSuccesses.Add(1)

	// Prime the per-user caches. Failures here are recoverable; the
	// next explicit load retries.
	if err := s.cart.Load(ctx); err != nil {
		s.logger.Warn("initial cart load failed", "error", err)
	}
	if err := s.favorites.Load(ctx); err != nil {
		s.logger.Warn("initial favorites load failed", "error", err)
	}
	return nil
}

// SignOut ends the provider session. The controller reacts to the
// SIGNED_OUT event and clears the security state; the engines only
// drop their local caches here.
func (s *StorefrontService) SignOut(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	s.cart.Clear()
	s.favorites.Clear()
	return nil
}

// AddToCart adds a product variant after passing the mutation guards.
func (s *StorefrontService) AddToCart(ctx context.Context, csrfToken, productID string, quantity int, color, size string) error {
	color = s.clean("color", color)
	size = s.clean("size", size)
	if err := s.guardMutation(OpCartUpdate, csrfToken); err != nil {
		return err
	}
	return s.cart.Add(ctx, productID, quantity, color, size)
}

// UpdateQuantity sets the quantity on an existing cart line.
func (s *StorefrontService) UpdateQuantity(ctx context.Context, csrfToken, itemID string, quantity int) error {
	if err := s.guardMutation(OpCartUpdate, csrfToken); err != nil {
		return err
	}
	return s.cart.UpdateQuantity(ctx, itemID, quantity)
}

// RemoveFromCart removes a cart line.
func (s *StorefrontService) RemoveFromCart(ctx context.Context, csrfToken, itemID string) error {
	if err := s.guardMutation(OpCartUpdate, csrfToken); err != nil {
		return err
	}
	return s.cart.Remove(ctx, itemID)
}

// ToggleFavorite flips favorite membership for a product.
func (s *StorefrontService) ToggleFavorite(ctx context.Context, csrfToken, productID string) error {
	if err := s.guardMutation(OpFavoritesToggle, csrfToken); err != nil {
		return err
	}
	return s.favorites.Toggle(ctx, productID)
}

// Cart exposes the cart engine for read access.
func (s *StorefrontService) Cart() *cart.Engine { return s.cart }

// Favorites exposes the favorites engine for read access.
func (s *StorefrontService) Favorites() *favorites.Engine { return s.favorites }

// CurrentSession returns the validated session, or nil.
func (s *StorefrontService) CurrentSession() *session.Session {
	return s.sessions.CurrentSession()
}

// IsAdmin reports whether the signed-in user holds the admin role.
func (s *StorefrontService) IsAdmin() bool { return s.sessions.IsAdmin() }

// CSRFToken returns the current token value, renewing it when expired.
func (s *StorefrontService) CSRFToken() (string, error) {
	tok, err := s.tokens.Current()
	if err != nil {
		return "", fmt.Errorf("csrf token: %w", err)
	}
	return tok.Value, nil
}

// OnSessionChange registers a callback for session transitions.
func (s *StorefrontService) OnSessionChange(fn func()) (unsubscribe func()) {
	return s.bus.Subscribe(event.TopicSession, func(event.Topic) { fn() })
}

// OnCartChange registers a callback for cart cache updates.
func (s *StorefrontService) OnCartChange(fn func()) (unsubscribe func()) {
	return s.bus.Subscribe(event.TopicCart, func(event.Topic) { fn() })
}

// OnFavoritesChange registers a callback for favorites cache updates.
func (s *StorefrontService) OnFavoritesChange(fn func()) (unsubscribe func()) {
	return s.bus.Subscribe(event.TopicFavorites, func(event.Topic) { fn() })
}

// Stat returns the monotonic counter snapshot.
func (s *StorefrontService) Stat() Stats {
	return Stats{
		SignInSuccesses:       s.signInSuccesses.Load(),
		SignInFailures:        s.signInFailures.Load(),
		RateLimitDenials:      s.rateLimitDenials.Load(),
		CSRFFailures:          s.csrfFailures.Load(),
		SanitizerDegradations: s.degradations.Load(),
	}
}

// guardMutation applies the shared mutation guards in order:
// rate-limit, CSRF, session. Exempt operations skip limiting but
// never skip the CSRF or session checks.
func (s *StorefrontService) guardMutation(operation, csrfToken string) error {
	sess := s.sessions.CurrentSession()
	identity := anonymousIdentity
	if sess != nil {
		identity = sess.UserID
	}

	if !s.limiter.Exempt(operation) {
		s.limiter.Record(operation, identity)
		if s.limiter.IsLimited(operation, identity) {
			s.rateLimitDenials.Add(1)
			return &ratelimit.LimitedError{
				Operation:  operation,
				RetryAfter: s.limiter.RetryAfter(operation, identity),
			}
		}
	}

	if !s.tokens.Validate(csrfToken) {
		s.csrfFailures.Add(1)
		return auth.NewAuthError(auth.CodeCSRFMismatch, "stale or missing csrf token")
	}

	if sess == nil {
		return auth.NewAuthError(auth.CodeSessionExpired, "no authenticated session")
	}
	return nil
}

// clean sanitizes a field value and counts degradations for the
// metrics endpoint.
func (s *StorefrontService) clean(field, input string) string {
	if sanitize.Degrades(input) {
		s.degradations.Add(1)
		s.logger.Warn("input degraded by sanitizer", "field", field)
	}
	return s.sanitizer.Clean(field, input)
}

// recordAttempt appends to the login attempt audit. Best effort: an
// audit write failure never blocks the sign-in path.
func (s *StorefrontService) recordAttempt(ctx context.Context, email string, success bool) {
	err := s.store.RecordLoginAttempt(ctx, &outbound.LoginAttemptRecord{
		Email:       email,
		Success:     success,
		AttemptTime: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("login attempt audit write failed", "error", err)
	}
}
