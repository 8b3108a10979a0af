package auth

import (
	"context"
	"errors"
)

// ErrInvalidCredentials is returned by Provider.SignIn when the
// credential exchange is rejected.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Provider is the port to the hosted auth collaborator.
// This interface is defined in the domain to avoid circular imports.
// Implementations: local (dev/tests); the hosted SDK in production.
type Provider interface {
	// SignIn exchanges credentials for a provider session.
	// On success the provider emits an EventSignedIn to subscribers.
	// Returns ErrInvalidCredentials when the exchange is rejected.
	SignIn(ctx context.Context, creds Credentials) error

	// SignOut ends the provider session. The provider emits an
	// EventSignedOut to subscribers. Signing out without a session
	// is not an error.
	SignOut(ctx context.Context) error

	// CurrentRemote reports the provider's view of the session, used by
	// the periodic re-check to detect revocation from another device.
	// Returns nil when the provider holds no session.
	CurrentRemote(ctx context.Context) (*Event, error)

	// Subscribe registers a callback for provider events. The returned
	// func removes the subscription. Callbacks run synchronously on the
	// goroutine that triggered the event.
	Subscribe(fn func(Event)) (unsubscribe func())
}
