// Package auth contains the domain types for the hosted auth collaborator.
package auth

import (
	"fmt"
	"time"
)

// Role represents a user role for authorization purposes.
type Role string

const (
	// RoleAdmin has access to the admin console operations.
	RoleAdmin Role = "admin"
	// RoleUser is the default role for shoppers.
	RoleUser Role = "user"
)

// IsValid returns true if the role is a known valid role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser:
		return true
	default:
		return false
	}
}

// EventKind identifies a provider event.
type EventKind string

const (
	// EventSignedIn is emitted after a successful credential exchange.
	EventSignedIn EventKind = "SIGNED_IN"
	// EventSignedOut is emitted when the provider ends the session.
	EventSignedOut EventKind = "SIGNED_OUT"
	// EventTokenRefreshed is emitted when the provider rotates its token.
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	// EventUserUpdated is emitted when the provider-side user record changes.
	EventUserUpdated EventKind = "USER_UPDATED"
)

// Event is a provider notification. Events may arrive in any order and
// may be duplicated; consumers must treat them as idempotent signals.
type Event struct {
	Kind         EventKind
	UserID       string
	Email        string
	LastSignInAt time.Time
	ExpiresAt    time.Time
}

// Credentials carries a sign-in request to the provider.
type Credentials struct {
	Email    string
	Password string
}

// ErrorCode classifies an AuthError for caller branching.
type ErrorCode string

const (
	// CodeInvalidCredentials means the provider rejected the credentials.
	CodeInvalidCredentials ErrorCode = "invalid_credentials"
	// CodeSessionExpired means the local session aged out or the provider
	// revoked it.
	CodeSessionExpired ErrorCode = "session_expired"
	// CodeCSRFMismatch means a mutating call carried a stale or wrong token.
	CodeCSRFMismatch ErrorCode = "csrf_mismatch"
	// CodeProfileCreateFailed means self-healing profile creation failed,
	// which is terminal for the sign-in attempt.
	CodeProfileCreateFailed ErrorCode = "profile_create_failed"
	// CodeIntegrity means a provider event was missing required fields.
	CodeIntegrity ErrorCode = "integrity"
)

// AuthError is surfaced for authentication and session integrity failures.
// It typically forces a sign-out.
type AuthError struct {
	Code ErrorCode
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("auth: %s: %s", e.Code, e.Msg)
}

// Unwrap returns the wrapped cause, if any.
func (e *AuthError) Unwrap() error { return e.Err }

// NewAuthError creates an AuthError with the given code and message.
func NewAuthError(code ErrorCode, msg string) *AuthError {
	return &AuthError{Code: code, Msg: msg}
}

// WrapAuthError creates an AuthError wrapping an underlying cause.
func WrapAuthError(code ErrorCode, msg string, err error) *AuthError {
	return &AuthError{Code: code, Msg: msg, Err: err}
}
