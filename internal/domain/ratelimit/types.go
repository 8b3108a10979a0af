// Package ratelimit provides the sliding-window rate limiter guarding
// sensitive storefront operations.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Default limiter parameters.
const (
	// DefaultWindow is the sliding counting window.
	DefaultWindow = 15 * time.Minute
	// DefaultMaxAttempts is the number of attempts allowed per window.
	DefaultMaxAttempts = 5
	// DefaultBlockDuration is how long a key stays blocked once it
	// exceeds DefaultMaxAttempts, measured from the last attempt.
	DefaultBlockDuration = 30 * time.Minute
)

// Config holds the limiter parameters.
type Config struct {
	// Window is the sliding counting window, anchored at the first
	// recorded attempt. Default: 15 minutes.
	Window time.Duration

	// MaxAttempts is the count allowed within Window before the key is
	// blocked. Default: 5.
	MaxAttempts int

	// BlockDuration is how long a blocked key stays denied, measured
	// from its last attempt. Default: 30 minutes.
	BlockDuration time.Duration

	// ExemptOperations bypass limiting entirely. This is a deliberate
	// policy decision for system and administrative configuration
	// writes, kept as configuration rather than hardcoded per call
	// site. The exact set is a product policy choice.
	ExemptOperations []string

	// CleanupInterval is how often the background sweep started by
	// StartCleanup runs. Default: 5 minutes.
	CleanupInterval time.Duration
}

// withDefaults fills zero fields with the default parameters.
func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BlockDuration <= 0 {
		c.BlockDuration = DefaultBlockDuration
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = defaultCleanupInterval
	}
	return c
}

// Entry tracks attempts for one key. Counts for different keys are
// fully independent; there is no global ceiling.
type Entry struct {
	Key            string
	Count          int
	FirstAttemptAt time.Time
	LastAttemptAt  time.Time
	Blocked        bool
}

// keyPrefix is the base prefix for all rate limit keys.
const keyPrefix = "ratelimit"

// FormatKey returns the structured key for an operation + identity pair.
// Format: "ratelimit:{operation}:{identity}"
// Example: FormatKey("auth.sign_in", "x@y.com") -> "ratelimit:auth.sign_in:x@y.com"
func FormatKey(operation, identity string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, operation, identity)
}

// Fingerprint returns a short stable hash of a key, safe to emit in
// logs and metrics labels where the raw identity (an email) is not.
func Fingerprint(key string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

// LimitedError is returned by guarded call sites when an operation is
// denied. RetryAfter is a hint for the user-facing message.
type LimitedError struct {
	Operation  string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %v", e.Operation, e.RetryAfter)
}
