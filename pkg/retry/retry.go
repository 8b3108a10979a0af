// Package retry provides a bounded retry helper for remote calls.
//
// Callers distinguish two failure classes: transient errors, which are
// retried up to the attempt budget, and permanent outcomes (such as a
// definitive "row not found"), which short-circuit immediately so the
// caller can take a different path.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config bounds a retry loop.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Delay is the wait between attempts.
	Delay time.Duration

	// Multiplier scales Delay after each attempt. Values below 1 mean
	// a fixed delay.
	Multiplier float64
}

// permanentError marks an error as non-retryable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do stops retrying and returns it immediately.
// The wrapper is transparent to errors.Is/As on the underlying error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do runs op until it succeeds, returns a permanent error, the attempt
// budget is spent, or ctx is done. The delay between attempts respects
// ctx cancellation.
func Do[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error)) (T, error) {
	var zero T

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := cfg.Delay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return zero, pe.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
		if cfg.Multiplier > 1 {
			delay = time.Duration(float64(delay) * cfg.Multiplier)
		}
	}

	return zero, fmt.Errorf("all %d attempts failed, last: %w", attempts, lastErr)
}
