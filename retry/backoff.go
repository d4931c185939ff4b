// Package retry provides the exponential backoff and circuit breaker used to reopen RCON sessions
// after a connection is lost.
//
// Nothing in the root package retries on its own. These helpers are only reached through
// rcon.Redialer, which callers opt into.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// PermanentError wraps an error to signal that retrying will not help, such as a rejected
// password. Return [Permanent](err) from the operation to stop retrying.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff retries an operation with exponentially growing waits between attempts.
type Backoff struct {
	// InitialDelay is the wait after the first failure (default 500ms).
	InitialDelay time.Duration
	// MaxDelay caps the wait (default 30s).
	MaxDelay time.Duration
	// Multiplier grows the wait after each failure (default 2).
	Multiplier float64
	// MaxAttempts is the total number of tries including the first. Zero retries until the
	// context is done.
	MaxAttempts int
	// Jitter spreads each wait by ±25% so many clients reconnecting to one server do not
	// arrive together.
	Jitter bool
	// Retryable, when set, is consulted for every failure. Returning false stops immediately.
	Retryable func(error) bool
}

// DefaultBackoff returns the policy rcon.Redialer uses when none is given.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

// Do calls fn until it succeeds, fails permanently, runs out of attempts, or ctx is done. The
// attempt passed to fn is 1-based. A permanent failure is returned unwrapped; an exhausted
// budget wraps the last failure.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	delay := b.InitialDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if b.Retryable != nil && !b.Retryable(err) {
			return err
		}
		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		wait := delay
		if b.Jitter {
			wait = addJitter(delay)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry cancelled: %w (last error: %v)", ctx.Err(), err)
		case <-t.C:
		}

		delay = min(time.Duration(float64(delay)*multiplier), maxDelay)
	}
}

// addJitter returns d moved by up to a quarter in either direction, never below a millisecond.
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) / 4
	delta := rand.Float64()*2*quarter - quarter
	return max(time.Duration(float64(d)+delta), time.Millisecond)
}
