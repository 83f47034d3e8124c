package tg

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAuthExpired means the session's authorization is gone. It is fatal
// to any remote operation: no retry helps until the user re-authenticates.
var ErrAuthExpired = errors.New("tg: authorization expired")

// TransientError wraps a network-level or timeout failure that a retry
// with backoff may resolve.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("tg: transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// RateLimitedError means the remote asked us to wait. RetryAfter is the
// advertised wait and must be honored exactly before retrying.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("tg: rate limited, retry after %s", e.RetryAfter)
}

// IsTransient reports whether err should be retried with backoff.
// Context deadline overruns count as transient; cancellation does not.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// RetryAfter returns the advertised rate-limit wait, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// IsAuthExpired reports whether err is the fatal auth-expired condition.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}
