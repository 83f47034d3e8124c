package sync

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/caval92/tgd/internal/tg"
)

// newBackOff returns the retry curve for transient remote failures.
func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 5 * time.Minute
	b.Reset()
	return b
}

// withRetry runs op until it succeeds, fails permanently, or the retry
// budget runs out. Transient failures back off exponentially with a cap;
// a rate-limit's advertised wait is honored exactly and does not consume
// backoff budget; auth expiry and context cancellation are permanent.
func withRetry(ctx context.Context, logger *zap.Logger, what string, op func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := newBackOff()
	for {
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if tg.IsAuthExpired(err) {
			return err
		}

		var wait time.Duration
		if adv, ok := tg.RetryAfter(err); ok {
			wait = adv
			b.Reset()
		} else if tg.IsTransient(err) {
			wait = b.NextBackOff()
			if wait == backoff.Stop {
				return err
			}
		} else {
			return err
		}

		logger.Warn("remote call failed, retrying",
			zap.String("op", what),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
