package replicator

import (
	"context"
	"fmt"
	"time"

	"github.com/dbsmedya/tablesync/internal/logger"
)

// maxBackoff caps the exponential backoff between attempts.
const maxBackoff = 30 * time.Second

// retryPolicy runs an operation up to 1+retries times. Each attempt gets
// its own timeout and the wait doubles between attempts.
type retryPolicy struct {
	retries int
	backoff time.Duration
	timeout time.Duration
	logger  *logger.Logger
}

func (p retryPolicy) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	wait := p.backoff
	var err error

	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			p.logger.Warnw("Retrying after error",
				"operation", op,
				"attempt", attempt+1,
				"max_attempts", p.retries+1,
				"backoff", wait,
				"error", err,
			)
			if serr := sleepContext(ctx, wait); serr != nil {
				return fmt.Errorf("%s: %w", op, serr)
			}
			wait *= 2
			if wait > maxBackoff {
				wait = maxBackoff
			}
		}

		err = p.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		if isPermanent(err) {
			return err
		}
	}

	if p.retries == 0 {
		return err
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, p.retries+1, err)
}

func (p retryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return fn(callCtx)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
