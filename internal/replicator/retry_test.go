package replicator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/tablesync/internal/logger"
)

func TestRetryPolicy_SucceedsAfterFailures(t *testing.T) {
	p := retryPolicy{retries: 3, backoff: time.Millisecond, logger: logger.NewNop()}

	calls := 0
	err := p.do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	p := retryPolicy{retries: 2, logger: logger.NewNop()}

	calls := 0
	err := p.do(context.Background(), "fetch batch", func(context.Context) error {
		calls++
		return assert.AnError
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "fetch batch failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_PermanentErrorsAreNotRetried(t *testing.T) {
	for _, perm := range []error{ErrNonNumericCursor, ErrCheckpointNotAdvanced, ErrNoPrimaryKey} {
		t.Run(perm.Error(), func(t *testing.T) {
			p := retryPolicy{retries: 5, logger: logger.NewNop()}
			calls := 0
			err := p.do(context.Background(), "op", func(context.Context) error {
				calls++
				return fmt.Errorf("wrapped: %w", perm)
			})
			assert.ErrorIs(t, err, perm)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestRetryPolicy_AttemptTimeout(t *testing.T) {
	p := retryPolicy{retries: 1, timeout: 10 * time.Millisecond, logger: logger.NewNop()}

	calls := 0
	err := p.do(context.Background(), "slow", func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, calls, "a timed out attempt is retried")
}

func TestRetryPolicy_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retryPolicy{retries: 5, backoff: time.Hour, logger: logger.NewNop()}

	calls := 0
	err := p.do(ctx, "op", func(context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
