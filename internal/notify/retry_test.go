package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instantPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		sleep:      func(context.Context, time.Duration) error { return nil },
	}
}

func TestExecuteWithRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), instantPolicy(3), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithRetry_AtMostMaxRetriesPlusOneCalls(t *testing.T) {
	boom := errors.New("boom")
	for _, maxRetries := range []int{0, 1, 3, 5} {
		calls := 0
		err := ExecuteWithRetry(context.Background(), instantPolicy(maxRetries), func(context.Context) error {
			calls++
			return boom
		})
		require.Error(t, err)
		assert.Equal(t, maxRetries+1, calls, "maxRetries=%d", maxRetries)
		assert.ErrorIs(t, err, ErrRetriesExhausted)
		assert.ErrorIs(t, err, boom)
	}
}

func TestExecuteWithRetry_SucceedsMidway(t *testing.T) {
	calls := 0
	err := ExecuteWithRetry(context.Background(), instantPolicy(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_ShouldRetryFalseStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	policy := instantPolicy(5)
	policy.ShouldRetry = func(err error) bool { return false }

	calls := 0
	err := ExecuteWithRetry(context.Background(), policy, func(context.Context) error {
		calls++
		return permanent
	})

	assert.Equal(t, 1, calls)
	// Surfaced as-is, not wrapped in the exhaustion error.
	assert.Equal(t, permanent, err)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
}

func TestExecuteWithRetry_ShouldRetrySelective(t *testing.T) {
	transient := errors.New("transient")
	permanent := errors.New("permanent")
	policy := instantPolicy(5)
	policy.ShouldRetry = func(err error) bool { return errors.Is(err, transient) }

	calls := 0
	err := ExecuteWithRetry(context.Background(), policy, func(context.Context) error {
		calls++
		if calls < 3 {
			return transient
		}
		return permanent
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, permanent, err)
}

func TestExecuteWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := instantPolicy(5)
	policy.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	calls := 0
	err := ExecuteWithRetry(ctx, policy, func(context.Context) error {
		calls++
		return errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelay_CappedGrowth(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2,
	}

	assert.Equal(t, time.Second, backoffDelay(policy, 0))
	assert.Equal(t, 2*time.Second, backoffDelay(policy, 1))
	assert.Equal(t, 4*time.Second, backoffDelay(policy, 2))
	assert.Equal(t, 8*time.Second, backoffDelay(policy, 3))
	assert.Equal(t, 10*time.Second, backoffDelay(policy, 4))
	assert.Equal(t, 10*time.Second, backoffDelay(policy, 10))
}

func TestBackoffDelay_JitterStaysInRange(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2,
		Jitter:     0.2,
	}

	for i := 0; i < 100; i++ {
		d := backoffDelay(policy, 2)
		assert.GreaterOrEqual(t, d, 3200*time.Millisecond)
		assert.LessOrEqual(t, d, 4*time.Second)
	}
}
