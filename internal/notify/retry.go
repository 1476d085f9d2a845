package notify

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrRetriesExhausted marks a failure that persisted through every allowed
// attempt. Callers distinguish it from transient errors with errors.Is; the
// last underlying error stays reachable through the chain.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy configures ExecuteWithRetry.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt, so the
	// operation runs at most MaxRetries+1 times.
	MaxRetries int

	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Multiplier grows the delay between attempts. Zero defaults to 2.
	Multiplier float64

	// Jitter spreads each delay uniformly in [delay*(1-Jitter), delay].
	// Zero means no jitter.
	Jitter float64

	// ShouldRetry, when set, gates every retry. Returning false stops
	// immediately and the error is surfaced as-is (not wrapped in
	// ErrRetriesExhausted).
	ShouldRetry func(error) bool

	// sleep is injectable for tests; defaults to a context-aware sleep.
	sleep func(context.Context, time.Duration) error
}

// DefaultRetryPolicy returns the policy used for webhook delivery rounds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

// ExecuteWithRetry runs fn with capped exponential backoff and jitter.
//
// fn runs at most MaxRetries+1 times. When every attempt fails the returned
// error wraps both ErrRetriesExhausted and the last attempt's error. When
// ShouldRetry rejects an error, or the context is done, the error is
// returned immediately without further attempts.
func ExecuteWithRetry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	sleep := policy.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	attempts := policy.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (context done after %d attempts: %w)", lastErr, attempt, err)
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if policy.ShouldRetry != nil && !policy.ShouldRetry(lastErr) {
			return lastErr
		}

		if attempt < attempts-1 {
			if err := sleep(ctx, backoffDelay(policy, attempt)); err != nil {
				return fmt.Errorf("%w (interrupted after %d attempts: %w)", lastErr, attempt+1, err)
			}
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}

// backoffDelay computes the wait before retry number attempt+1:
// min(BaseDelay * Multiplier^attempt, MaxDelay), then jittered.
func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	multiplier := policy.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	delay := float64(policy.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= multiplier
		if policy.MaxDelay > 0 && delay >= float64(policy.MaxDelay) {
			delay = float64(policy.MaxDelay)
			break
		}
	}
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}

	if policy.Jitter > 0 {
		j := policy.Jitter
		if j > 1 {
			j = 1
		}
		delay = delay * (1 - j*rand.Float64())
	}

	return time.Duration(delay)
}

// sleepCtx sleeps for d unless the context finishes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
