package engine

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/smilemakc/mbflow/internal/domain"
)

// withRetry runs attempt and, on error, retries it per policy using
// exponential backoff, jittered when policy.Jitter is set. A nil policy or MaxAttempts == 0 runs
// attempt exactly once. Retries stop early if ctx is canceled.
func withRetry(ctx context.Context, policy *domain.RetryPolicy, attempt func() error) error {
	if policy == nil || policy.MaxAttempts <= 0 {
		return attempt()
	}

	var lastErr error
	for try := 0; try <= policy.MaxAttempts; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay(policy, try)):
			}
		}
		if err := attempt(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// retryDelay computes the exponential-backoff delay before the given
// retry attempt (1-indexed), capped at MaxDelay and jittered by +/-10%
// when Jitter is set.
func retryDelay(policy *domain.RetryPolicy, attempt int) time.Duration {
	initial := policy.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	multiplier := policy.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	if policy.Jitter {
		delay += (rand.Float64()*2 - 1) * delay * 0.1
	}
	return time.Duration(delay)
}
