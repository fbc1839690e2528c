package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/domain"
)

func TestWithRetry_NilPolicyRunsOnce(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), nil, func() error {
		calls++
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_SucceedsBeforeExhaustingAttempts(t *testing.T) {
	calls := 0
	policy := &domain.RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond}
	err := withRetry(context.Background(), policy, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ExhaustsMaxAttemptsThenReturnsLastError(t *testing.T) {
	calls := 0
	policy := &domain.RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond}
	err := withRetry(context.Background(), policy, func() error {
		calls++
		return errors.New("always fails")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls, "one initial attempt plus MaxAttempts retries")
}

func TestWithRetry_ContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := &domain.RetryPolicy{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond}

	calls := 0
	err := withRetry(ctx, policy, func() error {
		calls++
		if calls == 1 {
			cancel()
		}
		return errors.New("fails")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryDelay_CapsAtMaxDelay(t *testing.T) {
	policy := &domain.RetryPolicy{InitialDelay: time.Second, Multiplier: 10, MaxDelay: 2 * time.Second}
	delay := retryDelay(policy, 5)
	assert.LessOrEqual(t, delay, 2*time.Second)
}

func TestRetryDelay_GrowsExponentially(t *testing.T) {
	policy := &domain.RetryPolicy{InitialDelay: time.Second, Multiplier: 2}
	first := retryDelay(policy, 1)
	second := retryDelay(policy, 2)
	assert.Equal(t, time.Second, first)
	assert.Equal(t, 2*time.Second, second)
}
