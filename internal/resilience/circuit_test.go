package resilience

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failTransient(ctx context.Context) error {
	return NewTransient(fmt.Errorf("upstream down"))
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, b.Execute(ctx, failTransient))
	}
	assert.Equal(t, BreakerOpen, b.State())

	calls := 0
	err := b.Execute(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 0, calls)
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, failTransient))
	require.Error(t, b.Execute(ctx, failTransient))
	require.NoError(t, b.Execute(ctx, func(ctx context.Context) error { return nil }))
	require.Error(t, b.Execute(ctx, failTransient))
	require.Error(t, b.Execute(ctx, failTransient))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.Error(t, b.Execute(ctx, func(ctx context.Context) error {
			return NewValidationError("payload", "not parseable")
		}))
	}
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_CooldownAllowsProbe(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Minute})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, failTransient))
	assert.Equal(t, BreakerOpen, b.State())

	now := time.Now()
	b.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.Equal(t, BreakerHalfOpen, b.State())

	// A failed probe reopens immediately.
	require.Error(t, b.Execute(ctx, failTransient))
	assert.Equal(t, BreakerOpen, b.State())

	b.now = func() time.Time { return now.Add(5 * time.Minute) }
	require.NoError(t, b.Execute(ctx, func(ctx context.Context) error { return nil }))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	require.Error(t, b.Execute(context.Background(), failTransient))
	assert.Equal(t, BreakerOpen, b.State())

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestExecuteVal_PassesThroughValue(t *testing.T) {
	b := NewBreaker(BreakerConfig{})
	got, err := ExecuteVal(context.Background(), b, func(ctx context.Context) (string, error) {
		return "payload", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "payload", got)
}
