package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stayops/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FailureThreshold:  3,
		OpenDuration:      30 * time.Millisecond,
		HalfOpenMaxProbes: 2,
		SuccessThreshold:  2,
	}
}

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("store", testConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.Error(t, b.Do(ctx, func() error { return errBoom }))
		assert.Equal(t, StateClosed, b.State())
	}

	require.Error(t, b.Do(ctx, func() error { return errBoom }))
	assert.Equal(t, StateOpen, b.State())

	err := b.Do(ctx, func() error {
		t.Fatal("call must not run while open")
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.ErrorIs(t, err, shared.ErrUnavailable)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("store", testConfig())
	ctx := context.Background()

	assert.Error(t, b.Do(ctx, func() error { return errBoom }))
	assert.Error(t, b.Do(ctx, func() error { return errBoom }))
	assert.NoError(t, b.Do(ctx, func() error { return nil }))
	assert.Error(t, b.Do(ctx, func() error { return errBoom }))
	assert.Error(t, b.Do(ctx, func() error { return errBoom }))

	assert.Equal(t, StateClosed, b.State(), "interleaved success must reset the failure streak")
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	b := NewBreaker("cache", testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, func() error { return errBoom })
	}
	require.Equal(t, StateOpen, b.State())

	time.Sleep(40 * time.Millisecond)

	// First call after the open window is a probe.
	require.NoError(t, b.Do(ctx, func() error { return nil }))
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Do(ctx, func() error { return nil }))
	assert.Equal(t, StateClosed, b.State(), "two probe successes close the breaker")
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := NewBreaker("cache", testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, func() error { return errBoom })
	}
	time.Sleep(40 * time.Millisecond)

	require.Error(t, b.Do(ctx, func() error { return errBoom }))
	assert.Equal(t, StateOpen, b.State())

	err := b.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen, "a failed probe must reopen immediately")
}

func TestBreaker_HalfOpenLimitsProbes(t *testing.T) {
	b := NewBreaker("queue", testConfig())

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	time.Sleep(40 * time.Millisecond)

	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow(), "probe budget is two calls")
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_ContextCancelationIsNotAFailure(t *testing.T) {
	b := NewBreaker("store", testConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		err := b.Do(ctx, func() error { return context.Canceled })
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_Stats(t *testing.T) {
	b := NewBreaker("store", testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Do(ctx, func() error { return errBoom })
	}
	_ = b.Do(ctx, func() error { return nil })

	stats := b.Stats()
	assert.Equal(t, "store", stats.Name)
	assert.Equal(t, "open", stats.State)
	assert.Equal(t, int64(1), stats.Opens)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.False(t, stats.LastFailureAt.IsZero())
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker("store", testConfig())
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}
