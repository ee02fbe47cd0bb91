package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second}

	attempts := 0
	start := time.Now()
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		if attempts <= 2 {
			return errors.New("http 503")
		}
		return nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	// Two retries: one after ~10ms, one after ~20ms.
	assert.Equal(t, 3, attempts)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestDoExhaustsAttempts(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Millisecond}

	attempts := 0
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return errors.New("http 503")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.EqualError(t, err, "http 503")
}

func TestDoStopsOnPermanentError(t *testing.T) {
	policy := Policy{MaxAttempts: 5, InitialDelay: time.Millisecond}

	attempts := 0
	cause := errors.New("http 400: invalid amount")
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return Permanent(cause)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, cause, err)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialDelay: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, policy, func(ctx context.Context) error {
		attempts++
		return errors.New("http 503")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestBackoffDoubles(t *testing.T) {
	policy := Policy{MaxAttempts: 4, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

	assert.Equal(t, 2*time.Second, policy.Backoff(0))
	assert.Equal(t, 4*time.Second, policy.Backoff(1))
	assert.Equal(t, 8*time.Second, policy.Backoff(2))
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	policy := Policy{MaxAttempts: 10, InitialDelay: 2 * time.Second, MaxDelay: 5 * time.Second}

	assert.Equal(t, 5*time.Second, policy.Backoff(4))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(Permanent(errors.New("nope"))))
	assert.False(t, IsPermanent(errors.New("nope")))
	assert.NoError(t, Permanent(nil))
}
