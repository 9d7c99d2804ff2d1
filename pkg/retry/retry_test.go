package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts:     maxAttempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryRecoversAfterFailure(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnFatalError(t *testing.T) {
	calls := 0
	fatal := NewFatalError(errors.New("contract violation"))

	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		return fatal
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "fatal errors are never retried")
}

func TestRetryWithCallbackReportsGrowingDelay(t *testing.T) {
	var delays []time.Duration

	err := RetryWithCallback(context.Background(), Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
	}, func() error {
		return errors.New("transient")
	}, func(attempt int, err error, nextDelay time.Duration) {
		delays = append(delays, nextDelay)
	})

	require.Error(t, err)
	require.Len(t, delays, 2)
	assert.Equal(t, delays[0]*2, delays[1], "each delay doubles the previous one")
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
	}, func() error {
		calls++
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "cancelled context stops further attempts")
}
