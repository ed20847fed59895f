package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection reset")

func newTestExecutor(policy Policy) (*Executor, *[]time.Duration) {
	executor := NewExecutor(policy)
	var delays []time.Duration
	executor.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return executor, &delays
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	executor, delays := newTestExecutor(NetworkProfile())

	attempts := 0
	err := executor.Execute(context.Background(), "getBalance", func(context.Context) error {
		attempts++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *delays)
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	executor, delays := newTestExecutor(NetworkProfile())

	attempts := 0
	err := executor.Execute(context.Background(), "getBalance", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, *delays, 2)
}

func TestExecuteExhaustsBudget(t *testing.T) {
	executor, _ := newTestExecutor(NetworkProfile())

	attempts := 0
	err := executor.Execute(context.Background(), "getBalance", func(context.Context) error {
		attempts++
		return errTransient
	}, nil)

	var exceeded *MaxRetriesExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 3, exceeded.Attempts)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, attempts)
}

func TestExecuteReturnsNonRetryableImmediately(t *testing.T) {
	executor, delays := newTestExecutor(NetworkProfile())
	permanent := errors.New("account does not exist")

	attempts := 0
	err := executor.Execute(context.Background(), "initiateTransfer", func(context.Context) error {
		attempts++
		return permanent
	}, func(err error) bool {
		return !errors.Is(err, permanent)
	})

	require.ErrorIs(t, err, permanent)
	var exceeded *MaxRetriesExceededError
	assert.False(t, errors.As(err, &exceeded))
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *delays)
}

func TestDelaySequenceWithoutJitter(t *testing.T) {
	policy := Policy{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
	executor, delays := newTestExecutor(policy)

	err := executor.Execute(context.Background(), "getBalance", func(context.Context) error {
		return errTransient
	}, nil)

	require.Error(t, err)
	require.Len(t, *delays, 4)
	assert.Equal(t, 100*time.Millisecond, (*delays)[0])
	assert.Equal(t, 200*time.Millisecond, (*delays)[1])
	assert.Equal(t, 400*time.Millisecond, (*delays)[2])
	// Capped at MaxDelay.
	assert.Equal(t, 500*time.Millisecond, (*delays)[3])
}

func TestJitterOnlyAddsDelay(t *testing.T) {
	policy := Policy{
		MaxAttempts:  4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
	executor, delays := newTestExecutor(policy)

	err := executor.Execute(context.Background(), "getBalance", func(context.Context) error {
		return errTransient
	}, nil)
	require.Error(t, err)
	require.Len(t, *delays, 3)

	bases := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i, base := range bases {
		assert.GreaterOrEqual(t, (*delays)[i], base)
		assert.LessOrEqual(t, (*delays)[i], base+base/4)
	}
}

func TestExecuteStopsOnContextCancel(t *testing.T) {
	executor := NewExecutor(NetworkProfile())
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := executor.Execute(ctx, "getBalance", func(context.Context) error {
		attempts++
		cancel()
		return errTransient
	}, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
