package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"
)

// MaxRetriesExceededError wraps the last underlying error after the retry
// budget is spent.
type MaxRetriesExceededError struct {
	Attempts int
	Err      error
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Err)
}

func (e *MaxRetriesExceededError) Unwrap() error {
	return e.Err
}

// Policy controls the attempt budget and the exponential delay curve.
// Delay before attempt k+1 is min(InitialDelay * Multiplier^k, MaxDelay);
// with Jitter enabled a uniform amount in [0%, 25%] of that value is added
// on top, never subtracted, to spread out synchronized retries.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// NetworkProfile suits custodian API calls.
func NetworkProfile() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.5,
		Jitter:       true,
	}
}

// DatabaseProfile suits short transactional retries.
func DatabaseProfile() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// CriticalProfile suits operations that must not give up early.
func CriticalProfile() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   3.0,
		Jitter:       true,
	}
}

type Executor struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
	rand   *rand.Rand
}

func NewExecutor(policy Policy) *Executor {
	return &Executor{
		policy: policy,
		sleep:  sleepContext,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Execute runs op until it succeeds, returns a non-retryable error, or the
// attempt budget is exhausted. isRetryable nil means every error is
// retryable. A non-retryable error is returned immediately without consuming
// a retry.
func (e *Executor) Execute(ctx context.Context, operation string, op func(ctx context.Context) error, isRetryable func(err error) bool) error {
	b := &backoff.Backoff{
		Min:    e.policy.InitialDelay,
		Max:    e.policy.MaxDelay,
		Factor: e.policy.Multiplier,
		Jitter: false,
	}

	var lastErr error
	for attempt := 0; attempt < e.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, e.delayFor(b, attempt-1)); err != nil {
				return err
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}
		log.Warn().Err(lastErr).Msg(fmt.Sprintf("Retryable failure on %s, attempt %d/%d", operation, attempt+1, e.policy.MaxAttempts))
	}

	return &MaxRetriesExceededError{Attempts: e.policy.MaxAttempts, Err: lastErr}
}

// delayFor computes the backoff delay after attempt k (zero-based).
func (e *Executor) delayFor(b *backoff.Backoff, k int) time.Duration {
	delay := b.ForAttempt(float64(k))
	if e.policy.Jitter && delay > 0 {
		delay += time.Duration(e.rand.Int63n(int64(delay)/4 + 1))
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
