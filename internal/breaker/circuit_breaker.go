package breaker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vaultline/custodian-backend/internal/pkg/cache"
)

const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

const (
	DefaultFailureThreshold     = 5
	DefaultSuccessThreshold     = 2
	DefaultTimeout              = 60 * time.Second
	DefaultFailureRateThreshold = 0.5
	DefaultSampleSize           = 10
)

// CircuitOpenError signals that the breaker rejected the call without
// invoking the operation.
type CircuitOpenError struct {
	Service string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("service %s is currently unavailable", e.Service)
}

type Config struct {
	FailureThreshold     int
	SuccessThreshold     int
	Timeout              time.Duration
	FailureRateThreshold float64
	SampleSize           int
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.FailureRateThreshold <= 0 {
		c.FailureRateThreshold = DefaultFailureRateThreshold
	}
	if c.SampleSize <= 0 {
		c.SampleSize = DefaultSampleSize
	}
	return c
}

// Metrics is the health monitor's view of one service circuit.
type Metrics struct {
	State                string  `json:"state"`
	TotalCalls           int     `json:"totalCalls"`
	SuccessCount         int     `json:"successCount"`
	FailureCount         int     `json:"failureCount"`
	FailureRate          float64 `json:"failureRate"`
	ConsecutiveFailures  int64   `json:"consecutiveFailures"`
	ConsecutiveSuccesses int64   `json:"consecutiveSuccesses"`
	LastFailureAt        *int64  `json:"lastFailureAt"`
	CircuitOpenedAt      *int64  `json:"circuitOpenedAt"`
}

type callRecord struct {
	Success   bool  `json:"success"`
	Timestamp int64 `json:"timestamp"`
}

// Breaker tracks per-service outcomes in the shared key-value store so the
// closed/open/half_open decision is visible to every worker instance.
type Breaker struct {
	store  cache.Store
	config Config
	now    func() time.Time
}

func New(store cache.Store, config Config) *Breaker {
	return &Breaker{
		store:  store,
		config: config.withDefaults(),
		now:    time.Now,
	}
}

// Execute runs op under circuit protection for the given service key. When
// the circuit is open and the timeout has not elapsed, op is never invoked:
// the fallback runs instead, or a CircuitOpenError is returned. Failures of
// op are recorded and re-raised (or replaced by the fallback's outcome).
func (b *Breaker) Execute(ctx context.Context, service string, op func(ctx context.Context) error, fallback func(ctx context.Context) error) error {
	state, err := b.State(ctx, service)
	if err != nil {
		return err
	}

	if state == StateOpen {
		if b.shouldAttemptReset(ctx, service) {
			b.transitionTo(ctx, service, StateHalfOpen)
			state = StateHalfOpen
		} else {
			log.Warn().Msg(fmt.Sprintf("Circuit breaker open for service: %s", service))
			if fallback != nil {
				return fallback(ctx)
			}
			return &CircuitOpenError{Service: service}
		}
	}

	opErr := op(ctx)
	if opErr == nil {
		b.recordSuccess(ctx, service)
		if state == StateHalfOpen && b.canCloseCircuit(ctx, service) {
			b.transitionTo(ctx, service, StateClosed)
			b.store.Del(ctx, b.key(service, "opened_at"))
		}
		return nil
	}

	b.recordFailure(ctx, service)
	// Any failure while probing re-opens immediately.
	if state == StateHalfOpen || b.shouldOpenCircuit(ctx, service) {
		b.open(ctx, service)
	}

	if fallback != nil {
		log.Info().Err(opErr).Msg(fmt.Sprintf("Using fallback for service: %s", service))
		return fallback(ctx)
	}
	return opErr
}

func (b *Breaker) State(ctx context.Context, service string) (string, error) {
	state, ok, err := b.store.Get(ctx, b.key(service, "state"))
	if err != nil {
		return "", err
	}
	if !ok {
		return StateClosed, nil
	}
	return state, nil
}

// IsAvailable reports whether the circuit is not open.
func (b *Breaker) IsAvailable(ctx context.Context, service string) bool {
	state, err := b.State(ctx, service)
	if err != nil {
		return false
	}
	return state != StateOpen
}

// Reset forces the circuit closed and clears all counters. Operator escape
// hatch.
func (b *Breaker) Reset(ctx context.Context, service string) {
	b.transitionTo(ctx, service, StateClosed)
	b.store.Del(ctx,
		b.key(service, "recent_calls"),
		b.key(service, "consecutive_failures"),
		b.key(service, "consecutive_successes"),
		b.key(service, "last_failure"),
		b.key(service, "opened_at"),
	)
}

func (b *Breaker) Metrics(ctx context.Context, service string) Metrics {
	state, _ := b.State(ctx, service)
	calls := b.recentCalls(ctx, service)
	failures := 0
	for _, call := range calls {
		if !call.Success {
			failures++
		}
	}
	failureRate := 0.0
	if len(calls) > 0 {
		failureRate = math.Round(float64(failures)/float64(len(calls))*10000) / 100
	}
	return Metrics{
		State:                state,
		TotalCalls:           len(calls),
		SuccessCount:         len(calls) - failures,
		FailureCount:         failures,
		FailureRate:          failureRate,
		ConsecutiveFailures:  b.counter(ctx, service, "consecutive_failures"),
		ConsecutiveSuccesses: b.counter(ctx, service, "consecutive_successes"),
		LastFailureAt:        b.timestamp(ctx, service, "last_failure"),
		CircuitOpenedAt:      b.timestamp(ctx, service, "opened_at"),
	}
}

func (b *Breaker) recordSuccess(ctx context.Context, service string) {
	b.recordCall(ctx, service, true)
	b.store.Incr(ctx, b.key(service, "consecutive_successes"), b.stateTTL())
	b.store.Set(ctx, b.key(service, "consecutive_failures"), "0", b.stateTTL())
}

func (b *Breaker) recordFailure(ctx context.Context, service string) {
	b.recordCall(ctx, service, false)
	b.store.Incr(ctx, b.key(service, "consecutive_failures"), b.stateTTL())
	b.store.Set(ctx, b.key(service, "consecutive_successes"), "0", b.stateTTL())
	b.store.Set(ctx, b.key(service, "last_failure"), strconv.FormatInt(b.now().Unix(), 10), b.stateTTL())
}

func (b *Breaker) recordCall(ctx context.Context, service string, success bool) {
	record, _ := json.Marshal(callRecord{Success: success, Timestamp: b.now().Unix()})
	b.store.PushCapped(ctx, b.key(service, "recent_calls"), string(record), b.config.SampleSize, b.stateTTL())
}

func (b *Breaker) shouldOpenCircuit(ctx context.Context, service string) bool {
	if b.counter(ctx, service, "consecutive_failures") >= int64(b.config.FailureThreshold) {
		return true
	}

	// The failure-rate rule only kicks in once a full sample window exists;
	// low-volume services can only open via consecutive failures.
	calls := b.recentCalls(ctx, service)
	if len(calls) >= b.config.SampleSize {
		failures := 0
		for _, call := range calls {
			if !call.Success {
				failures++
			}
		}
		return float64(failures)/float64(len(calls)) >= b.config.FailureRateThreshold
	}
	return false
}

func (b *Breaker) canCloseCircuit(ctx context.Context, service string) bool {
	return b.counter(ctx, service, "consecutive_successes") >= int64(b.config.SuccessThreshold)
}

func (b *Breaker) shouldAttemptReset(ctx context.Context, service string) bool {
	openedAt := b.timestamp(ctx, service, "opened_at")
	if openedAt == nil {
		return true
	}
	return b.now().Unix()-*openedAt >= int64(b.config.Timeout.Seconds())
}

func (b *Breaker) open(ctx context.Context, service string) {
	b.transitionTo(ctx, service, StateOpen)
	b.store.Set(ctx, b.key(service, "opened_at"), strconv.FormatInt(b.now().Unix(), 10), b.stateTTL())
	log.Warn().Msg(fmt.Sprintf("Circuit breaker opened for service: %s", service))
}

func (b *Breaker) transitionTo(ctx context.Context, service string, state string) {
	b.store.Set(ctx, b.key(service, "state"), state, b.stateTTL())
	log.Info().Msg(fmt.Sprintf("Circuit breaker %s for service: %s", state, service))
}

func (b *Breaker) recentCalls(ctx context.Context, service string) []callRecord {
	values, err := b.store.Range(ctx, b.key(service, "recent_calls"))
	if err != nil {
		return nil
	}
	calls := make([]callRecord, 0, len(values))
	for _, value := range values {
		var record callRecord
		if err := json.Unmarshal([]byte(value), &record); err == nil {
			calls = append(calls, record)
		}
	}
	return calls
}

func (b *Breaker) counter(ctx context.Context, service string, name string) int64 {
	value, ok, err := b.store.Get(ctx, b.key(service, name))
	if err != nil || !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func (b *Breaker) timestamp(ctx context.Context, service string, name string) *int64 {
	value, ok, err := b.store.Get(ctx, b.key(service, name))
	if err != nil || !ok {
		return nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

func (b *Breaker) stateTTL() time.Duration {
	return b.config.Timeout * 2
}

func (b *Breaker) key(service string, name string) string {
	return fmt.Sprintf("circuit_breaker:%s:%s", service, name)
}
