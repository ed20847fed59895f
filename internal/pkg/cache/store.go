package cache

import (
	"context"
	"time"
)

// Store is the shared key-value store used for circuit breaker state, alert
// cooldown flags, cached health statuses and fallback balances. All counter
// mutations go through atomic operations so state stays correct when many
// workers hit the same custodian at once.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// SetNX sets the key only if it does not exist and reports whether it did.
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	// Incr atomically increments the counter at key, refreshing its TTL.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Del(ctx context.Context, keys ...string) error
	// PushCapped appends value to the list at key, evicting the oldest
	// entries beyond capacity.
	PushCapped(ctx context.Context, key string, value string, capacity int, ttl time.Duration) error
	Range(ctx context.Context, key string) ([]string, error)
}
