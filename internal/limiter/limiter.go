// Package limiter enforces per-key fixed-window request budgets on top of the
// shared kv store. Windows are approximate at their edges; the goal is abuse
// dampening, not exact accounting.
package limiter

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/wpbridge/internal/kv"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter struct {
	store kv.Store
}

// New creates a limiter over the given store. Pass a kv.MemoryStore when no
// shared store is configured (single-instance degraded mode).
func New(store kv.Store) *RateLimiter {
	return &RateLimiter{store: store}
}

// Allow records one request for key and reports whether it fits within max
// requests per window. The first request of a window initializes the counter
// with a TTL equal to the window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	n, err := rl.store.IncrEx(ctx, "rl:"+key, window)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Allowed: n <= int64(max),
		ResetAt: time.Now().Add(window),
	}
	if remaining := int64(max) - n; remaining > 0 {
		d.Remaining = int(remaining)
	}
	if !d.Allowed {
		slog.Warn("security.rate_limited", "key", key, "count", n, "max", max)
	}
	return d, nil
}
