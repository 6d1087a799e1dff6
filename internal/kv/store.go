// Package kv abstracts the shared counter/value store used by rate limiting
// and idempotency. A Redis backend serves multi-instance deployments; the
// in-process backend is a documented single-instance fallback.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is a multi-tenant key-scoped store. All operations are atomic per
// key; there are no cross-key transactions.
type Store interface {
	// IncrEx atomically increments the counter at key and returns the new
	// value. A key observed without a TTL (including on first increment)
	// gets one equal to ttl.
	IncrEx(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// SetNX stores value under key with the given TTL only if the key is
	// absent. Returns true if this call performed the write.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}
