// Package idempotency provides a content-addressed response cache so clients
// can safely retry mutating endpoints with an Idempotency-Key header.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/nextlevelbuilder/wpbridge/internal/kv"
)

// DefaultTTL is how long a cached response is replayable.
const DefaultTTL = 24 * time.Hour

// Record is a stored response. Once written it is immutable for its TTL.
type Record struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Cache stores first-writer-wins response records in the shared kv store.
type Cache struct {
	store kv.Store
	ttl   time.Duration
}

// New creates a cache. ttl <= 0 selects DefaultTTL.
func New(store kv.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl}
}

// MakeKey derives the cache slot from the route, the caller-supplied key, and
// a canonicalized form of the request body. Two different bodies under the
// same caller key never share a slot.
func MakeKey(route, callerKey string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(route))
	h.Write([]byte{0})
	h.Write([]byte(callerKey))
	h.Write([]byte{0})
	h.Write(canonicalize(body))
	return "idem:" + hex.EncodeToString(h.Sum(nil))
}

// canonicalize re-marshals valid JSON so key order does not affect the hash.
// Non-JSON bodies hash as raw bytes.
func canonicalize(body []byte) []byte {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return body
	}
	out, err := json.Marshal(v)
	if err != nil {
		return body
	}
	return out
}

// Get returns the stored record for key, or nil if absent.
func (c *Cache) Get(ctx context.Context, key string) (*Record, error) {
	b, err := c.store.Get(ctx, key)
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Set stores rec with set-if-absent semantics. Returns false when another
// writer already owns the slot; the caller should then serve that writer's
// record instead of its own result.
func (c *Cache) Set(ctx context.Context, key string, rec Record) (bool, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	return c.store.SetNX(ctx, key, b, c.ttl)
}
