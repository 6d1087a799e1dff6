package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process Store fallback. Counters are only visible to
// this process: a multi-instance deployment without Redis under-counts true
// request volume.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry

	now func() time.Time // overridable in tests
}

type memEntry struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry, 64),
		now:     time.Now,
	}
}

func (s *MemoryStore) IncrEx(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	e, ok := s.entries[key]
	if !ok || now.After(e.expiresAt) {
		e = &memEntry{expiresAt: now.Add(ttl)}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		return false, nil
	}
	s.entries[key] = &memEntry{value: value, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.now().After(e.expiresAt) {
		return nil, ErrNotFound
	}
	return e.value, nil
}

// pruneLocked lazily drops expired entries. Must be called with mu held.
func (s *MemoryStore) pruneLocked(now time.Time) {
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}
