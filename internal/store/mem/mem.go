// Package mem implements the store interfaces in process memory. Used in
// standalone deployments and tests; managed deployments use internal/store/pg.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/wpbridge/internal/store"
)

// Stores holds both in-memory stores. A single mutex guards everything so the
// consume transition and its connection upsert are atomic, matching the
// Postgres transaction.
type Stores struct {
	mu          sync.Mutex
	links       map[string]*store.DeviceLink // keyed by device code
	byUserCode  map[string]string            // user code → device code
	connections map[connKey]*store.Connection
}

type connKey struct {
	accountID string
	siteURL   string
}

// New creates empty in-memory stores.
func New() *Stores {
	return &Stores{
		links:       make(map[string]*store.DeviceLink),
		byUserCode:  make(map[string]string),
		connections: make(map[connKey]*store.Connection),
	}
}

// Links returns the device link store view.
func (s *Stores) Links() store.DeviceLinkStore { return (*linkStore)(s) }

// Connections returns the connection store view.
func (s *Stores) Connections() store.ConnectionStore { return (*connStore)(s) }

// --- DeviceLinkStore ---

type linkStore Stores

func (s *linkStore) Create(_ context.Context, link *store.DeviceLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[link.DeviceCode]; ok {
		return store.ErrDuplicateCode
	}
	if _, ok := s.byUserCode[link.UserCode]; ok {
		return store.ErrDuplicateCode
	}
	if link.ID == uuid.Nil {
		link.ID = store.GenNewID()
	}
	cp := *link
	s.links[link.DeviceCode] = &cp
	s.byUserCode[link.UserCode] = link.DeviceCode
	return nil
}

func (s *linkStore) GetByUserCode(_ context.Context, userCode string) (*store.DeviceLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dc, ok := s.byUserCode[userCode]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyLink(s.links[dc]), nil
}

func (s *linkStore) GetByDeviceCode(_ context.Context, deviceCode string) (*store.DeviceLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[deviceCode]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyLink(l), nil
}

func (s *linkStore) Approve(_ context.Context, userCode string, a store.LinkApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dc, ok := s.byUserCode[userCode]
	if !ok {
		return store.ErrWrongState
	}
	l := s.links[dc]
	if l.Status != store.LinkPending || a.ApprovedAt.After(l.ExpiresAt) {
		return store.ErrWrongState
	}
	l.Status = store.LinkApproved
	l.SiteURL = a.SiteURL
	l.JWTEncrypted = a.JWTEncrypted
	l.WriteMode = a.WriteMode
	l.PluginVersion = a.PluginVersion
	at := a.ApprovedAt
	l.ApprovedAt = &at
	return nil
}

func (s *linkStore) Consume(_ context.Context, deviceCode string, consumedAt time.Time, conn *store.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[deviceCode]
	if !ok || l.Status != store.LinkApproved {
		return store.ErrWrongState
	}
	l.Status = store.LinkConsumed
	at := consumedAt
	l.ConsumedAt = &at

	(*connStore)(s).upsertLocked(conn, consumedAt)
	return nil
}

func (s *linkStore) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for dc, l := range s.links {
		if l.ExpiresAt.Before(cutoff) {
			delete(s.links, dc)
			delete(s.byUserCode, l.UserCode)
			n++
		}
	}
	return n, nil
}

func copyLink(l *store.DeviceLink) *store.DeviceLink {
	cp := *l
	return &cp
}

// --- ConnectionStore ---

type connStore Stores

func (s *connStore) upsertLocked(conn *store.Connection, now time.Time) {
	key := connKey{conn.AccountID, conn.SiteURL}
	if existing, ok := s.connections[key]; ok {
		existing.JWTEncrypted = conn.JWTEncrypted
		existing.WriteMode = conn.WriteMode
		existing.UpdatedAt = now
		return
	}
	if conn.ID == uuid.Nil {
		conn.ID = store.GenNewID()
	}
	cp := *conn
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.connections[key] = &cp
}

func (s *connStore) Upsert(_ context.Context, conn *store.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(conn, time.Now().UTC())
	return nil
}

func (s *connStore) Get(_ context.Context, accountID, siteURL string) (*store.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.connections[connKey{accountID, siteURL}]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *connStore) GetPrimary(_ context.Context, accountID string) (*store.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *store.Connection
	for k, c := range s.connections {
		if k.accountID != accountID {
			continue
		}
		if best == nil || c.UpdatedAt.After(best.UpdatedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *connStore) List(_ context.Context, accountID string) ([]store.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []store.Connection{}
	for k, c := range s.connections {
		if k.accountID == accountID {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (s *connStore) Count(_ context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k := range s.connections {
		if k.accountID == accountID {
			n++
		}
	}
	return n, nil
}

func (s *connStore) SetWriteMode(_ context.Context, accountID, siteURL string, enabled bool) error {
	return s.update(accountID, siteURL, func(c *store.Connection) {
		c.WriteMode = enabled
		c.UpdatedAt = time.Now().UTC()
	})
}

func (s *connStore) UpdateCredential(_ context.Context, accountID, siteURL, jwtEncrypted string) error {
	return s.update(accountID, siteURL, func(c *store.Connection) {
		c.JWTEncrypted = jwtEncrypted
		c.UpdatedAt = time.Now().UTC()
	})
}

func (s *connStore) TouchLastUsed(_ context.Context, accountID, siteURL string) error {
	return s.update(accountID, siteURL, func(c *store.Connection) {
		now := time.Now().UTC()
		c.LastUsedAt = &now
	})
}

func (s *connStore) Delete(_ context.Context, accountID, siteURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := connKey{accountID, siteURL}
	if _, ok := s.connections[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.connections, key)
	return nil
}

func (s *connStore) update(accountID, siteURL string, fn func(*store.Connection)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.connections[connKey{accountID, siteURL}]
	if !ok {
		return store.ErrNotFound
	}
	fn(c)
	return nil
}
