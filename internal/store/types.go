// Package store defines the persistence contracts for device links and
// WordPress connections, with Postgres (managed) and in-memory (standalone)
// implementations in subpackages.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// GenNewID generates a new UUID v7 (time-ordered).
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// LinkStatus is the persisted state of a device link. Expiry is computed from
// ExpiresAt on every read, never trusted from the stored status.
type LinkStatus string

const (
	LinkPending  LinkStatus = "pending"
	LinkApproved LinkStatus = "approved"
	LinkConsumed LinkStatus = "consumed"
)

// DeviceLink is a short-lived pairing request.
type DeviceLink struct {
	ID         uuid.UUID
	UserCode   string
	DeviceCode string
	Status     LinkStatus

	// Populated on approval.
	SiteURL       string
	JWTEncrypted  string
	WriteMode     bool
	PluginVersion string

	CreatedAt  time.Time
	ExpiresAt  time.Time
	ApprovedAt *time.Time
	ConsumedAt *time.Time
}

// Expired reports whether the link is past its TTL, regardless of Status.
func (l *DeviceLink) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// LinkApproval carries the payload the WordPress plugin submits on approval.
type LinkApproval struct {
	SiteURL       string
	JWTEncrypted  string
	WriteMode     bool
	PluginVersion string
	ApprovedAt    time.Time
}

// Connection is a durable per-account, per-site credential. JWTEncrypted is
// always ciphertext; decryption happens in the connections service.
type Connection struct {
	ID           uuid.UUID
	AccountID    string
	SiteURL      string
	JWTEncrypted string
	WriteMode    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastUsedAt   *time.Time
}

var (
	// ErrNotFound is returned when a link or connection does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateCode is returned when a generated code collides with an
	// active row (uniqueness-constraint violation, retried by the caller).
	ErrDuplicateCode = errors.New("store: code already in use")

	// ErrWrongState is returned when a guarded transition (approve, consume)
	// finds the link no longer in the required state.
	ErrWrongState = errors.New("store: link not in required state")
)

// StoreConfig selects and configures the backing stores.
type StoreConfig struct {
	// PostgresDSN enables the Postgres backend. Empty selects standalone
	// in-memory stores.
	PostgresDSN string

	// RedisAddr enables the shared counter store for rate limiting and
	// idempotency. Empty selects the in-process fallback.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EncryptionSecret is the server secret the credential vault derives its
	// key from. Required; there is no unencrypted mode.
	EncryptionSecret string
}

// IsManaged reports whether the Postgres backend is configured.
func (c StoreConfig) IsManaged() bool {
	return c.PostgresDSN != ""
}
