package store

import (
	"context"
	"time"
)

// DeviceLinkStore persists pairing links and their guarded transitions.
type DeviceLinkStore interface {
	// Create inserts a pending link. Returns ErrDuplicateCode when either
	// code collides with an active row.
	Create(ctx context.Context, link *DeviceLink) error

	GetByUserCode(ctx context.Context, userCode string) (*DeviceLink, error)
	GetByDeviceCode(ctx context.Context, deviceCode string) (*DeviceLink, error)

	// Approve transitions pending → approved exactly once, storing the
	// plugin's payload. Returns ErrWrongState if the link is no longer
	// pending or already expired at the store's clock.
	Approve(ctx context.Context, userCode string, approval LinkApproval) error

	// Consume transitions approved → consumed exactly once and persists conn
	// in the same transaction, so a poller that observes consumed is
	// guaranteed the connection row exists.
	Consume(ctx context.Context, deviceCode string, consumedAt time.Time, conn *Connection) error

	// DeleteExpired reclaims rows whose ExpiresAt is before cutoff.
	// Best-effort; correctness never depends on it.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// ConnectionStore persists per-account site credentials.
type ConnectionStore interface {
	// Upsert inserts or replaces the unique (AccountID, SiteURL) row,
	// bumping UpdatedAt.
	Upsert(ctx context.Context, conn *Connection) error

	Get(ctx context.Context, accountID, siteURL string) (*Connection, error)

	// GetPrimary returns the most recently updated connection for the account.
	GetPrimary(ctx context.Context, accountID string) (*Connection, error)

	List(ctx context.Context, accountID string) ([]Connection, error)
	Count(ctx context.Context, accountID string) (int, error)

	// SetWriteMode flips the write flag without touching the credential.
	SetWriteMode(ctx context.Context, accountID, siteURL string, enabled bool) error

	// UpdateCredential rotates the stored ciphertext in place.
	UpdateCredential(ctx context.Context, accountID, siteURL, jwtEncrypted string) error

	// TouchLastUsed records credential use for display ordering.
	TouchLastUsed(ctx context.Context, accountID, siteURL string) error

	Delete(ctx context.Context, accountID, siteURL string) error
}

// Stores bundles the backing stores for wiring.
type Stores struct {
	Links       DeviceLinkStore
	Connections ConnectionStore
}
