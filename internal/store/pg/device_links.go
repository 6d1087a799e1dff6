package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/wpbridge/internal/store"
)

// DeviceLinkStore implements store.DeviceLinkStore backed by Postgres.
type DeviceLinkStore struct {
	db *sql.DB
}

func NewDeviceLinkStore(db *sql.DB) *DeviceLinkStore {
	return &DeviceLinkStore{db: db}
}

const linkColumns = `id, user_code, device_code, status, site_url, jwt_encrypted,
	write_mode, plugin_version, created_at, expires_at, approved_at, consumed_at`

func (s *DeviceLinkStore) Create(ctx context.Context, link *store.DeviceLink) error {
	if link.ID == uuid.Nil {
		link.ID = store.GenNewID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_links (id, user_code, device_code, status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		link.ID, link.UserCode, link.DeviceCode, link.Status, link.CreatedAt, link.ExpiresAt,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("create device link: %w", err)
	}
	return nil
}

func (s *DeviceLinkStore) GetByUserCode(ctx context.Context, userCode string) (*store.DeviceLink, error) {
	return s.scanLink(s.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM device_links WHERE user_code = $1`, userCode))
}

func (s *DeviceLinkStore) GetByDeviceCode(ctx context.Context, deviceCode string) (*store.DeviceLink, error) {
	return s.scanLink(s.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM device_links WHERE device_code = $1`, deviceCode))
}

func (s *DeviceLinkStore) scanLink(row *sql.Row) (*store.DeviceLink, error) {
	var l store.DeviceLink
	var siteURL, jwtEnc, pluginVersion *string
	var approvedAt, consumedAt *time.Time
	err := row.Scan(
		&l.ID, &l.UserCode, &l.DeviceCode, &l.Status, &siteURL, &jwtEnc,
		&l.WriteMode, &pluginVersion, &l.CreatedAt, &l.ExpiresAt, &approvedAt, &consumedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan device link: %w", err)
	}
	l.SiteURL = derefStr(siteURL)
	l.JWTEncrypted = derefStr(jwtEnc)
	l.PluginVersion = derefStr(pluginVersion)
	l.ApprovedAt = approvedAt
	l.ConsumedAt = consumedAt
	return &l, nil
}

func (s *DeviceLinkStore) Approve(ctx context.Context, userCode string, a store.LinkApproval) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE device_links
		 SET status = $1, site_url = $2, jwt_encrypted = $3, write_mode = $4,
		     plugin_version = $5, approved_at = $6
		 WHERE user_code = $7 AND status = $8 AND expires_at > $6`,
		store.LinkApproved, a.SiteURL, a.JWTEncrypted, a.WriteMode,
		nilStr(a.PluginVersion), a.ApprovedAt, userCode, store.LinkPending,
	)
	if err != nil {
		return fmt.Errorf("approve device link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrWrongState
	}
	return nil
}

// Consume marks the link consumed and upserts the connection in one
// transaction. The guard on status makes a second concurrent consume lose
// with ErrWrongState instead of re-executing the upsert.
func (s *DeviceLinkStore) Consume(ctx context.Context, deviceCode string, consumedAt time.Time, conn *store.Connection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin consume: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE device_links SET status = $1, consumed_at = $2
		 WHERE device_code = $3 AND status = $4`,
		store.LinkConsumed, consumedAt, deviceCode, store.LinkApproved,
	)
	if err != nil {
		return fmt.Errorf("consume device link: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrWrongState
	}

	if conn.ID == uuid.Nil {
		conn.ID = store.GenNewID()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO wp_connections (id, account_id, site_url, jwt_encrypted, write_mode, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (account_id, site_url) DO UPDATE
		 SET jwt_encrypted = EXCLUDED.jwt_encrypted,
		     write_mode = EXCLUDED.write_mode,
		     updated_at = EXCLUDED.updated_at`,
		conn.ID, conn.AccountID, conn.SiteURL, conn.JWTEncrypted, conn.WriteMode, consumedAt,
	)
	if err != nil {
		return fmt.Errorf("persist connection: %w", err)
	}

	return tx.Commit()
}

func (s *DeviceLinkStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM device_links WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired links: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
