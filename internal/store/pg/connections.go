package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/wpbridge/internal/store"
)

// ConnectionStore implements store.ConnectionStore backed by Postgres.
type ConnectionStore struct {
	db *sql.DB
}

func NewConnectionStore(db *sql.DB) *ConnectionStore {
	return &ConnectionStore{db: db}
}

const connColumns = `id, account_id, site_url, jwt_encrypted, write_mode,
	created_at, updated_at, last_used_at`

func (s *ConnectionStore) Upsert(ctx context.Context, conn *store.Connection) error {
	if conn.ID == uuid.Nil {
		conn.ID = store.GenNewID()
	}
	now := time.Now().UTC()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wp_connections (id, account_id, site_url, jwt_encrypted, write_mode, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (account_id, site_url) DO UPDATE
		 SET jwt_encrypted = EXCLUDED.jwt_encrypted,
		     write_mode = EXCLUDED.write_mode,
		     updated_at = EXCLUDED.updated_at`,
		conn.ID, conn.AccountID, conn.SiteURL, conn.JWTEncrypted, conn.WriteMode, conn.CreatedAt, conn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	return nil
}

func (s *ConnectionStore) Get(ctx context.Context, accountID, siteURL string) (*store.Connection, error) {
	return s.scanConn(s.db.QueryRowContext(ctx,
		`SELECT `+connColumns+` FROM wp_connections WHERE account_id = $1 AND site_url = $2`,
		accountID, siteURL))
}

func (s *ConnectionStore) GetPrimary(ctx context.Context, accountID string) (*store.Connection, error) {
	return s.scanConn(s.db.QueryRowContext(ctx,
		`SELECT `+connColumns+` FROM wp_connections WHERE account_id = $1
		 ORDER BY updated_at DESC LIMIT 1`, accountID))
}

func (s *ConnectionStore) scanConn(row *sql.Row) (*store.Connection, error) {
	var c store.Connection
	var lastUsed *time.Time
	err := row.Scan(&c.ID, &c.AccountID, &c.SiteURL, &c.JWTEncrypted, &c.WriteMode,
		&c.CreatedAt, &c.UpdatedAt, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan connection: %w", err)
	}
	c.LastUsedAt = lastUsed
	return &c, nil
}

func (s *ConnectionStore) List(ctx context.Context, accountID string) ([]store.Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+connColumns+` FROM wp_connections WHERE account_id = $1
		 ORDER BY updated_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	result := []store.Connection{}
	for rows.Next() {
		var c store.Connection
		var lastUsed *time.Time
		if err := rows.Scan(&c.ID, &c.AccountID, &c.SiteURL, &c.JWTEncrypted, &c.WriteMode,
			&c.CreatedAt, &c.UpdatedAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		c.LastUsedAt = lastUsed
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *ConnectionStore) Count(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wp_connections WHERE account_id = $1`, accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count connections: %w", err)
	}
	return n, nil
}

func (s *ConnectionStore) SetWriteMode(ctx context.Context, accountID, siteURL string, enabled bool) error {
	return s.exec(ctx,
		`UPDATE wp_connections SET write_mode = $3, updated_at = $4
		 WHERE account_id = $1 AND site_url = $2`,
		accountID, siteURL, enabled, time.Now().UTC())
}

func (s *ConnectionStore) UpdateCredential(ctx context.Context, accountID, siteURL, jwtEncrypted string) error {
	return s.exec(ctx,
		`UPDATE wp_connections SET jwt_encrypted = $3, updated_at = $4
		 WHERE account_id = $1 AND site_url = $2`,
		accountID, siteURL, jwtEncrypted, time.Now().UTC())
}

func (s *ConnectionStore) TouchLastUsed(ctx context.Context, accountID, siteURL string) error {
	return s.exec(ctx,
		`UPDATE wp_connections SET last_used_at = $3
		 WHERE account_id = $1 AND site_url = $2`,
		accountID, siteURL, time.Now().UTC())
}

func (s *ConnectionStore) Delete(ctx context.Context, accountID, siteURL string) error {
	return s.exec(ctx,
		`DELETE FROM wp_connections WHERE account_id = $1 AND site_url = $2`,
		accountID, siteURL)
}

func (s *ConnectionStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}
