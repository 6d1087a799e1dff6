// Package connections manages per-account WordPress site credentials:
// encrypted persistence, selection, and access-token rotation.
package connections

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/wpbridge/internal/crypto"
	"github.com/nextlevelbuilder/wpbridge/internal/store"
)

// Site is a decrypted view of a connection. Callers never see ciphertext.
type Site struct {
	SiteURL    string
	JWT        string
	WriteMode  bool
	UpdatedAt  time.Time
	LastUsedAt *time.Time
}

// Service wraps the connection store with the credential vault.
type Service struct {
	store store.ConnectionStore
	vault *crypto.Vault
}

func NewService(st store.ConnectionStore, vault *crypto.Vault) *Service {
	return &Service{store: st, vault: vault}
}

// Save encrypts jwt and inserts or replaces the (account, site) row.
func (s *Service) Save(ctx context.Context, accountID, siteURL, jwt string, writeMode bool) error {
	enc, err := s.vault.Encrypt(jwt)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}
	return s.store.Upsert(ctx, &store.Connection{
		AccountID:    accountID,
		SiteURL:      siteURL,
		JWTEncrypted: enc,
		WriteMode:    writeMode,
	})
}

// Get returns the decrypted connection for (account, site).
func (s *Service) Get(ctx context.Context, accountID, siteURL string) (*Site, error) {
	conn, err := s.store.Get(ctx, accountID, siteURL)
	if err != nil {
		return nil, err
	}
	return s.decrypt(conn)
}

// GetPrimary returns the account's most recently updated connection.
func (s *Service) GetPrimary(ctx context.Context, accountID string) (*Site, error) {
	conn, err := s.store.GetPrimary(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.decrypt(conn)
}

// List returns all of the account's connections, newest first.
func (s *Service) List(ctx context.Context, accountID string) ([]Site, error) {
	conns, err := s.store.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	sites := make([]Site, 0, len(conns))
	for i := range conns {
		site, err := s.decrypt(&conns[i])
		if err != nil {
			return nil, err
		}
		sites = append(sites, *site)
	}
	return sites, nil
}

// Count returns the number of connections the account holds.
func (s *Service) Count(ctx context.Context, accountID string) (int, error) {
	return s.store.Count(ctx, accountID)
}

// SetWriteMode flips the mutating-tools gate without touching the credential.
func (s *Service) SetWriteMode(ctx context.Context, accountID, siteURL string, enabled bool) error {
	return s.store.SetWriteMode(ctx, accountID, siteURL, enabled)
}

// Rotate replaces the stored access credential in place (token refresh).
func (s *Service) Rotate(ctx context.Context, accountID, siteURL, jwt string) error {
	enc, err := s.vault.Encrypt(jwt)
	if err != nil {
		return fmt.Errorf("encrypt rotated credential: %w", err)
	}
	return s.store.UpdateCredential(ctx, accountID, siteURL, enc)
}

// TouchLastUsed records credential use for display ordering.
func (s *Service) TouchLastUsed(ctx context.Context, accountID, siteURL string) error {
	return s.store.TouchLastUsed(ctx, accountID, siteURL)
}

// Disconnect removes the (account, site) row.
func (s *Service) Disconnect(ctx context.Context, accountID, siteURL string) error {
	return s.store.Delete(ctx, accountID, siteURL)
}

func (s *Service) decrypt(conn *store.Connection) (*Site, error) {
	jwt, err := s.vault.Decrypt(conn.JWTEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential for %s: %w", conn.SiteURL, err)
	}
	return &Site{
		SiteURL:    conn.SiteURL,
		JWT:        jwt,
		WriteMode:  conn.WriteMode,
		UpdatedAt:  conn.UpdatedAt,
		LastUsedAt: conn.LastUsedAt,
	}, nil
}
