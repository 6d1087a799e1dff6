// Package pairing implements the device-code linking flow.
//
// When a user wants to connect a WordPress site, the system:
//  1. Generates an 8-character user code and a high-entropy device code
//  2. The user enters the user code into the WordPress plugin
//  3. The plugin activates the code, submitting the site URL and a JWT
//  4. The browser polls with the device code until the link is consumed
//     into a stored connection
//
// User codes use the alphabet ABCDEFGHJKLMNPQRSTUVWXYZ23456789
// (no ambiguous characters: 0, O, 1, I, L).
// Links expire after a configurable TTL, 600s by default.
package pairing

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/wpbridge/internal/crypto"
	"github.com/nextlevelbuilder/wpbridge/internal/store"
	"github.com/nextlevelbuilder/wpbridge/pkg/protocol"
)

const (
	// CodeAlphabet excludes ambiguous characters (0, O, 1, I, L).
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// CodeLength is the number of characters in a user code.
	CodeLength = 8

	// DefaultTTL applies when the start request names no TTL. Requests may
	// choose anywhere in [MinTTL, MaxTTL]; out-of-range values are clamped.
	DefaultTTL = 600 * time.Second
	MinTTL     = 60 * time.Second
	MaxTTL     = 1800 * time.Second

	// PollInterval is the poll cadence advertised to the browser, seconds.
	PollInterval = 5

	// deviceCodeBytes gives the machine-side code 192 bits of entropy.
	deviceCodeBytes = 24

	// maxCodeAttempts bounds retry on a user-code collision. At ~40 bits per
	// code a second collision in a row means the store is lying, not that we
	// are unlucky.
	maxCodeAttempts = 5

	cleanupEvery = time.Minute
)

var (
	// ErrNotFound means no link matches the presented code.
	ErrNotFound = errors.New("pairing: link not found")

	// ErrExpired means the link's TTL has passed, whatever its stored status.
	ErrExpired = errors.New("pairing: link expired")

	// ErrAlreadyApproved rejects a second activation of the same code.
	ErrAlreadyApproved = errors.New("pairing: link already activated")

	// ErrPlanLimit is the payment-required discriminator: the account is at
	// its site quota and the link stays approved so an upgraded retry works.
	ErrPlanLimit = errors.New("pairing: site limit reached for plan")
)

// Entitlements answers whether an account may hold more than one connection.
// Lookup failures are treated as elevated (fail-open): availability of the
// pairing flow wins over strict quota enforcement.
type Entitlements interface {
	Elevated(ctx context.Context, accountID string) (bool, error)
}

// UnlimitedEntitlements grants every account unlimited sites. Standalone
// deployments have no billing system to ask.
type UnlimitedEntitlements struct{}

func (UnlimitedEntitlements) Elevated(ctx context.Context, accountID string) (bool, error) {
	return true, nil
}

// StartResult is returned to the browser that initiated linking.
type StartResult struct {
	DeviceCode string
	UserCode   string
	ExpiresIn  int // seconds
	Interval   int // seconds
}

// PollResult reports the link state to the polling browser. SiteURL and
// WriteMode are populated only when Status is approved.
type PollResult struct {
	Status    string
	SiteURL   string
	WriteMode *bool
}

// Coordinator drives the pairing state machine over the link store.
type Coordinator struct {
	links        store.DeviceLinkStore
	connections  store.ConnectionStore
	vault        *crypto.Vault
	entitlements Entitlements

	now func() time.Time

	cleanupMu   sync.Mutex
	lastCleanup time.Time
}

func NewCoordinator(links store.DeviceLinkStore, conns store.ConnectionStore, vault *crypto.Vault, ent Entitlements) *Coordinator {
	if ent == nil {
		ent = UnlimitedEntitlements{}
	}
	return &Coordinator{
		links:        links,
		connections:  conns,
		vault:        vault,
		entitlements: ent,
		now:          time.Now,
	}
}

// Start creates a pending link and returns both codes. ttl of zero selects
// the default; out-of-range values are clamped.
func (c *Coordinator) Start(ctx context.Context, ttl time.Duration) (*StartResult, error) {
	c.maybeCleanup()

	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < MinTTL {
		ttl = MinTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := c.now()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		link := &store.DeviceLink{
			ID:         store.GenNewID(),
			UserCode:   generateUserCode(),
			DeviceCode: generateDeviceCode(),
			Status:     store.LinkPending,
			CreatedAt:  now,
			ExpiresAt:  now.Add(ttl),
		}
		err := c.links.Create(ctx, link)
		if errors.Is(err, store.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create device link: %w", err)
		}
		slog.Info("pairing started", "user_code", link.UserCode, "ttl", ttl)
		return &StartResult{
			DeviceCode: link.DeviceCode,
			UserCode:   link.UserCode,
			ExpiresIn:  int(ttl / time.Second),
			Interval:   PollInterval,
		}, nil
	}
	return nil, fmt.Errorf("create device link: code space exhausted after %d attempts", maxCodeAttempts)
}

// Activate is called by the WordPress plugin once the human has entered the
// user code on the site. The submitted token is encrypted before it touches
// the store.
func (c *Coordinator) Activate(ctx context.Context, userCode, siteURL, token string, write bool, pluginVersion string) error {
	link, err := c.links.GetByUserCode(ctx, userCode)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup user code: %w", err)
	}
	if link.Expired(c.now()) {
		return ErrExpired
	}
	if link.Status != store.LinkPending {
		return ErrAlreadyApproved
	}

	enc, err := c.vault.Encrypt(token)
	if err != nil {
		return fmt.Errorf("encrypt site credential: %w", err)
	}

	err = c.links.Approve(ctx, userCode, store.LinkApproval{
		SiteURL:       siteURL,
		JWTEncrypted:  enc,
		WriteMode:     write,
		PluginVersion: pluginVersion,
		ApprovedAt:    c.now(),
	})
	if errors.Is(err, store.ErrWrongState) {
		// Raced with another activation or with expiry at the store's clock.
		return ErrAlreadyApproved
	}
	if err != nil {
		return fmt.Errorf("approve link: %w", err)
	}
	slog.Info("pairing approved", "site", siteURL, "write", write, "plugin_version", pluginVersion)
	return nil
}

// Poll reports the link state to the browser. accountID is empty when the
// caller is not signed in yet; an approved link is then reported as
// approved_requires_login and left untouched so a later authenticated poll
// can finish the flow.
func (c *Coordinator) Poll(ctx context.Context, deviceCode, accountID string) (*PollResult, error) {
	c.maybeCleanup()

	link, err := c.links.GetByDeviceCode(ctx, deviceCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup device code: %w", err)
	}

	// Expiry is computed on every read; the stored status can lag.
	if link.Expired(c.now()) {
		return &PollResult{Status: protocol.StatusExpired}, nil
	}

	switch link.Status {
	case store.LinkPending:
		return &PollResult{Status: protocol.StatusPending}, nil

	case store.LinkConsumed:
		// Idempotent re-poll after the fact (page refresh). No entitlement
		// re-check, no connection rewrite.
		return &PollResult{Status: protocol.StatusConsumed}, nil

	case store.LinkApproved:
		if accountID == "" {
			return &PollResult{Status: protocol.StatusApprovedRequiresLogin}, nil
		}
		return c.consume(ctx, link, accountID)

	default:
		return nil, fmt.Errorf("device link %s in unknown status %q", link.ID, link.Status)
	}
}

// consume finalizes an approved link into a stored connection. The store
// performs the status flip and the connection upsert atomically, so a poller
// that sees consumed is guaranteed the connection row exists.
func (c *Coordinator) consume(ctx context.Context, link *store.DeviceLink, accountID string) (*PollResult, error) {
	if err := c.checkEntitlement(ctx, accountID, link.SiteURL); err != nil {
		return nil, err
	}

	// The link holds ciphertext under the same vault key the connection
	// store expects; verify it decrypts before committing it.
	if _, err := c.vault.Decrypt(link.JWTEncrypted); err != nil {
		return nil, fmt.Errorf("stored link credential unreadable: %w", err)
	}

	consumedAt := c.now()
	conn := &store.Connection{
		ID:           store.GenNewID(),
		AccountID:    accountID,
		SiteURL:      link.SiteURL,
		JWTEncrypted: link.JWTEncrypted,
		WriteMode:    link.WriteMode,
	}
	err := c.links.Consume(ctx, link.DeviceCode, consumedAt, conn)
	if errors.Is(err, store.ErrWrongState) {
		// Another poll won the race; its connection row is already visible.
		return &PollResult{Status: protocol.StatusConsumed}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume link: %w", err)
	}

	slog.Info("pairing consumed", "account", accountID, "site", link.SiteURL, "write", link.WriteMode)
	write := link.WriteMode
	return &PollResult{
		Status:    protocol.StatusApproved,
		SiteURL:   link.SiteURL,
		WriteMode: &write,
	}, nil
}

// checkEntitlement enforces the one-site quota for non-elevated accounts.
// Re-linking a site the account already holds never counts against the quota.
func (c *Coordinator) checkEntitlement(ctx context.Context, accountID, siteURL string) error {
	if _, err := c.connections.Get(ctx, accountID, siteURL); err == nil {
		return nil // already linked, consuming just rotates the credential
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check existing connection: %w", err)
	}

	count, err := c.connections.Count(ctx, accountID)
	if err != nil {
		return fmt.Errorf("count connections: %w", err)
	}
	if count == 0 {
		return nil
	}

	elevated, err := c.entitlements.Elevated(ctx, accountID)
	if err != nil {
		// Fail open: a billing outage must not strand a paying user mid-pair.
		slog.Warn("entitlement lookup failed, allowing", "account", accountID, "error", err)
		return nil
	}
	if !elevated {
		return ErrPlanLimit
	}
	return nil
}

// maybeCleanup reclaims expired rows at most once per minute per process.
// Fire-and-forget; every read path re-checks expiry independently, so this
// is storage hygiene, never correctness.
func (c *Coordinator) maybeCleanup() {
	c.cleanupMu.Lock()
	now := c.now()
	if now.Sub(c.lastCleanup) < cleanupEvery {
		c.cleanupMu.Unlock()
		return
	}
	c.lastCleanup = now
	c.cleanupMu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		n, err := c.links.DeleteExpired(ctx, now)
		if err != nil {
			slog.Warn("expired link cleanup failed", "error", err)
			return
		}
		if n > 0 {
			slog.Debug("expired links deleted", "count", n)
		}
	}()
}

func generateUserCode() string {
	b := make([]byte, CodeLength)
	rand.Read(b)
	code := make([]byte, CodeLength)
	for i := range code {
		code[i] = CodeAlphabet[int(b[i])%len(CodeAlphabet)]
	}
	return string(code)
}

func generateDeviceCode() string {
	b := make([]byte, deviceCodeBytes)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
