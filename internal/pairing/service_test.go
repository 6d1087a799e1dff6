package pairing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/wpbridge/internal/crypto"
	"github.com/nextlevelbuilder/wpbridge/internal/store"
	"github.com/nextlevelbuilder/wpbridge/internal/store/mem"
	"github.com/nextlevelbuilder/wpbridge/pkg/protocol"
)

const testSecret = "unit-test-secret-0123456789"

type fixedEntitlements struct {
	elevated bool
	err      error
	calls    int
}

func (f *fixedEntitlements) Elevated(ctx context.Context, accountID string) (bool, error) {
	f.calls++
	return f.elevated, f.err
}

func newCoordinator(t *testing.T, ent Entitlements) (*Coordinator, *mem.Stores) {
	t.Helper()
	vault, err := crypto.New(testSecret)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	stores := mem.New()
	c := NewCoordinator(stores.Links(), stores.Connections(), vault, ent)
	// Skip the real-time cleanup throttle in tests.
	c.lastCleanup = time.Now()
	return c, stores
}

func TestStartCodes(t *testing.T) {
	c, _ := newCoordinator(t, nil)

	res, err := c.Start(context.Background(), 0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(res.UserCode) != CodeLength {
		t.Errorf("user code %q, want %d chars", res.UserCode, CodeLength)
	}
	for _, ch := range res.UserCode {
		if !strings.ContainsRune(CodeAlphabet, ch) {
			t.Errorf("user code %q contains %q outside alphabet", res.UserCode, ch)
		}
	}
	if len(res.DeviceCode) < 22 { // 128 bits base64url is 22 chars
		t.Errorf("device code %q too short", res.DeviceCode)
	}
	if res.ExpiresIn != 600 {
		t.Errorf("expires_in = %d, want default 600", res.ExpiresIn)
	}
	if res.Interval != PollInterval {
		t.Errorf("interval = %d", res.Interval)
	}
}

func TestStartTTLClamp(t *testing.T) {
	c, _ := newCoordinator(t, nil)
	ctx := context.Background()

	for ttl, want := range map[time.Duration]int{
		10 * time.Second: 60,
		90 * time.Second: 90,
		2 * time.Hour:    1800,
	} {
		res, err := c.Start(ctx, ttl)
		if err != nil {
			t.Fatalf("Start(%v): %v", ttl, err)
		}
		if res.ExpiresIn != want {
			t.Errorf("Start(%v) expires_in = %d, want %d", ttl, res.ExpiresIn, want)
		}
	}
}

func TestActivateUnknownCode(t *testing.T) {
	c, _ := newCoordinator(t, nil)
	err := c.Activate(context.Background(), "NOPENOPE", "https://example.com", "jwt", false, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestActivateTwiceRejected(t *testing.T) {
	c, _ := newCoordinator(t, nil)
	ctx := context.Background()

	res, err := c.Start(ctx, 0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Activate(ctx, res.UserCode, "https://example.com", "jwt-token", true, "1.2.0"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	err = c.Activate(ctx, res.UserCode, "https://evil.example", "other", false, "")
	if !errors.Is(err, ErrAlreadyApproved) {
		t.Fatalf("second Activate err = %v, want ErrAlreadyApproved", err)
	}
}

func TestPollLifecycle(t *testing.T) {
	c, stores := newCoordinator(t, nil)
	ctx := context.Background()

	res, err := c.Start(ctx, 0)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	poll, err := c.Poll(ctx, res.DeviceCode, "")
	if err != nil || poll.Status != protocol.StatusPending {
		t.Fatalf("pending poll = %+v, %v", poll, err)
	}

	if err := c.Activate(ctx, res.UserCode, "https://example.com", "jwt-token", true, ""); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	// Unauthenticated poll sees the approval but cannot consume it.
	poll, err = c.Poll(ctx, res.DeviceCode, "")
	if err != nil || poll.Status != protocol.StatusApprovedRequiresLogin {
		t.Fatalf("unauthenticated poll = %+v, %v", poll, err)
	}

	// Authenticated poll consumes into a connection row.
	poll, err = c.Poll(ctx, res.DeviceCode, "acct-1")
	if err != nil {
		t.Fatalf("authenticated poll: %v", err)
	}
	if poll.Status != protocol.StatusApproved || poll.SiteURL != "https://example.com" {
		t.Fatalf("poll = %+v", poll)
	}
	if poll.WriteMode == nil || !*poll.WriteMode {
		t.Error("write mode not reported")
	}

	conn, err := stores.Connections().Get(ctx, "acct-1", "https://example.com")
	if err != nil {
		t.Fatalf("connection row missing after consume: %v", err)
	}
	if !conn.WriteMode {
		t.Error("connection write mode not persisted")
	}
	if conn.JWTEncrypted == "jwt-token" {
		t.Error("credential stored in plaintext")
	}

	// Re-poll is idempotent: reports consumed, does not rewrite anything.
	before := *conn
	poll, err = c.Poll(ctx, res.DeviceCode, "acct-1")
	if err != nil || poll.Status != protocol.StatusConsumed {
		t.Fatalf("re-poll = %+v, %v", poll, err)
	}
	after, err := stores.Connections().Get(ctx, "acct-1", "https://example.com")
	if err != nil {
		t.Fatalf("re-read connection: %v", err)
	}
	if after.JWTEncrypted != before.JWTEncrypted || after.WriteMode != before.WriteMode {
		t.Error("re-poll mutated the connection row")
	}
	if n, _ := stores.Connections().Count(ctx, "acct-1"); n != 1 {
		t.Errorf("connection count = %d, want 1", n)
	}
}

func TestPollExpiredComputedNotStored(t *testing.T) {
	c, _ := newCoordinator(t, nil)
	ctx := context.Background()

	res, err := c.Start(ctx, MinTTL)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Move the coordinator's clock past expiry; the stored status is still
	// pending.
	c.now = func() time.Time { return time.Now().Add(MinTTL + time.Second) }
	c.lastCleanup = c.now()

	poll, err := c.Poll(ctx, res.DeviceCode, "acct-1")
	if err != nil || poll.Status != protocol.StatusExpired {
		t.Fatalf("poll = %+v, %v", poll, err)
	}

	// Activation of the expired-but-still-pending link is rejected too.
	err = c.Activate(ctx, res.UserCode, "https://example.com", "jwt", false, "")
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("Activate err = %v, want ErrExpired", err)
	}
}

func TestEntitlementGate(t *testing.T) {
	ent := &fixedEntitlements{elevated: false}
	c, stores := newCoordinator(t, ent)
	ctx := context.Background()

	// Account already holds one site.
	first, _ := c.Start(ctx, 0)
	c.Activate(ctx, first.UserCode, "https://one.example", "jwt-1", false, "")
	if _, err := c.Poll(ctx, first.DeviceCode, "acct-1"); err != nil {
		t.Fatalf("first consume: %v", err)
	}

	// Second distinct site hits the quota.
	second, _ := c.Start(ctx, 0)
	c.Activate(ctx, second.UserCode, "https://two.example", "jwt-2", false, "")
	_, err := c.Poll(ctx, second.DeviceCode, "acct-1")
	if !errors.Is(err, ErrPlanLimit) {
		t.Fatalf("err = %v, want ErrPlanLimit", err)
	}

	// The link stays approved: after an upgrade the same code succeeds.
	link, err := stores.Links().GetByDeviceCode(ctx, second.DeviceCode)
	if err != nil || link.Status != store.LinkApproved {
		t.Fatalf("link after rejection = %+v, %v", link, err)
	}
	ent.elevated = true
	poll, err := c.Poll(ctx, second.DeviceCode, "acct-1")
	if err != nil || poll.Status != protocol.StatusApproved {
		t.Fatalf("post-upgrade poll = %+v, %v", poll, err)
	}
}

func TestEntitlementRelinkSameSiteAllowed(t *testing.T) {
	ent := &fixedEntitlements{elevated: false}
	c, _ := newCoordinator(t, ent)
	ctx := context.Background()

	first, _ := c.Start(ctx, 0)
	c.Activate(ctx, first.UserCode, "https://one.example", "jwt-1", false, "")
	if _, err := c.Poll(ctx, first.DeviceCode, "acct-1"); err != nil {
		t.Fatalf("first consume: %v", err)
	}

	// Re-linking the same site rotates the credential without quota checks.
	again, _ := c.Start(ctx, 0)
	c.Activate(ctx, again.UserCode, "https://one.example", "jwt-rotated", true, "")
	poll, err := c.Poll(ctx, again.DeviceCode, "acct-1")
	if err != nil || poll.Status != protocol.StatusApproved {
		t.Fatalf("re-link poll = %+v, %v", poll, err)
	}
	if ent.calls != 0 {
		t.Errorf("entitlement consulted %d times for a re-link", ent.calls)
	}
}

func TestEntitlementFailOpen(t *testing.T) {
	ent := &fixedEntitlements{err: errors.New("billing down")}
	c, _ := newCoordinator(t, ent)
	ctx := context.Background()

	first, _ := c.Start(ctx, 0)
	c.Activate(ctx, first.UserCode, "https://one.example", "jwt-1", false, "")
	c.Poll(ctx, first.DeviceCode, "acct-1")

	second, _ := c.Start(ctx, 0)
	c.Activate(ctx, second.UserCode, "https://two.example", "jwt-2", false, "")
	poll, err := c.Poll(ctx, second.DeviceCode, "acct-1")
	if err != nil {
		t.Fatalf("fail-open poll: %v", err)
	}
	if poll.Status != protocol.StatusApproved {
		t.Fatalf("status = %s", poll.Status)
	}
}

func TestPollUnknownDeviceCode(t *testing.T) {
	c, _ := newCoordinator(t, nil)
	_, err := c.Poll(context.Background(), "no-such-code", "acct-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
