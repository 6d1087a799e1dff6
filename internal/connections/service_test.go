package connections

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/wpbridge/internal/crypto"
	"github.com/nextlevelbuilder/wpbridge/internal/store"
	"github.com/nextlevelbuilder/wpbridge/internal/store/mem"
)

func newService(t *testing.T) *Service {
	t.Helper()
	vault, err := crypto.New("unit-test-secret-0123456789")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	return NewService(mem.New().Connections(), vault)
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if err := svc.Save(ctx, "acct-1", "https://example.com", "jwt-secret", true); err != nil {
		t.Fatalf("Save: %v", err)
	}

	site, err := svc.Get(ctx, "acct-1", "https://example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if site.JWT != "jwt-secret" {
		t.Errorf("JWT = %q", site.JWT)
	}
	if !site.WriteMode {
		t.Error("write mode lost")
	}

	// The underlying row never holds plaintext; Get decrypts on read.
	raw, err := svc.store.Get(ctx, "acct-1", "https://example.com")
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if raw.JWTEncrypted == "jwt-secret" {
		t.Error("credential stored unencrypted")
	}
}

func TestSaveUpsertsSameSite(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	svc.Save(ctx, "acct-1", "https://example.com", "first", false)
	if err := svc.Save(ctx, "acct-1", "https://example.com", "second", true); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	if n, _ := svc.Count(ctx, "acct-1"); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	site, err := svc.Get(ctx, "acct-1", "https://example.com")
	if err != nil || site.JWT != "second" || !site.WriteMode {
		t.Fatalf("site = %+v, %v", site, err)
	}
}

func TestGetPrimaryNewestWins(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	svc.Save(ctx, "acct-1", "https://old.example", "jwt-a", false)
	time.Sleep(time.Millisecond)
	svc.Save(ctx, "acct-1", "https://new.example", "jwt-b", false)

	site, err := svc.GetPrimary(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetPrimary: %v", err)
	}
	if site.SiteURL != "https://new.example" {
		t.Errorf("primary = %s", site.SiteURL)
	}
}

func TestRotateReplacesCredentialOnly(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	svc.Save(ctx, "acct-1", "https://example.com", "old-jwt", true)
	if err := svc.Rotate(ctx, "acct-1", "https://example.com", "new-jwt"); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	site, err := svc.Get(ctx, "acct-1", "https://example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if site.JWT != "new-jwt" {
		t.Errorf("JWT = %q", site.JWT)
	}
	if !site.WriteMode {
		t.Error("rotation touched the write flag")
	}
}

func TestDisconnect(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	svc.Save(ctx, "acct-1", "https://example.com", "jwt", false)
	if err := svc.Disconnect(ctx, "acct-1", "https://example.com"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := svc.Get(ctx, "acct-1", "https://example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err after disconnect = %v", err)
	}
}
