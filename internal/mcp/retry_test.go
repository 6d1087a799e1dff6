package mcp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type fakeCreds struct {
	access    string
	rotated   string
	refreshes int32
	fail      error
}

func (f *fakeCreds) AccessToken(ctx context.Context) (string, error) {
	return f.access, nil
}

func (f *fakeCreds) Refresh(ctx context.Context) (string, error) {
	atomic.AddInt32(&f.refreshes, 1)
	if f.fail != nil {
		return "", f.fail
	}
	return f.rotated, nil
}

// authSwitchServer rejects every token except want with a 401.
func authSwitchServer(t *testing.T, want string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("Authorization") != "Bearer "+want {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":"x","result":{"tools":[{"name":"list_posts"}]}}`))
	}))
	return srv, &calls
}

func TestRefreshingClientRetriesOnce(t *testing.T) {
	srv, calls := authSwitchServer(t, "fresh")
	defer srv.Close()

	creds := &fakeCreds{access: "stale", rotated: "fresh"}
	rc := NewRefreshingClient(srv.URL, creds)

	tools, err := rc.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("tools = %+v", tools)
	}
	if creds.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", creds.refreshes)
	}
	if *calls != 2 {
		t.Errorf("remote calls = %d, want 2", *calls)
	}

	// Subsequent calls reuse the rotated client without refreshing again.
	if _, err := rc.ListTools(context.Background()); err != nil {
		t.Fatalf("second ListTools: %v", err)
	}
	if creds.refreshes != 1 {
		t.Errorf("refreshes after second call = %d, want 1", creds.refreshes)
	}
}

func TestRefreshingClientNoSecondRetry(t *testing.T) {
	// Rotation yields another bad token: the retried call fails and the
	// failure surfaces, with exactly one refresh attempted.
	srv, calls := authSwitchServer(t, "never-issued")
	defer srv.Close()

	creds := &fakeCreds{access: "stale", rotated: "still-stale"}
	rc := NewRefreshingClient(srv.URL, creds)

	_, err := rc.ListTools(context.Background())
	if !IsUnauthorized(err) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if creds.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", creds.refreshes)
	}
	if *calls != 2 {
		t.Errorf("remote calls = %d, want 2", *calls)
	}
}

func TestRefreshingClientRefreshFailure(t *testing.T) {
	srv, _ := authSwitchServer(t, "fresh")
	defer srv.Close()

	boom := errors.New("reconnect required")
	creds := &fakeCreds{access: "stale", fail: boom}
	rc := NewRefreshingClient(srv.URL, creds)

	_, err := rc.ListTools(context.Background())
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped refresh failure", err)
	}
}

func TestRefreshingClientPassesThroughOtherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	defer srv.Close()

	creds := &fakeCreds{access: "tok"}
	_, err := NewRefreshingClient(srv.URL, creds).ListTools(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if creds.refreshes != 0 {
		t.Errorf("refreshes = %d, want 0 for non-auth failure", creds.refreshes)
	}
}
