package connections

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	tokenEndpointPath  = "/wp-json/jwt-auth/v1/token"
	refreshHTTPTimeout = 30 * time.Second
)

// ErrReconnectRequired is returned when the remote site rejects the refresh
// credential. The caller must drop any cached access/refresh material and
// prompt the user to re-link; silent retry would mask a broken link.
var ErrReconnectRequired = errors.New("refresh credential rejected, site must be reconnected")

// RefreshResult is what the remote token endpoint granted. RefreshToken is
// empty when the remote did not rotate it.
type RefreshResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// TokenRefresher exchanges refresh credentials for new access credentials and
// persists the rotation.
type TokenRefresher struct {
	connections *Service
	client      *http.Client
	origin      string
}

// NewTokenRefresher creates a refresher. origin is sent with the grant request
// so the plugin can validate the caller.
func NewTokenRefresher(svc *Service, origin string) *TokenRefresher {
	return &TokenRefresher{
		connections: svc,
		client:      &http.Client{Timeout: refreshHTTPTimeout},
		origin:      origin,
	}
}

// Refresh POSTs a refresh_token grant to the site's token endpoint and stores
// the rotated access credential. The store write happens before success is
// reported, so no caller-visible cache can outlive a failed persistence.
func (t *TokenRefresher) Refresh(ctx context.Context, accountID, siteURL, refreshToken string) (*RefreshResult, error) {
	body, _ := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"origin":        t.origin,
	})

	endpoint := strings.TrimSuffix(siteURL, "/") + tokenEndpointPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh request to %s: %w", siteURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("token refresh rejected", "site", siteURL, "status", resp.StatusCode)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusBadRequest {
			return nil, ErrReconnectRequired
		}
		return nil, fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, excerpt)
	}

	var result RefreshResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	// Persist the rotation before any caller-visible cache learns of it.
	if err := t.connections.Rotate(ctx, accountID, siteURL, result.AccessToken); err != nil {
		return nil, fmt.Errorf("persist rotated credential: %w", err)
	}

	slog.Info("access credential rotated", "site", siteURL, "expires_in", result.ExpiresIn)
	return &result, nil
}
