package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// CredentialSource supplies the access credential for a site and knows how to
// rotate it. The connections package's refresher is adapted to this interface
// at wiring time, keeping the protocol client free of credential-lifecycle
// knowledge.
type CredentialSource interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// RefreshingClient wraps Client with the try-once/refresh/try-again policy:
// a 401-shaped failure triggers exactly one credential refresh and one retry
// of the same logical call on a freshly constructed client. The retried call
// is semantically identical and the first attempt failed purely on
// authorization, so this is safe even for mutating tool calls.
type RefreshingClient struct {
	siteURL string
	creds   CredentialSource
	client  *Client
}

func NewRefreshingClient(siteURL string, creds CredentialSource) *RefreshingClient {
	return &RefreshingClient{siteURL: siteURL, creds: creds}
}

func (r *RefreshingClient) Initialize(ctx context.Context) error {
	return r.do(ctx, func(c *Client) error {
		return c.Initialize(ctx)
	})
}

func (r *RefreshingClient) ListTools(ctx context.Context) ([]RemoteTool, error) {
	var tools []RemoteTool
	err := r.do(ctx, func(c *Client) error {
		var err error
		tools, err = c.ListTools(ctx)
		return err
	})
	return tools, err
}

func (r *RefreshingClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
	var result json.RawMessage
	err := r.do(ctx, func(c *Client) error {
		var err error
		result, err = c.CallTool(ctx, name, args)
		return err
	})
	return result, err
}

func (r *RefreshingClient) do(ctx context.Context, fn func(*Client) error) error {
	client, err := r.current(ctx)
	if err != nil {
		return err
	}

	err = fn(client)
	if err == nil || !IsUnauthorized(err) {
		return err
	}

	slog.Info("mcp call unauthorized, refreshing credential", "site", r.siteURL)
	token, refreshErr := r.creds.Refresh(ctx)
	if refreshErr != nil {
		return fmt.Errorf("refresh after unauthorized: %w", refreshErr)
	}

	r.client = NewClient(r.siteURL, token)
	return fn(r.client)
}

func (r *RefreshingClient) current(ctx context.Context) (*Client, error) {
	if r.client != nil {
		return r.client, nil
	}
	token, err := r.creds.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("load access credential: %w", err)
	}
	r.client = NewClient(r.siteURL, token)
	return r.client, nil
}
