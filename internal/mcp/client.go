// Package mcp speaks the WordPress MCP dialect: JSON-RPC 2.0 over a single
// HTTPS POST endpoint per site, authenticated by a bearer access credential.
// It also translates remote tool schemas into the local validation types and
// assembles the write-gated tool catalog.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	streamablePath = "/wp-json/wp/v2/wpmcp/streamable"

	protocolVersion = "2024-11-05"
	clientName      = "wpbridge"
	clientVersion   = "1.0"

	callTimeout = 60 * time.Second
)

// Error is the single error type for both transport failures (non-2xx,
// timeout) and JSON-RPC error objects. Callers that care about unauthorized
// specifically pattern-match via IsUnauthorized.
type Error struct {
	Status  int    // HTTP status, 0 for protocol errors
	Code    int    // JSON-RPC error code, 0 for transport errors
	Message string
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("mcp transport error (status %d): %s", e.Status, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("mcp protocol error (code %d): %s", e.Code, e.Message)
	default:
		return "mcp error: " + e.Message
	}
}

// IsUnauthorized reports whether err looks like a rejected credential, the
// signal for the refresh-then-retry-once path.
func IsUnauthorized(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Status == http.StatusUnauthorized ||
		strings.Contains(strings.ToLower(e.Message), "unauthorized")
}

// RemoteTool is a tool descriptor as declared by the site.
type RemoteTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
	Kind        string                 `json:"kind,omitempty"` // "action" marks mutating tools
}

// Client speaks to one site with one access credential. It is stateless with
// respect to credentials: rotation means constructing a fresh Client.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewClient builds a client for the given site and bearer credential.
func NewClient(siteURL, accessToken string) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(siteURL, "/") + streamablePath,
		token:    accessToken,
		http:     &http.Client{Timeout: callTimeout},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Initialize performs the protocol handshake. It must be called once on a
// fresh client before other methods; there is no session to keep alive, every
// call is a discrete HTTPS request.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]string{
			"name":    clientName,
			"version": clientVersion,
		},
	}
	_, err := c.call(ctx, "initialize", params)
	return err
}

// ListTools returns the site's declared tool catalog in remote order.
func (c *Client) ListTools(ctx context.Context) ([]RemoteTool, error) {
	result, err := c.call(ctx, "tools/list/all", nil)
	if err != nil {
		return nil, err
	}

	// The result is either {"tools": [...]} or a bare array.
	var wrapped struct {
		Tools []RemoteTool `json:"tools"`
	}
	if err := json.Unmarshal(result, &wrapped); err == nil && wrapped.Tools != nil {
		return wrapped.Tools, nil
	}
	var tools []RemoteTool
	if err := json.Unmarshal(result, &tools); err != nil {
		return nil, &Error{Message: fmt.Sprintf("unexpected tools/list/all result: %v", err)}
	}
	return tools, nil
}

// CallTool invokes a remote tool and returns its result payload verbatim.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	return c.call(ctx, "tools/call", params)
}

// call sends one JSON-RPC envelope with a fresh id. params must be nil when
// the method takes no arguments so the field is omitted entirely.
func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection failures surface in the same shape as
		// HTTP refusals so callers need no special casing.
		return nil, &Error{Message: fmt.Sprintf("%s: %v", method, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: fmt.Sprintf("%s: read response: %v", method, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := strings.TrimSpace(string(raw))
		if len(excerpt) > 512 {
			excerpt = excerpt[:512]
		}
		return nil, &Error{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("%s %s: %s", method, resp.Status, excerpt),
		}
	}

	payload := raw
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		payload = firstEventData(raw)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(payload, &rpcResp); err != nil {
		return nil, &Error{Message: fmt.Sprintf("%s: invalid JSON-RPC response: %v", method, err)}
	}
	if rpcResp.Error != nil {
		return nil, &Error{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	return rpcResp.Result, nil
}

// firstEventData extracts the first data payload from an SSE body.
func firstEventData(raw []byte) []byte {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data:"); ok {
			return []byte(strings.TrimSpace(data))
		}
	}
	return raw
}
