package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// rpcHandler decodes one JSON-RPC request and replies with respond's output.
func rpcHandler(t *testing.T, respond func(req rpcRequest) interface{}) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != streamablePath {
			t.Errorf("path = %s, want %s", r.URL.Path, streamablePath)
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(respond(req))
	}
}

func rpcResult(req rpcRequest, result interface{}) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  result,
	}
}

func TestClientInitializeEnvelope(t *testing.T) {
	var got rpcRequest
	var auth, accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		accept = r.Header.Get("Accept")
		rpcHandler(t, func(req rpcRequest) interface{} {
			got = req
			return rpcResult(req, map[string]interface{}{"protocolVersion": protocolVersion})
		})(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok-123")
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if got.JSONRPC != "2.0" {
		t.Errorf("jsonrpc = %q, want 2.0", got.JSONRPC)
	}
	if got.ID == "" {
		t.Error("request id is empty")
	}
	if got.Method != "initialize" {
		t.Errorf("method = %q, want initialize", got.Method)
	}
	params, ok := got.Params.(map[string]interface{})
	if !ok {
		t.Fatalf("params = %T, want object", got.Params)
	}
	if params["protocolVersion"] != protocolVersion {
		t.Errorf("protocolVersion = %v, want %s", params["protocolVersion"], protocolVersion)
	}
	if auth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", auth)
	}
	if !strings.Contains(accept, "text/event-stream") {
		t.Errorf("Accept = %q, want event-stream included", accept)
	}
}

func TestClientListToolsParamsOmitted(t *testing.T) {
	var rawBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 4096)
		n, _ := r.Body.Read(buf)
		rawBody = string(buf[:n])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":"x","result":{"tools":[{"name":"list_posts"}]}}`))
	}))
	defer srv.Close()

	tools, err := NewClient(srv.URL, "t").ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "list_posts" {
		t.Fatalf("tools = %+v", tools)
	}
	if strings.Contains(rawBody, `"params"`) {
		t.Errorf("params field present in no-argument request: %s", rawBody)
	}
	if !strings.Contains(rawBody, `"tools/list/all"`) {
		t.Errorf("method not tools/list/all: %s", rawBody)
	}
}

func TestClientListToolsBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":"x","result":[{"name":"a"},{"name":"b","kind":"action"}]}`))
	}))
	defer srv.Close()

	tools, err := NewClient(srv.URL, "t").ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 2 || tools[1].Kind != "action" {
		t.Fatalf("tools = %+v", tools)
	}
}

func TestClientCallTool(t *testing.T) {
	srv := httptest.NewServer(rpcHandler(t, func(req rpcRequest) interface{} {
		if req.Method != "tools/call" {
			t.Errorf("method = %q", req.Method)
		}
		params := req.Params.(map[string]interface{})
		if params["name"] != "get_post" {
			t.Errorf("name = %v", params["name"])
		}
		args := params["arguments"].(map[string]interface{})
		if args["id"] != float64(7) {
			t.Errorf("arguments = %v", args)
		}
		return rpcResult(req, map[string]interface{}{"content": "hello"})
	}))
	defer srv.Close()

	result, err := NewClient(srv.URL, "t").CallTool(context.Background(), "get_post", map[string]interface{}{"id": 7})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !strings.Contains(string(result), `"hello"`) {
		t.Errorf("result = %s", result)
	}
}

func TestClientProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":"x","error":{"code":-32601,"message":"method not found"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t").CallTool(context.Background(), "nope", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var me *Error
	if !errors.As(err, &me) {
		t.Fatalf("error type = %T", err)
	}
	if me.Code != -32601 || me.Status != 0 {
		t.Errorf("error = %+v", me)
	}
	if IsUnauthorized(err) {
		t.Error("method-not-found classified as unauthorized")
	}
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "stale").Initialize(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var me *Error
	if !errors.As(err, &me) {
		t.Fatalf("error type = %T", err)
	}
	if me.Status != http.StatusUnauthorized {
		t.Errorf("status = %d", me.Status)
	}
	if !IsUnauthorized(err) {
		t.Error("401 not classified as unauthorized")
	}
}

func TestIsUnauthorizedByMessage(t *testing.T) {
	err := &Error{Code: -32000, Message: "Unauthorized: rest_forbidden"}
	if !IsUnauthorized(err) {
		t.Error("unauthorized message not recognized")
	}
	if IsUnauthorized(&Error{Code: -32000, Message: "boom"}) {
		t.Error("generic error misclassified")
	}
}

func TestClientSSEResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":\"x\",\"result\":{\"ok\":true}}\n\n"))
	}))
	defer srv.Close()

	result, err := NewClient(srv.URL, "t").CallTool(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("CallTool over SSE: %v", err)
	}
	if !strings.Contains(string(result), `"ok":true`) {
		t.Errorf("result = %s", result)
	}
}
