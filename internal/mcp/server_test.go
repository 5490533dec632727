package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"gridcraft.ai/internal/mcp/bridge"
)

type stubBridge struct {
	lastKey    string
	lastAction string
	failWith   error
}

func (b *stubBridge) GetStatus(ctx context.Context, key string) (bridge.Status, error) {
	b.lastKey = key
	if b.failWith != nil {
		return bridge.Status{}, b.failWith
	}
	return bridge.Status{Connected: true, AgentName: key, SessionID: "s-1", Ruleset: "classic", LastStep: 4}, nil
}

func (b *stubBridge) GetObs(ctx context.Context, key string, opts bridge.GetObsOpts) (bridge.ObsResult, error) {
	b.lastKey = key
	return bridge.ObsResult{Step: 4, Episode: 1, Obs: json.RawMessage(`{"step":4}`)}, nil
}

func (b *stubBridge) GetCatalog(ctx context.Context, key, name string) (bridge.CatalogResult, error) {
	b.lastKey = key
	if name != "actions" {
		return bridge.CatalogResult{}, fmt.Errorf("unknown catalog %q", name)
	}
	return bridge.CatalogResult{Name: name, Digest: "abc", Data: json.RawMessage(`[]`)}, nil
}

func (b *stubBridge) Act(ctx context.Context, key string, args bridge.ActArgs) (bridge.ActResult, error) {
	b.lastKey, b.lastAction = key, args.Action
	return bridge.ActResult{Seq: 1, Step: 5, Episode: 1, Reward: 0.1}, nil
}

func (b *stubBridge) Reset(ctx context.Context, key string) (bridge.ResetResult, error) {
	b.lastKey = key
	return bridge.ResetResult{Seq: 2, Episode: 2}, nil
}

func (b *stubBridge) Disconnect(ctx context.Context, key string) error {
	b.lastKey = key
	return nil
}

func postRPC(t *testing.T, srv *Server, body string, header map[string]string) (*httptest.ResponseRecorder, rpcResponse) {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte(body)))
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.handleMCP(w, r)

	var resp rpcResponse
	if w.Code != http.StatusNoContent {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("parse response (%d): %v: %s", w.Code, err, w.Body.String())
		}
	}
	return w, resp
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) rpcResponse {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      9,
		"method":  "call_tool",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	_, resp := postRPC(t, srv, string(body), nil)
	return resp
}

func toolText(t *testing.T, resp rpcResponse) []byte {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("tool error: %+v", resp.Error)
	}
	content, ok := resp.Result.(map[string]any)["content"].([]any)
	if !ok || len(content) == 0 {
		t.Fatalf("no content in result: %+v", resp.Result)
	}
	return []byte(content[0].(map[string]any)["text"].(string))
}

func TestInitializeAndListTools(t *testing.T) {
	srv := NewServer(&stubBridge{}, "", false)

	_, resp := postRPC(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`, nil)
	if resp.Error != nil {
		t.Fatalf("initialize: %+v", resp.Error)
	}
	res := resp.Result.(map[string]any)
	if res["protocolVersion"] != mcpProtocolVersion {
		t.Fatalf("protocolVersion: %v", res["protocolVersion"])
	}

	_, resp = postRPC(t, srv, `{"jsonrpc":"2.0","id":2,"method":"list_tools"}`, nil)
	if resp.Error != nil {
		t.Fatalf("list_tools: %+v", resp.Error)
	}
	tools := resp.Result.(map[string]any)["tools"].([]any)
	if len(tools) != 6 {
		t.Fatalf("got %d tools, want 6", len(tools))
	}
	names := map[string]bool{}
	for _, tl := range tools {
		names[tl.(map[string]any)["name"].(string)] = true
	}
	for _, want := range []string{
		"gridcraft.get_status", "gridcraft.get_obs", "gridcraft.get_catalog",
		"gridcraft.act", "gridcraft.reset", "gridcraft.disconnect",
	} {
		if !names[want] {
			t.Fatalf("missing tool %s (have %v)", want, names)
		}
	}

	// The slash-form method name routes to the same handler.
	_, resp = postRPC(t, srv, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`, nil)
	if resp.Error != nil {
		t.Fatalf("tools/list: %+v", resp.Error)
	}
}

func TestCallToolRoutes(t *testing.T) {
	stub := &stubBridge{}
	srv := NewServer(stub, "", false)

	var st bridge.Status
	if err := json.Unmarshal(toolText(t, callTool(t, srv, "gridcraft.get_status",
		map[string]any{"session_key": "k1"})), &st); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Connected || stub.lastKey != "k1" {
		t.Fatalf("status routing: %+v key=%s", st, stub.lastKey)
	}

	var act bridge.ActResult
	if err := json.Unmarshal(toolText(t, callTool(t, srv, "gridcraft.act",
		map[string]any{"session_key": "k1", "action": "do"})), &act); err != nil {
		t.Fatalf("act: %v", err)
	}
	if stub.lastAction != "do" || act.Step != 5 {
		t.Fatalf("act routing: %+v action=%s", act, stub.lastAction)
	}

	var cat bridge.CatalogResult
	if err := json.Unmarshal(toolText(t, callTool(t, srv, "gridcraft.get_catalog",
		map[string]any{"session_key": "k1", "name": "actions"})), &cat); err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if cat.Digest != "abc" {
		t.Fatalf("catalog routing: %+v", cat)
	}

	var disc map[string]bool
	if err := json.Unmarshal(toolText(t, callTool(t, srv, "gridcraft.disconnect",
		map[string]any{"session_key": "k1"})), &disc); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if !disc["disconnected"] {
		t.Fatalf("disconnect result: %v", disc)
	}
}

func TestCallToolValidation(t *testing.T) {
	srv := NewServer(&stubBridge{}, "", false)

	resp := callTool(t, srv, "gridcraft.teleport", map[string]any{"session_key": "k"})
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("unknown tool: %+v", resp.Error)
	}
	resp = callTool(t, srv, "gridcraft.act", map[string]any{"session_key": "k"})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("act without action: %+v", resp.Error)
	}
	resp = callTool(t, srv, "gridcraft.get_catalog", map[string]any{"session_key": "k"})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("catalog without name: %+v", resp.Error)
	}
	resp = callTool(t, srv, "gridcraft.get_status", map[string]any{})
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Fatalf("missing session_key: %+v", resp.Error)
	}

	_, resp = postRPC(t, srv, `{"jsonrpc":"2.0","id":1,"method":"dance"}`, nil)
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("unknown method: %+v", resp.Error)
	}
	if w, _ := postRPC(t, srv, `{"jsonrpc":"3.0","id":1,"method":"list_tools"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("jsonrpc 3.0 got %d", w.Code)
	}
}

func TestBridgeFailureSurfacesAsRPCError(t *testing.T) {
	srv := NewServer(&stubBridge{failWith: fmt.Errorf("gateway down")}, "", false)
	resp := callTool(t, srv, "gridcraft.get_status", map[string]any{"session_key": "k"})
	if resp.Error == nil || resp.Error.Code != -32000 {
		t.Fatalf("bridge failure: %+v", resp.Error)
	}
}

func signedHeaders(agentID, nonce, body, secret string, at time.Time) map[string]string {
	ts := strconv.FormatInt(at.UnixMilli(), 10)
	return map[string]string{
		headerTimestamp: ts,
		headerAgentID:   agentID,
		headerNonce:     nonce,
		headerSignature: signHMAC(secret, canonicalStringV2(ts, "POST", "/mcp", agentID, nonce, []byte(body))),
	}
}

func TestRequireHMAC(t *testing.T) {
	srv := NewServer(&stubBridge{}, testSecret, true)
	body := `{"jsonrpc":"2.0","id":1,"method":"list_tools"}`

	w, _ := postRPC(t, srv, body, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned request got %d, want 401", w.Code)
	}

	hdr := signedHeaders("agent-1", "n-1", body, testSecret, time.Now())
	w, resp := postRPC(t, srv, body, hdr)
	if w.Code != http.StatusOK || resp.Error != nil {
		t.Fatalf("signed request: %d %+v", w.Code, resp.Error)
	}

	// The same signature again is a replay.
	if w, _ := postRPC(t, srv, body, hdr); w.Code != http.StatusUnauthorized {
		t.Fatalf("replayed request got %d, want 401", w.Code)
	}

	// A fresh nonce is a fresh request.
	hdr = signedHeaders("agent-1", "n-2", body, testSecret, time.Now())
	if w, _ := postRPC(t, srv, body, hdr); w.Code != http.StatusOK {
		t.Fatalf("fresh nonce got %d", w.Code)
	}
}

func TestOptionalHMAC(t *testing.T) {
	srv := NewServer(&stubBridge{}, testSecret, false)

	w, resp := postRPC(t, srv, `{"jsonrpc":"2.0","id":1,"method":"list_tools"}`, nil)
	if w.Code != http.StatusOK || resp.Error != nil {
		t.Fatalf("unsigned request in optional mode: %d %+v", w.Code, resp.Error)
	}

	// A present but wrong signature still fails.
	w, _ = postRPC(t, srv, `{"jsonrpc":"2.0","id":1,"method":"list_tools"}`, map[string]string{
		headerTimestamp: strconv.FormatInt(time.Now().UnixMilli(), 10),
		headerSignature: "deadbeef",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage signature got %d, want 401", w.Code)
	}
}
