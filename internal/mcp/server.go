// Package mcp exposes gateway sessions as MCP tools over JSON-RPC, so
// tool-calling agents can play without speaking the websocket protocol
// themselves. Requests are optionally HMAC-signed; verified signatures
// additionally pass a replay guard.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gridcraft.ai/internal/mcp/bridge"
)

const (
	mcpProtocolVersion = "2024-11-05"
	serverName         = "gridcraft-mcp"
	serverVersion      = "1.0.0"

	maxBodyBytes = 1 << 20
)

// Bridge is what the tool surface needs from the session layer.
type Bridge interface {
	GetStatus(ctx context.Context, sessionKey string) (bridge.Status, error)
	GetObs(ctx context.Context, sessionKey string, opts bridge.GetObsOpts) (bridge.ObsResult, error)
	GetCatalog(ctx context.Context, sessionKey, name string) (bridge.CatalogResult, error)
	Act(ctx context.Context, sessionKey string, args bridge.ActArgs) (bridge.ActResult, error)
	Reset(ctx context.Context, sessionKey string) (bridge.ResetResult, error)
	Disconnect(ctx context.Context, sessionKey string) error
}

type Server struct {
	bridge      Bridge
	secret      string
	requireHMAC bool
	allowLegacy bool
	guard       *replayGuard
}

// NewServer wires the tool surface over b. An empty secret disables
// authentication entirely; requireHMAC then has no effect.
func NewServer(b Bridge, secret string, requireHMAC bool) *Server {
	return &Server{
		bridge:      b,
		secret:      secret,
		requireHMAC: requireHMAC && secret != "",
		allowLegacy: allowLegacyHMAC(),
		guard:       newReplayGuard(0),
	}
}

// AuthMode describes the effective policy for startup logs.
func (s *Server) AuthMode() string {
	switch {
	case s.secret == "":
		return "disabled"
	case s.requireHMAC:
		return "hmac-required"
	default:
		return "hmac-optional"
	}
}

// Handler serves /mcp plus a health probe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	return mux
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeRPC(w, http.StatusBadRequest, rpcErr(nil, -32700, "unreadable body"))
		return
	}

	// The signature covers the raw body, so auth runs before parsing.
	if s.secret != "" {
		sig := r.Header.Get(headerSignature)
		if sig == "" && !s.requireHMAC {
			// Optional mode lets unsigned requests through.
		} else {
			vr, err := verifyHMAC(r, body, s.secret, s.allowLegacy, time.Now())
			if err != nil {
				writeRPC(w, http.StatusUnauthorized, rpcErr(nil, -32000, "unauthorized: "+err.Error()))
				return
			}
			if !s.guard.allow(vr.AgentID, vr.Signature, time.Now()) {
				writeRPC(w, http.StatusUnauthorized, rpcErr(nil, -32000, "unauthorized: replayed signature"))
				return
			}
		}
	}

	req, err := parseRPCRequest(body)
	if err != nil {
		writeRPC(w, http.StatusBadRequest, rpcErr(nil, -32700, err.Error()))
		return
	}

	// Notifications carry no id and expect no body back.
	if strings.HasPrefix(req.Method, "notifications/") {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch req.Method {
	case "initialize":
		writeRPC(w, http.StatusOK, rpcOK(req.ID, map[string]any{
			"protocolVersion": mcpProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
			"serverInfo": map[string]any{
				"name":    serverName,
				"version": serverVersion,
			},
		}))
	case "list_tools", "tools/list":
		writeRPC(w, http.StatusOK, rpcOK(req.ID, map[string]any{"tools": toolsList()}))
	case "call_tool", "tools/call":
		s.callTool(w, r, req)
	default:
		writeRPC(w, http.StatusOK, rpcErr(req.ID, -32601, fmt.Sprintf("unknown method %q", req.Method)))
	}
}

// toolArgs is the union of every tool's arguments; each tool reads its
// own subset.
type toolArgs struct {
	SessionKey  string `json:"session_key"`
	Mode        string `json:"mode,omitempty"`
	WaitNewStep bool   `json:"wait_new_step,omitempty"`
	TimeoutMS   int    `json:"timeout_ms,omitempty"`
	Name        string `json:"name,omitempty"`
	Action      string `json:"action,omitempty"`
}

func (s *Server) callTool(w http.ResponseWriter, r *http.Request, req *rpcRequest) {
	var p struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.Name == "" {
		writeRPC(w, http.StatusOK, rpcErr(req.ID, -32602, "call_tool needs params.name"))
		return
	}
	var args toolArgs
	if len(p.Arguments) > 0 {
		if err := json.Unmarshal(p.Arguments, &args); err != nil {
			writeRPC(w, http.StatusOK, rpcErr(req.ID, -32602, "malformed arguments: "+err.Error()))
			return
		}
	}
	if args.SessionKey == "" {
		writeRPC(w, http.StatusOK, rpcErr(req.ID, -32602, "arguments.session_key is required"))
		return
	}

	ctx := r.Context()
	var out any
	var err error
	switch p.Name {
	case "gridcraft.get_status":
		out, err = s.bridge.GetStatus(ctx, args.SessionKey)
	case "gridcraft.get_obs":
		out, err = s.bridge.GetObs(ctx, args.SessionKey, bridge.GetObsOpts{
			Mode:        bridge.ObsMode(args.Mode),
			WaitNewStep: args.WaitNewStep,
			TimeoutMS:   args.TimeoutMS,
		})
	case "gridcraft.get_catalog":
		if args.Name == "" {
			writeRPC(w, http.StatusOK, rpcErr(req.ID, -32602, "gridcraft.get_catalog needs arguments.name"))
			return
		}
		out, err = s.bridge.GetCatalog(ctx, args.SessionKey, args.Name)
	case "gridcraft.act":
		if args.Action == "" {
			writeRPC(w, http.StatusOK, rpcErr(req.ID, -32602, "gridcraft.act needs arguments.action"))
			return
		}
		out, err = s.bridge.Act(ctx, args.SessionKey, bridge.ActArgs{Action: args.Action})
	case "gridcraft.reset":
		out, err = s.bridge.Reset(ctx, args.SessionKey)
	case "gridcraft.disconnect":
		err = s.bridge.Disconnect(ctx, args.SessionKey)
		if err == nil {
			out = map[string]any{"disconnected": true}
		}
	default:
		writeRPC(w, http.StatusOK, rpcErr(req.ID, -32601, fmt.Sprintf("unknown tool %q", p.Name)))
		return
	}
	if err != nil {
		writeRPC(w, http.StatusOK, rpcErr(req.ID, -32000, err.Error()))
		return
	}

	b, err := json.Marshal(out)
	if err != nil {
		writeRPC(w, http.StatusOK, rpcErr(req.ID, -32000, "marshal result: "+err.Error()))
		return
	}
	writeRPC(w, http.StatusOK, rpcOK(req.ID, map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(b)}},
	}))
}

func writeRPC(w http.ResponseWriter, status int, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func toolsList() []toolDescriptor {
	sessionKey := map[string]any{
		"type":        "string",
		"description": "Stable key naming your gateway session; reuse it on every call.",
	}
	return []toolDescriptor{
		{
			Name:        "gridcraft.get_status",
			Description: "Report the session: connection, profile, last step and episode, last error.",
			InputSchema: schema(map[string]any{"session_key": sessionKey}, "session_key"),
		},
		{
			Name: "gridcraft.get_obs",
			Description: "Fetch the newest observation. Summary mode (default) drops the tile grid " +
				"and truncates events; full mode returns the whole frame. Logical-time sessions " +
				"produce no frame until the first act or reset, and wait_new_step only makes sense " +
				"on real-time sessions.",
			InputSchema: schema(map[string]any{
				"session_key": sessionKey,
				"mode": map[string]any{
					"type": "string",
					"enum": []string{"summary", "full"},
				},
				"wait_new_step": map[string]any{
					"type":        "boolean",
					"description": "Block until a frame newer than the cached one arrives.",
				},
				"timeout_ms": map[string]any{
					"type":        "integer",
					"description": "Wait budget for wait_new_step (default 2000).",
				},
			}, "session_key"),
		},
		{
			Name: "gridcraft.get_catalog",
			Description: "Read one slice of the active profile: actions, materials, items, recipes, " +
				"placements or achievements.",
			InputSchema: schema(map[string]any{
				"session_key": sessionKey,
				"name": map[string]any{
					"type": "string",
					"enum": catalogNames,
				},
			}, "session_key", "name"),
		},
		{
			Name: "gridcraft.act",
			Description: "Execute one action by name and return the acknowledging observation " +
				"with reward, done flag and newly unlocked achievements.",
			InputSchema: schema(map[string]any{
				"session_key": sessionKey,
				"action": map[string]any{
					"type":        "string",
					"description": "Canonical action name, e.g. noop, move_up, do, place_table.",
				},
			}, "session_key", "action"),
		},
		{
			Name:        "gridcraft.reset",
			Description: "Start the next episode on the same world seed.",
			InputSchema: schema(map[string]any{"session_key": sessionKey}, "session_key"),
		},
		{
			Name: "gridcraft.disconnect",
			Description: "Drop the gateway connection and pause redialing until the next tool call. " +
				"The gateway forgets paused sessions; reconnecting starts a fresh world.",
			InputSchema: schema(map[string]any{"session_key": sessionKey}, "session_key"),
		},
	}
}

func schema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
