// mcp bridges tool-calling agents onto the gateway. It speaks MCP
// (JSON-RPC over HTTP POST /mcp) on one side and the gateway websocket
// protocol on the other; each distinct session_key argument owns one
// live gateway session.
//
//	mcp -listen 127.0.0.1:8090 -gateway-ws-url ws://127.0.0.1:8080/v1/ws
//
// Authentication is HMAC request signing (x-agent-id, x-ts, x-nonce,
// x-signature headers). The secret comes from -hmac-secret or
// GC_MCP_HMAC_SECRET; GC_MCP_REQUIRE_HMAC forces a signature on every
// request, which is also the default in staging and production.
// Binding beyond loopback without a secret is refused.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gridcraft.ai/internal/mcp"
	"gridcraft.ai/internal/mcp/bridge"
)

func main() {
	var (
		listen      = flag.String("listen", "127.0.0.1:8090", "http listen address")
		gatewayURL  = flag.String("gateway-ws-url", "ws://127.0.0.1:8080/v1/ws", "gateway websocket endpoint")
		profile     = flag.String("ruleset", "classic", "ruleset profile requested in HELLO")
		preset      = flag.String("preset", "fast_training", "session preset requested in HELLO")
		hmacSecret  = flag.String("hmac-secret", "", "HMAC signing secret (or GC_MCP_HMAC_SECRET)")
		stateFile   = flag.String("state-file", "./data/mcp/sessions.json", "session map persisted across restarts (empty disables)")
		maxSessions = flag.Int("max-sessions", 256, "live session cap; the least recently used is evicted past it")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[mcp] ", log.LstdFlags|log.Lmicroseconds)

	secret := strings.TrimSpace(*hmacSecret)
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("GC_MCP_HMAC_SECRET"))
	}
	requireHMAC := envBool("GC_MCP_REQUIRE_HMAC", defaultRequireHMAC())
	if requireHMAC && secret == "" {
		logger.Fatal("signatures are required but no secret is configured (set -hmac-secret or GC_MCP_HMAC_SECRET)")
	}
	if secret == "" && !isLoopbackListenAddress(*listen) {
		logger.Fatalf("refusing to listen on %q without an HMAC secret; bind to loopback or configure one", *listen)
	}

	mgr, err := bridge.NewManager(bridge.Config{
		GatewayWSURL: *gatewayURL,
		Ruleset:      *profile,
		Preset:       *preset,
		StateFile:    *stateFile,
		MaxSessions:  *maxSessions,
	})
	if err != nil {
		logger.Fatalf("bridge: %v", err)
	}
	defer mgr.Close()

	srv := mcp.NewServer(mgr, secret, requireHMAC)

	ctx, cancel := signalContext()
	defer cancel()

	httpSrv := &http.Server{
		Addr:              *listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s gateway=%s ruleset=%s preset=%s auth_mode=%s",
		*listen, *gatewayURL, *profile, *preset, srv.AuthMode())
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// defaultRequireHMAC mirrors the deploy environment: shared
// environments sign everything, local runs stay open.
func defaultRequireHMAC() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return true
	default:
		return false
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func isLoopbackListenAddress(addr string) bool {
	host := strings.TrimSpace(addr)
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = strings.TrimSpace(h)
	}
	host = strings.Trim(host, "[]")
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
