package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"gridcraft.ai/internal/persistence/r2s3"
	"gridcraft.ai/internal/persistence/savefile"
	"gridcraft.ai/internal/persistence/statslog"
	"gridcraft.ai/internal/sim/hub"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
	"gridcraft.ai/internal/transport/observer"
	"gridcraft.ai/internal/transport/ws"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		profile     = flag.String("ruleset", "classic", "ruleset profile name or YAML path")
		preset      = flag.String("preset", "default", "session preset for new sessions")
		configPath  = flag.String("config", "", "session config YAML layered over the preset")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		disableDB   = flag.Bool("disable_db", false, "disable the episode index")
		noJournal   = flag.Bool("disable_journal", false, "disable the episode JSONL journal")
		record      = flag.Bool("record", false, "record logical gateway sessions under <data>/recordings")
		digestEvery = flag.Int("digest_every", 20, "recording digest cadence in steps")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	rs, err := loadRuleset(*profile)
	if err != nil {
		logger.Fatalf("load ruleset: %v", err)
	}
	cfg, err := loadSessionConfig(*preset, *configPath)
	if err != nil {
		logger.Fatalf("session config: %v", err)
	}
	_ = os.MkdirAll(*dataDir, 0o755)

	// Optional: read-model index backend (never consulted by the engine).
	idx, err := openRuntimeIndex(*dataDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertProfile(rs); err != nil {
			logger.Printf("index backend: upsert profile: %v", err)
		}
	}
	var journal *statslog.EpisodeJournal
	if !*noJournal {
		journal = statslog.NewEpisodeJournal(*dataDir)
		defer journal.Close()
	}
	mirror, err := openMirror(*dataDir, logger)
	if err != nil {
		logger.Fatalf("open mirror: %v", err)
	}
	if mirror != nil {
		defer mirror.Close()
		logger.Printf("mirroring artifacts to %s", os.Getenv("GC_MIRROR_ENDPOINT"))
	}

	ctx, cancel := signalContext()
	defer cancel()

	h := hub.New(cfg, rs)
	watch := observer.NewRegistry()

	wsOpts := ws.Options{DigestEvery: *digestEvery, Watch: watch}
	if *record {
		wsOpts.RecordDir = filepath.Join(*dataDir, "recordings")
	}
	if idx != nil || journal != nil {
		wsOpts.Episodes = &episodeFanout{index: idx, journal: journal, logger: logger}
	}
	if mirror != nil {
		wsOpts.Recordings = mirrorRecordings{m: mirror}
	}
	gateway := ws.NewServer(logger, wsOpts)
	spectators := observer.NewServer(watch, logger, envBool("GC_WATCH_PUBLIC", false))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := gateway.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP gridcraft_gateway_connections Currently connected agents.\n")
		fmt.Fprintf(rw, "# TYPE gridcraft_gateway_connections gauge\n")
		fmt.Fprintf(rw, "gridcraft_gateway_connections{ruleset=%q} %d\n", rs.Name, m.ActiveConnections)

		fmt.Fprintf(rw, "# HELP gridcraft_gateway_sessions_total Gateway sessions created since start.\n")
		fmt.Fprintf(rw, "# TYPE gridcraft_gateway_sessions_total counter\n")
		fmt.Fprintf(rw, "gridcraft_gateway_sessions_total{ruleset=%q} %d\n", rs.Name, m.SessionsTotal)

		fmt.Fprintf(rw, "# HELP gridcraft_hub_sessions Sessions held by the snapshot hub.\n")
		fmt.Fprintf(rw, "# TYPE gridcraft_hub_sessions gauge\n")
		fmt.Fprintf(rw, "gridcraft_hub_sessions{ruleset=%q} %d\n", rs.Name, h.Len())

		fmt.Fprintf(rw, "# HELP gridcraft_watchers Connected spectators.\n")
		fmt.Fprintf(rw, "# TYPE gridcraft_watchers gauge\n")
		fmt.Fprintf(rw, "gridcraft_watchers %d\n", watch.WatcherCount())

		if mirror != nil {
			ms := mirror.Stats()
			fmt.Fprintf(rw, "# HELP gridcraft_mirror_uploads_total Artifact uploads by result.\n")
			fmt.Fprintf(rw, "# TYPE gridcraft_mirror_uploads_total counter\n")
			fmt.Fprintf(rw, "gridcraft_mirror_uploads_total{result=\"success\"} %d\n", ms.UploadSuccessTotal)
			fmt.Fprintf(rw, "gridcraft_mirror_uploads_total{result=\"fail\"} %d\n", ms.UploadFailTotal)
			fmt.Fprintf(rw, "# HELP gridcraft_mirror_queue_depth Pending mirror uploads.\n")
			fmt.Fprintf(rw, "# TYPE gridcraft_mirror_queue_depth gauge\n")
			fmt.Fprintf(rw, "gridcraft_mirror_queue_depth %d\n", ms.QueueDepth)
		}
	})
	mux.HandleFunc("/v1/snapshot", snapshotHandler(h))
	mux.HandleFunc("/v1/ws", gateway.Handler())
	mux.HandleFunc("/v1/watch", spectators.WSHandler())
	mux.HandleFunc("/v1/watch/sessions", spectators.SessionsHandler())

	if envBool("GC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", stateHandler(h, gateway, rs, watch, mirror))
		mux.HandleFunc("/admin/v1/save", saveHandler(h, idx, mirror, *dataDir, logger))
	} else {
		logger.Printf("admin endpoints disabled (GC_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("GC_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s ruleset=%s (%.12s) preset=%s", *addr, rs.Name, rs.Digest, *preset)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// loadRuleset resolves a built-in profile name, or loads a profile
// from disk when the argument looks like a file path.
func loadRuleset(nameOrPath string) (*ruleset.Ruleset, error) {
	if strings.HasSuffix(nameOrPath, ".yaml") || strings.HasSuffix(nameOrPath, ".yml") {
		return ruleset.Load(nameOrPath)
	}
	return ruleset.ByName(nameOrPath)
}

// loadSessionConfig starts from the named preset and layers the YAML
// file on top, so a config file only has to name the knobs it changes.
func loadSessionConfig(preset, path string) (session.Config, error) {
	cfg, err := session.PresetByName(preset)
	if err != nil {
		return session.Config{}, err
	}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return session.Config{}, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return session.Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func snapshotHandler(h *hub.Hub) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req hub.SnapshotRequest
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(rw, http.StatusBadRequest, err.Error())
			return
		}
		resp, err := h.Process(req)
		if err != nil {
			writeError(rw, http.StatusBadRequest, err.Error())
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func stateHandler(h *hub.Hub, gateway *ws.Server, rs *ruleset.Ruleset, watch *observer.Registry, mirror *r2s3.Mirror) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			Ruleset       string      `json:"ruleset"`
			RulesetDigest string      `json:"ruleset_digest"`
			HubSessions   []string    `json:"hub_sessions"`
			Gateway       ws.Metrics  `json:"gateway"`
			Watchers      int         `json:"watchers"`
			Mirror        *r2s3.Stats `json:"mirror,omitempty"`
		}{
			Ruleset:       rs.Name,
			RulesetDigest: rs.Digest,
			HubSessions:   h.SessionIDs(),
			Gateway:       gateway.Metrics(),
			Watchers:      watch.WatcherCount(),
		}
		if mirror != nil {
			ms := mirror.Stats()
			resp.Mirror = &ms
		}
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// saveHandler writes a hub session to disk and indexes the save. Only
// known hub ids reach the filesystem, so the path stays under the data
// directory.
func saveHandler(h *hub.Hub, idx runtimeIndex, mirror *r2s3.Mirror, dataDir string, logger *log.Logger) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var req struct {
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 1<<16)).Decode(&req); err != nil {
			writeError(rw, http.StatusBadRequest, err.Error())
			return
		}
		path := filepath.Join(dataDir, "saves", req.SessionID+".save.zst")
		err := h.WithSession(req.SessionID, func(s *session.Session) error {
			return savefile.Write(path, s)
		})
		if err != nil {
			writeError(rw, http.StatusBadRequest, err.Error())
			return
		}
		if idx != nil {
			if hd, err := savefile.ReadHeader(path); err == nil {
				idx.RecordSave(req.SessionID, path, hd)
			} else {
				logger.Printf("index save %s: %v", path, err)
			}
		}
		if mirror != nil {
			mirror.Enqueue(path)
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "path": path})
	}
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(map[string]string{"error": msg})
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

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
