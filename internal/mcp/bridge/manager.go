// Package bridge multiplexes MCP tool calls onto gateway websockets.
// Each agent key owns one Session; the manager creates them lazily,
// evicts the least recently used one past the cap, and persists the
// key to gateway-session mapping across restarts.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const defaultMaxSessions = 256

// Config applies to every session the manager creates.
type Config struct {
	// GatewayWSURL is the agent gateway websocket endpoint.
	GatewayWSURL string
	// Ruleset and Preset are sent in every HELLO.
	Ruleset string
	Preset  string
	// StateFile, when set, persists the session map as JSON.
	StateFile string
	// MaxSessions caps live sessions (default 256).
	MaxSessions int
}

type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session

	persistMu sync.Mutex
	persisted map[string]persistedSession
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.GatewayWSURL == "" {
		return nil, fmt.Errorf("gateway websocket url is required")
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	m := &Manager{
		cfg:       cfg,
		sessions:  map[string]*Session{},
		persisted: map[string]persistedSession{},
	}
	if cfg.StateFile != "" {
		p, err := loadStateFile(cfg.StateFile)
		if err != nil {
			return nil, err
		}
		m.persisted = p
	}
	return m, nil
}

// Close tears down every live session.
func (m *Manager) Close() {
	m.mu.Lock()
	ss := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		ss = append(ss, s)
	}
	m.sessions = map[string]*Session{}
	m.mu.Unlock()
	for _, s := range ss {
		s.Close()
	}
}

// GetStatus reports without resuming a paused session.
func (m *Manager) GetStatus(ctx context.Context, key string) (Status, error) {
	s, err := m.session(key)
	if err != nil {
		return Status{}, err
	}
	return s.Status(), nil
}

func (m *Manager) GetObs(ctx context.Context, key string, opts GetObsOpts) (ObsResult, error) {
	s, err := m.session(key)
	if err != nil {
		return ObsResult{}, err
	}
	s.ResumeReconnect()
	return s.GetObs(ctx, opts)
}

func (m *Manager) GetCatalog(ctx context.Context, key, name string) (CatalogResult, error) {
	s, err := m.session(key)
	if err != nil {
		return CatalogResult{}, err
	}
	s.ResumeReconnect()
	return s.GetCatalog(ctx, name)
}

func (m *Manager) Act(ctx context.Context, key string, args ActArgs) (ActResult, error) {
	s, err := m.session(key)
	if err != nil {
		return ActResult{}, err
	}
	s.ResumeReconnect()
	return s.Act(ctx, args)
}

func (m *Manager) Reset(ctx context.Context, key string) (ResetResult, error) {
	s, err := m.session(key)
	if err != nil {
		return ResetResult{}, err
	}
	s.ResumeReconnect()
	return s.Reset(ctx)
}

// Disconnect pauses the session instead of destroying it, so the next
// tool call can resume under the same key.
func (m *Manager) Disconnect(ctx context.Context, key string) error {
	s, err := m.session(key)
	if err != nil {
		return err
	}
	s.DisconnectAndPause()
	return nil
}

// session returns the live session for key, creating and starting one
// when needed.
func (m *Manager) session(key string) (*Session, error) {
	if key == "" {
		return nil, fmt.Errorf("session_key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s, nil
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.evictOldestLocked()
	}
	s := newSession(key, m.cfg, m.onSessionUpdate)
	m.sessions[key] = s
	s.Start()
	return s, nil
}

// evictOldestLocked drops the least recently used session. Close waits
// for the dial loop, so it runs off the manager lock.
func (m *Manager) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, s := range m.sessions {
		at := s.LastUsedAt()
		if oldestKey == "" || at.Before(oldest) {
			oldestKey, oldest = key, at
		}
	}
	if oldestKey == "" {
		return
	}
	s := m.sessions[oldestKey]
	delete(m.sessions, oldestKey)
	go s.Close()
}

// onSessionUpdate records the newest gateway identity for one agent
// key and rewrites the whole state file. One write per reconnect keeps
// whole-file rewrites cheap.
func (m *Manager) onSessionUpdate(key string, up sessionUpdate) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.persisted[key] = persistedSession{
		SessionID:       up.SessionID,
		Ruleset:         up.Ruleset,
		LastConnectedAt: up.LastConnectedAt,
	}
	if m.cfg.StateFile == "" {
		return
	}
	b, err := json.MarshalIndent(m.persisted, "", "  ")
	if err != nil {
		return
	}
	b = append(b, '\n')
	_ = writeFileAtomic(m.cfg.StateFile, b)
}
