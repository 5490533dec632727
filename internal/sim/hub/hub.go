// Package hub multiplexes sessions behind opaque ids and serves the
// one-shot snapshot pattern: apply a batch of named actions to a
// session, creating it on demand, then describe the world as it
// stands. Responses are self-contained so stateless agents can play
// over plain request/response transports.
package hub

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

// Hub owns the sessions the snapshot API can reach. All methods are
// safe for concurrent use; the mutex also serializes stepping, since
// sessions themselves are single-owner.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*session.Session

	cfg session.Config
	rs  *ruleset.Ruleset
}

// New returns an empty hub. Sessions created through requests start
// from cfg; the request's seed and view size override it.
func New(cfg session.Config, rs *ruleset.Ruleset) *Hub {
	return &Hub{
		sessions: make(map[string]*session.Session),
		cfg:      cfg,
		rs:       rs,
	}
}

// Process resolves the request's actions, finds or creates the target
// session, applies the actions in order (stopping once the episode
// ends) and builds the response. Unknown action names fail the whole
// request before any step runs.
func (h *Hub) Process(req SnapshotRequest) (*SnapshotResponse, error) {
	acts := make([]session.Action, 0, len(req.Actions))
	for _, name := range req.Actions {
		a, err := ResolveAction(h.rs, name)
		if err != nil {
			return nil, err
		}
		acts = append(acts, a)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id, s, err := h.findOrCreate(req)
	if err != nil {
		return nil, err
	}

	var (
		reward float64
		newly  []string
	)
	for _, a := range acts {
		res := s.Step(a)
		reward += res.Reward
		newly = append(newly, res.NewlyUnlocked...)
		if res.Done {
			break
		}
	}

	return buildResponse(id, s, newly, reward), nil
}

// findOrCreate runs under the hub lock. An unknown or absent session
// id starts a fresh session under a fresh id, the way a stateless
// client recovers after the server forgot it.
func (h *Hub) findOrCreate(req SnapshotRequest) (string, *session.Session, error) {
	if req.SessionID != "" {
		if s, ok := h.sessions[req.SessionID]; ok {
			return req.SessionID, s, nil
		}
	}
	cfg := h.cfg
	cfg.Seed = nil
	if req.Seed != nil {
		seed := *req.Seed
		cfg.Seed = &seed
	}
	if req.ViewSize != nil {
		cfg.ViewRadius = (*req.ViewSize - 1) / 2
	}
	s, err := session.New(cfg, h.rs)
	if err != nil {
		return "", nil, err
	}
	id := uuid.NewString()
	h.sessions[id] = s
	return id, s, nil
}

// Session returns the live session for id. The caller must not step it
// while the hub could also receive requests for the same id.
func (h *Hub) Session(id string) (*session.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

// WithSession runs fn on the named session under the hub lock, so no
// request can step the session while fn observes it.
func (h *Hub) WithSession(id string, fn func(*session.Session) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if !ok {
		return fmt.Errorf("unknown session %q", id)
	}
	return fn(s)
}

// Remove drops a session and reports whether it existed.
func (h *Hub) Remove(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[id]
	delete(h.sessions, id)
	return ok
}

// SessionIDs lists every live session id in sorted order.
func (h *Hub) SessionIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len reports how many sessions the hub holds.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
