// Package observer streams live gateway sessions to read-only
// spectators. The gateway publishes every observation frame into a
// Registry; watch connections subscribe to one session at a time and
// receive its frames as they happen. Slow spectators lose frames,
// never the game.
package observer

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"gridcraft.ai/internal/observerproto"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

// ErrUnknownSession reports a subscribe against an id the registry
// does not hold.
var ErrUnknownSession = errors.New("unknown session")

// SessionMeta identifies a watchable session.
type SessionMeta struct {
	SessionID     string
	AgentName     string
	Ruleset       string
	RulesetDigest string
	TimeMode      string
}

type watcher struct {
	out chan []byte

	// All remaining fields are guarded by the registry mutex.
	sessID  string
	closed  bool
	dropped uint64
}

func newWatcher() *watcher {
	return &watcher{out: make(chan []byte, 64)}
}

type watched struct {
	meta      SessionMeta
	step      int
	episode   int
	lastFrame []byte
	watchers  map[*watcher]struct{}
}

// Registry is the fan-out point between the gateway and spectators.
// It implements the gateway's watch sink.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*watched
	count    int
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*watched)}
}

// SessionOpened makes a fresh gateway session watchable.
func (r *Registry) SessionOpened(id, agentName string, rs *ruleset.Ruleset, cfg session.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &watched{
		meta: SessionMeta{
			SessionID:     id,
			AgentName:     agentName,
			Ruleset:       rs.Name,
			RulesetDigest: rs.Digest,
			TimeMode:      string(cfg.Time.Kind),
		},
		watchers: make(map[*watcher]struct{}),
	}
}

// Publish fans one step result out to the session's watchers and keeps
// it as the bootstrap frame for late subscribers.
func (r *Registry) Publish(id string, res session.StepResult) {
	state, err := json.Marshal(res.State)
	if err != nil {
		return
	}
	frame, err := json.Marshal(observerproto.FrameMsg{
		Type:            observerproto.TypeFrame,
		ProtocolVersion: observerproto.Version,
		SessionID:       id,
		Step:            res.State.Step,
		Episode:         res.State.Episode,
		Reward:          res.Reward,
		Done:            res.Done,
		DoneReason:      string(res.DoneReason),
		NewlyUnlocked:   res.NewlyUnlocked,
		Events:          res.Events,
		State:           state,
	})
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.sessions[id]
	if !ok {
		return
	}
	w.step = res.State.Step
	w.episode = res.State.Episode
	w.lastFrame = frame
	for wt := range w.watchers {
		r.enqueueLocked(wt, frame)
	}
}

// SessionClosed tells every watcher the stream is over and drops the
// session. Unknown ids are a no-op, so the gateway may call this on
// any teardown path.
func (r *Registry) SessionClosed(id string) {
	closing, err := json.Marshal(observerproto.ErrorMsg{
		Type:            observerproto.TypeError,
		ProtocolVersion: observerproto.Version,
		Code:            observerproto.ErrSessionClosed,
		Message:         "session ended",
	})
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	for wt := range w.watchers {
		r.enqueueLocked(wt, closing)
		wt.closed = true
		wt.sessID = ""
		close(wt.out)
		r.count--
	}
}

// Sessions lists watchable sessions in id order.
func (r *Registry) Sessions() []observerproto.SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]observerproto.SessionInfo, 0, len(r.sessions))
	for _, w := range r.sessions {
		out = append(out, observerproto.SessionInfo{
			SessionID: w.meta.SessionID,
			AgentName: w.meta.AgentName,
			Ruleset:   w.meta.Ruleset,
			TimeMode:  w.meta.TimeMode,
			Step:      w.step,
			Episode:   w.episode,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// WatcherCount reports how many spectator connections are attached.
func (r *Registry) WatcherCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// attach subscribes wt to the named session, moving it off its current
// one. On an unknown id the current subscription stays untouched. The
// WATCHING ack and the latest frame go out through wt's own channel so
// they serialize with live frames.
func (r *Registry) attach(wt *watcher, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wt.closed {
		return ErrUnknownSession
	}
	target, ok := r.sessions[id]
	if !ok {
		return ErrUnknownSession
	}

	if wt.sessID == "" {
		r.count++
	} else if cur, ok := r.sessions[wt.sessID]; ok {
		delete(cur.watchers, wt)
	}
	target.watchers[wt] = struct{}{}
	wt.sessID = id

	ack, err := json.Marshal(observerproto.WatchingMsg{
		Type:            observerproto.TypeWatching,
		ProtocolVersion: observerproto.Version,
		SessionID:       target.meta.SessionID,
		AgentName:       target.meta.AgentName,
		Ruleset:         target.meta.Ruleset,
		RulesetDigest:   target.meta.RulesetDigest,
		TimeMode:        target.meta.TimeMode,
	})
	if err == nil {
		r.enqueueLocked(wt, ack)
	}
	if target.lastFrame != nil {
		r.enqueueLocked(wt, target.lastFrame)
	}
	return nil
}

// detach ends wt's subscription and closes its channel. Safe to call
// after the session already closed it.
func (r *Registry) detach(wt *watcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wt.closed {
		return
	}
	if wt.sessID != "" {
		if cur, ok := r.sessions[wt.sessID]; ok {
			delete(cur.watchers, wt)
		}
		wt.sessID = ""
		r.count--
	}
	wt.closed = true
	close(wt.out)
}

// push hands wt an out-of-band message, typically an error frame.
func (r *Registry) push(wt *watcher, b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueueLocked(wt, b)
}

func (r *Registry) enqueueLocked(wt *watcher, b []byte) {
	if wt.closed {
		return
	}
	select {
	case wt.out <- b:
	default:
		wt.dropped++
	}
}
