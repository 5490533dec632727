package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gridcraft.ai/internal/protocol"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

const (
	dialTimeout    = 5 * time.Second
	writeTimeout   = 5 * time.Second
	readTimeout    = 60 * time.Second
	ackTimeout     = 2 * time.Second
	pollInterval   = 25 * time.Millisecond
	maxBackoff     = 5 * time.Second
	initialBackoff = 200 * time.Millisecond

	// summaryEventCap bounds the event log in summary observations.
	summaryEventCap = 20
)

var catalogNames = []string{"actions", "materials", "items", "recipes", "placements", "achievements"}

// Session owns one websocket to the gateway on behalf of one agent
// key. A dropped connection is redialed with backoff, but the gateway
// hands every new connection a fresh game session, so progress does
// not survive a drop. The gateway also closes connections idle for a
// minute; agents that stall longer resume into a new world.
type Session struct {
	key      string
	cfg      Config
	onUpdate func(key string, up sessionUpdate)

	mu          sync.RWMutex
	conn        *websocket.Conn
	connected   bool
	paused      bool
	sessionID   string
	welcome     protocol.WelcomeMsg
	rs          *ruleset.Ruleset
	catalogs    map[string]json.RawMessage
	seq         uint64
	ackSeq      uint64
	errSeq      uint64
	errCode     string
	errMsg      string
	lastStep    int
	lastEpisode int
	lastObs     json.RawMessage
	lastErr     string
	lastUsedAt  time.Time

	// writeMu serializes frames onto the websocket.
	writeMu sync.Mutex

	obsNotify    chan struct{}
	resumeNotify chan struct{}
	stop         chan struct{}
	done         chan struct{}
	startOnce    sync.Once
	closeOnce    sync.Once
}

// sessionUpdate is reported to the manager whenever the gateway hands
// out a session identity.
type sessionUpdate struct {
	SessionID       string
	Ruleset         string
	LastConnectedAt time.Time
}

func newSession(key string, cfg Config, onUpdate func(string, sessionUpdate)) *Session {
	return &Session{
		key:          key,
		cfg:          cfg,
		onUpdate:     onUpdate,
		catalogs:     map[string]json.RawMessage{},
		obsNotify:    make(chan struct{}, 1),
		resumeNotify: make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		lastUsedAt:   time.Now(),
	}
}

// Start launches the dial loop. Safe to call more than once.
func (s *Session) Start() {
	s.startOnce.Do(func() { go s.run() })
}

// Close tears the session down and waits for the dial loop to exit.
// Only call after Start.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.Disconnect()
		<-s.done
	})
}

func (s *Session) run() {
	defer close(s.done)

	backoff := initialBackoff
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		if s.waitWhilePaused() {
			return
		}

		err := s.connectAndStream()
		if err == nil {
			return
		}
		s.noteDisconnect(err)

		if s.isPaused() {
			continue
		}
		select {
		case <-s.stop:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// waitWhilePaused blocks until the session is resumed. It reports
// true when Close won instead.
func (s *Session) waitWhilePaused() bool {
	for {
		if !s.isPaused() {
			return false
		}
		select {
		case <-s.stop:
			return true
		case <-s.resumeNotify:
		}
	}
}

// connectAndStream dials, sends HELLO and pumps incoming frames until
// the connection dies. A nil return means Close fired.
func (s *Session) connectAndStream() error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, resp, err := dialer.Dial(s.cfg.GatewayWSURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.GatewayWSURL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	hello, err := json.Marshal(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       s.key,
		Ruleset:         s.cfg.Ruleset,
		Preset:          s.cfg.Preset,
	})
	if err != nil {
		_ = conn.Close()
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		_ = conn.Close()
		return fmt.Errorf("send HELLO: %w", err)
	}

	s.mu.Lock()
	if s.paused {
		// A pause raced the dial; drop the fresh connection instead of
		// streaming on a session the caller just parked.
		s.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("paused during connect")
	}
	s.conn = conn
	s.mu.Unlock()

	for {
		select {
		case <-s.stop:
			_ = conn.Close()
			return nil
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			s.handleWelcome(msg)
		case protocol.TypeObs:
			s.handleObs(msg)
		case protocol.TypeError:
			s.handleError(msg)
		}
	}
}

// handleWelcome records the session identity and resolves the
// announced profile locally. Catalogs come from the local profile, so
// a name or digest the bridge does not know leaves them unavailable
// while the session itself keeps running.
func (s *Session) handleWelcome(msg []byte) {
	var w protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &w); err != nil {
		return
	}

	rs, err := ruleset.ByName(w.Ruleset.Name)
	rsErr := ""
	if err != nil {
		rs = nil
		rsErr = fmt.Sprintf("no local profile %q, catalogs unavailable", w.Ruleset.Name)
	} else if rs.Digest != w.Ruleset.Digest {
		rs = nil
		rsErr = fmt.Sprintf("local profile %q differs from the gateway's (digest mismatch), catalogs unavailable", w.Ruleset.Name)
	}

	now := time.Now()
	s.mu.Lock()
	s.welcome = w
	s.sessionID = w.SessionID
	s.rs = rs
	s.catalogs = buildCatalogs(rs)
	s.connected = true
	s.lastErr = rsErr
	s.mu.Unlock()
	s.wakeWaiters()

	if s.onUpdate != nil {
		s.onUpdate(s.key, sessionUpdate{
			SessionID:       w.SessionID,
			Ruleset:         w.Ruleset.Name,
			LastConnectedAt: now,
		})
	}
}

func (s *Session) handleObs(msg []byte) {
	var head struct {
		Seq     uint64 `json:"seq"`
		Step    int    `json:"step"`
		Episode int    `json:"episode"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		return
	}
	s.mu.Lock()
	if head.Seq > s.ackSeq {
		s.ackSeq = head.Seq
	}
	s.lastStep = head.Step
	s.lastEpisode = head.Episode
	s.lastObs = msg
	s.mu.Unlock()
	s.wakeWaiters()
}

func (s *Session) handleError(msg []byte) {
	var em protocol.ErrorMsg
	if err := json.Unmarshal(msg, &em); err != nil {
		return
	}
	s.mu.Lock()
	s.errSeq = em.Seq
	s.errCode = em.Code
	s.errMsg = em.Message
	// Unsolicited errors go to status; seq-scoped ones are returned to
	// the waiting call instead.
	if em.Seq == 0 {
		s.lastErr = fmt.Sprintf("%s: %s", em.Code, em.Message)
	}
	s.mu.Unlock()
	s.wakeWaiters()
}

func (s *Session) noteDisconnect(err error) {
	s.mu.Lock()
	s.connected = false
	s.conn = nil
	if !s.paused {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()
	s.wakeWaiters()
}

func (s *Session) wakeWaiters() {
	select {
	case s.obsNotify <- struct{}{}:
	default:
	}
}

// Status reports the session without touching the gateway.
func (s *Session) Status() Status {
	s.touch()
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Connected:    s.connected,
		Paused:       s.paused,
		SessionID:    s.sessionID,
		AgentName:    s.key,
		GatewayWSURL: s.cfg.GatewayWSURL,
		LastStep:     s.lastStep,
		LastEpisode:  s.lastEpisode,
		LastError:    s.lastErr,
	}
	if s.welcome.Ruleset.Name != "" {
		st.Ruleset = s.welcome.Ruleset.Name
		st.RulesetDigest = s.welcome.Ruleset.Digest
		st.TimeMode = s.welcome.WorldParams.TimeMode
	}
	return st
}

// GetObs returns the newest cached observation, or with WaitNewStep
// the next one strictly after it. Logical-time sessions only step when
// someone acts, so WaitNewStep there just runs out the timeout.
func (s *Session) GetObs(ctx context.Context, opts GetObsOpts) (ObsResult, error) {
	s.touch()
	mode := opts.Mode
	if mode == "" {
		mode = ObsModeSummary
	}
	if mode != ObsModeFull && mode != ObsModeSummary {
		return ObsResult{}, fmt.Errorf("unknown mode %q", mode)
	}
	timeout := time.Duration(opts.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = ackTimeout
	}

	var raw json.RawMessage
	var step, episode int
	if opts.WaitNewStep {
		s.mu.RLock()
		fromStep, fromEpisode := s.lastStep, s.lastEpisode
		s.mu.RUnlock()
		var err error
		raw, step, episode, err = s.waitObsAfter(ctx, fromStep, fromEpisode, timeout)
		if err != nil {
			return ObsResult{}, err
		}
	} else {
		s.mu.RLock()
		raw, step, episode = s.lastObs, s.lastStep, s.lastEpisode
		s.mu.RUnlock()
	}
	if len(raw) == 0 {
		return ObsResult{}, nil
	}
	if mode == ObsModeFull {
		return ObsResult{Step: step, Episode: episode, Obs: raw}, nil
	}
	sum, err := summarizeObs(raw)
	if err != nil {
		return ObsResult{}, err
	}
	return ObsResult{Step: step, Episode: episode, Obs: sum}, nil
}

// GetCatalog serves one pre-marshaled profile slice. Right after a
// connect the catalogs may not exist yet, so unknown-versus-pending is
// decided only once the wait budget runs out.
func (s *Session) GetCatalog(ctx context.Context, name string) (CatalogResult, error) {
	s.touch()
	name = strings.ToLower(strings.TrimSpace(name))

	deadline := time.Now().Add(ackTimeout)
	for {
		s.mu.RLock()
		data, ok := s.catalogs[name]
		digest := s.welcome.Ruleset.Digest
		have := len(s.catalogs) > 0
		rsErr := s.lastErr
		s.mu.RUnlock()
		if ok {
			return CatalogResult{Name: name, Digest: digest, Data: data}, nil
		}
		if have {
			return CatalogResult{}, fmt.Errorf("unknown catalog %q (have %s)", name, strings.Join(catalogNames, ", "))
		}
		if time.Now().After(deadline) {
			if rsErr != "" {
				return CatalogResult{}, fmt.Errorf("catalogs unavailable: %s", rsErr)
			}
			return CatalogResult{}, fmt.Errorf("not connected to the gateway yet")
		}
		select {
		case <-ctx.Done():
			return CatalogResult{}, ctx.Err()
		case <-s.stop:
			return CatalogResult{}, fmt.Errorf("session closed")
		case <-time.After(pollInterval):
		}
	}
}

// Act sends a seq-stamped ACT and waits for its echo.
func (s *Session) Act(ctx context.Context, args ActArgs) (ActResult, error) {
	s.touch()
	name := strings.TrimSpace(args.Action)
	if name == "" {
		return ActResult{}, fmt.Errorf("act needs an action name")
	}
	if err := s.awaitConn(ctx, ackTimeout); err != nil {
		return ActResult{}, err
	}

	seq := s.nextSeq()
	b, err := json.Marshal(protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Seq:             seq,
		Action:          name,
	})
	if err != nil {
		return ActResult{}, err
	}
	if err := s.send(b); err != nil {
		return ActResult{}, err
	}
	o, err := s.waitAck(ctx, seq, ackTimeout)
	if err != nil {
		return ActResult{}, err
	}
	return ActResult{
		Seq:           seq,
		Step:          o.Step,
		Episode:       o.Episode,
		Reward:        o.Reward,
		Done:          o.Done,
		DoneReason:    o.DoneReason,
		NewlyUnlocked: o.NewlyUnlocked,
	}, nil
}

// Reset sends a seq-stamped RESET and waits for its echo.
func (s *Session) Reset(ctx context.Context) (ResetResult, error) {
	s.touch()
	if err := s.awaitConn(ctx, ackTimeout); err != nil {
		return ResetResult{}, err
	}

	seq := s.nextSeq()
	b, err := json.Marshal(protocol.ResetMsg{
		Type:            protocol.TypeReset,
		ProtocolVersion: protocol.Version,
		Seq:             seq,
	})
	if err != nil {
		return ResetResult{}, err
	}
	if err := s.send(b); err != nil {
		return ResetResult{}, err
	}
	o, err := s.waitAck(ctx, seq, ackTimeout)
	if err != nil {
		return ResetResult{}, err
	}
	return ResetResult{Seq: seq, Step: o.Step, Episode: o.Episode}, nil
}

// Disconnect drops the websocket. The dial loop redials immediately.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// DisconnectAndPause drops the websocket and parks the dial loop until
// ResumeReconnect.
func (s *Session) DisconnectAndPause() {
	s.touch()
	s.mu.Lock()
	s.paused = true
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// ResumeReconnect unparks a paused dial loop. A no-op on a live
// session.
func (s *Session) ResumeReconnect() {
	s.mu.Lock()
	was := s.paused
	s.paused = false
	s.mu.Unlock()
	if was {
		select {
		case s.resumeNotify <- struct{}{}:
		default:
		}
	}
}

// LastUsedAt is the manager's LRU clock.
func (s *Session) LastUsedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsedAt
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsedAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) isPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

func (s *Session) send(b []byte) error {
	s.mu.RLock()
	conn := s.conn
	paused := s.paused
	s.mu.RUnlock()
	if conn == nil {
		if paused {
			return fmt.Errorf("session is paused")
		}
		return fmt.Errorf("not connected to the gateway")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Session) nextSeq() uint64 {
	s.mu.Lock()
	s.seq++
	n := s.seq
	s.mu.Unlock()
	return n
}

// awaitConn waits briefly for the dialer, which covers the reconnect
// window right after a resume.
func (s *Session) awaitConn(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.RLock()
		ok := s.conn != nil
		s.mu.RUnlock()
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("not connected to the gateway")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return fmt.Errorf("session closed")
		case <-time.After(pollInterval):
		}
	}
}

// obsWire is the slice of an OBS frame the ack path needs.
type obsWire struct {
	Seq           uint64   `json:"seq"`
	Step          int      `json:"step"`
	Episode       int      `json:"episode"`
	Reward        float64  `json:"reward"`
	Done          bool     `json:"done"`
	DoneReason    string   `json:"done_reason"`
	NewlyUnlocked []string `json:"newly_unlocked"`
}

func (s *Session) waitAck(ctx context.Context, seq uint64, timeout time.Duration) (obsWire, error) {
	deadline := time.Now().Add(timeout)
	for {
		if o, settled, err := s.ackFor(seq); settled {
			return o, err
		}
		if time.Now().After(deadline) {
			return obsWire{}, fmt.Errorf("no acknowledgement for seq %d within %s", seq, timeout)
		}
		select {
		case <-ctx.Done():
			return obsWire{}, ctx.Err()
		case <-s.stop:
			return obsWire{}, fmt.Errorf("session closed")
		case <-time.After(pollInterval):
		case <-s.obsNotify:
		}
	}
}

// ackFor resolves the wait for seq: an ERROR with the same seq settles
// it, as does any OBS at or past it. Seqs are monotonic for the life
// of the session, so stale errors cannot match.
func (s *Session) ackFor(seq uint64) (obsWire, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.errSeq == seq {
		return obsWire{}, true, fmt.Errorf("%s: %s", s.errCode, s.errMsg)
	}
	if s.ackSeq >= seq && len(s.lastObs) > 0 {
		var o obsWire
		if err := json.Unmarshal(s.lastObs, &o); err != nil {
			return obsWire{}, true, fmt.Errorf("parse obs: %w", err)
		}
		return o, true, nil
	}
	return obsWire{}, false, nil
}

func (s *Session) waitObsAfter(ctx context.Context, fromStep, fromEpisode int, timeout time.Duration) (json.RawMessage, int, int, error) {
	deadline := time.Now().Add(timeout)
	for {
		raw, step, episode, ok := s.obsNewerThan(fromStep, fromEpisode)
		if ok {
			return raw, step, episode, nil
		}
		if time.Now().After(deadline) {
			return nil, 0, 0, fmt.Errorf("no new observation within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return nil, 0, 0, ctx.Err()
		case <-s.stop:
			return nil, 0, 0, fmt.Errorf("session closed")
		case <-time.After(pollInterval):
		case <-s.obsNotify:
		}
	}
}

// obsNewerThan compares by episode first: a reset winds the step
// counter back, so step alone cannot order frames.
func (s *Session) obsNewerThan(step, episode int) (json.RawMessage, int, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.lastObs) == 0 {
		return nil, 0, 0, false
	}
	if s.lastEpisode > episode || (s.lastEpisode == episode && s.lastStep > step) {
		return s.lastObs, s.lastStep, s.lastEpisode, true
	}
	return nil, 0, 0, false
}

// summarizeObs drops the tile payload and keeps only the newest
// events, so a frame stays small enough to hand an agent every turn.
func summarizeObs(raw json.RawMessage) (json.RawMessage, error) {
	var o struct {
		Type            string            `json:"type"`
		ProtocolVersion string            `json:"protocol_version"`
		Seq             uint64            `json:"seq,omitempty"`
		Step            int               `json:"step"`
		Episode         int               `json:"episode"`
		Reward          float64           `json:"reward"`
		Done            bool              `json:"done"`
		DoneReason      string            `json:"done_reason,omitempty"`
		NewlyUnlocked   []string          `json:"newly_unlocked,omitempty"`
		Events          []string          `json:"events,omitempty"`
		State           session.GameState `json:"state"`
	}
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("parse obs: %w", err)
	}
	o.State.View = nil
	o.State.Full = nil
	if len(o.Events) > summaryEventCap {
		o.Events = o.Events[len(o.Events)-summaryEventCap:]
	}
	return json.Marshal(o)
}

// buildCatalogs pre-marshals the profile slices agents ask about. The
// profile structs are yaml-shaped, so each catalog carries its own
// wire form here. A nil profile yields an empty map.
func buildCatalogs(rs *ruleset.Ruleset) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	if rs == nil {
		return out
	}

	type actionInfo struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	actions := make([]actionInfo, 0, len(rs.Actions))
	for i, a := range rs.Actions {
		actions = append(actions, actionInfo{ID: i, Name: a.Name, Kind: a.Kind})
	}

	type materialInfo struct {
		ID        int    `json:"id"`
		Name      string `json:"name"`
		Glyph     string `json:"glyph"`
		Walkable  bool   `json:"walkable"`
		Deadly    bool   `json:"deadly,omitempty"`
		Mineable  bool   `json:"mineable,omitempty"`
		Drinkable bool   `json:"drinkable,omitempty"`
	}
	materials := make([]materialInfo, 0, len(rs.Materials))
	for i, m := range rs.Materials {
		materials = append(materials, materialInfo{
			ID:        i,
			Name:      m.Name,
			Glyph:     m.Glyph,
			Walkable:  m.Walkable,
			Deadly:    m.Deadly,
			Mineable:  m.Mine != nil,
			Drinkable: m.Drink,
		})
	}

	type recipeInfo struct {
		Action   string         `json:"action"`
		Product  string         `json:"product"`
		Cost     map[string]int `json:"cost"`
		Stations []string       `json:"stations,omitempty"`
	}
	recipes := make([]recipeInfo, 0, len(rs.Recipes))
	for _, r := range rs.Recipes {
		recipes = append(recipes, recipeInfo{
			Action:   r.Action,
			Product:  r.Product,
			Cost:     r.Cost,
			Stations: r.Stations,
		})
	}

	type placementInfo struct {
		Action   string         `json:"action"`
		Material string         `json:"material,omitempty"`
		Object   string         `json:"object,omitempty"`
		Cost     map[string]int `json:"cost"`
	}
	placements := make([]placementInfo, 0, len(rs.Placements))
	for _, p := range rs.Placements {
		placements = append(placements, placementInfo{
			Action:   p.Action,
			Material: p.Material,
			Object:   p.Object,
			Cost:     p.Cost,
		})
	}

	put := func(name string, v any) {
		b, err := json.Marshal(v)
		if err != nil {
			return
		}
		out[name] = b
	}
	put("actions", actions)
	put("materials", materials)
	put("items", rs.Items)
	put("recipes", recipes)
	put("placements", placements)
	put("achievements", rs.Achievements)
	return out
}
