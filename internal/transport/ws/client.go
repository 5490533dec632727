package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gridcraft.ai/internal/persistence/indexdb"
	"gridcraft.ai/internal/persistence/recording"
	"gridcraft.ai/internal/protocol"
	"gridcraft.ai/internal/sim/hub"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

// client is the per-connection state. The mutex serializes the reader
// and the clock goroutine over the single-owner session.
type client struct {
	srv *Server
	id  string

	mu       sync.Mutex
	s        *session.Session
	rs       *ruleset.Ruleset
	rec      *recording.Recorder
	recPath  string
	lastSeq  uint64
	epReward float64
	epDone   bool

	tick   time.Duration
	out    chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(srv *Server, s *session.Session, rs *ruleset.Ruleset) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		srv:    srv,
		id:     uuid.NewString(),
		s:      s,
		rs:     rs,
		tick:   tickInterval(s.Config()),
		out:    make(chan []byte, 32),
		ctx:    ctx,
		cancel: cancel,
	}
}

// record attaches a recorder when the server is configured for one and
// the session's time mode steps exclusively through the reader.
func (s *Server) record(c *client) {
	if s.opts.RecordDir == "" {
		return
	}
	if kind := c.s.Config().Time.Kind; kind != session.TimeLogical {
		s.log.Printf("session %s: %s sessions are not recorded", c.id, kind)
		return
	}
	path := filepath.Join(s.opts.RecordDir, c.id+".rec.zst")
	rec, err := recording.New(path, c.s, s.opts.DigestEvery)
	if err != nil {
		s.log.Printf("session %s: recording: %v", c.id, err)
		return
	}
	c.rec = rec
	c.recPath = path
}

func tickInterval(cfg session.Config) time.Duration {
	if cfg.Time.Kind == session.TimeLogical || cfg.Time.TicksPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / cfg.Time.TicksPerSecond)
}

func (c *client) welcome(agentName string) protocol.WelcomeMsg {
	cfg := c.s.Config()
	names := make([]string, 0, len(c.rs.Actions))
	for _, a := range c.rs.Actions {
		names = append(names, a.Name)
	}
	wp := protocol.WorldParams{
		Width:          cfg.WorldWidth,
		Height:         cfg.WorldHeight,
		ViewRadius:     cfg.ViewRadius,
		FullWorldState: cfg.FullWorldState,
		Seed:           c.s.Seed(),
		TimeMode:       string(cfg.Time.Kind),
		TicksPerSecond: cfg.Time.TicksPerSecond,
	}
	if cfg.MaxSteps != nil {
		wp.MaxSteps = *cfg.MaxSteps
	}
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       c.id,
		AgentName:       agentName,
		WorldParams:     wp,
		Ruleset: protocol.RulesetRef{
			Name:         c.rs.Name,
			Digest:       c.rs.Digest,
			Actions:      c.rs.ActionCount(),
			Achievements: len(c.rs.Achievements),
		},
		Actions: names,
	}
}

func (c *client) readLoop(conn *websocket.Conn) {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.cancel()
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			c.sendError(0, protocol.ErrProtoBadRequest, "malformed message")
			continue
		}
		switch base.Type {
		case protocol.TypeAct:
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				c.sendError(0, protocol.ErrProtoBadRequest, "malformed ACT")
				continue
			}
			c.handleAct(act)
		case protocol.TypeReset:
			var rst protocol.ResetMsg
			if err := json.Unmarshal(msg, &rst); err != nil {
				c.sendError(0, protocol.ErrProtoBadRequest, "malformed RESET")
				continue
			}
			c.handleReset(rst)
		default:
			c.sendError(0, protocol.ErrProtoBadRequest, fmt.Sprintf("unexpected %s", base.Type))
		}
	}
}

func (c *client) handleAct(act protocol.ActMsg) {
	if act.ProtocolVersion != protocol.Version {
		c.sendError(act.Seq, protocol.ErrProtoBadRequest, "bad protocol_version")
		return
	}
	a, err := hub.ResolveAction(c.rs, act.Action)
	if err != nil {
		c.sendError(act.Seq, protocol.ErrBadRequest, err.Error())
		return
	}

	c.mu.Lock()
	if act.Seq != 0 && act.Seq <= c.lastSeq {
		last := c.lastSeq
		c.mu.Unlock()
		c.sendError(act.Seq, protocol.ErrStale,
			fmt.Sprintf("seq %d is not newer than %d", act.Seq, last))
		return
	}
	if act.Seq != 0 {
		c.lastSeq = act.Seq
	}
	c.s.SetAction(a)
	var res session.StepResult
	if c.s.ManualStepAllowed() {
		res = c.stepLocked(a)
	} else {
		// Pure real-time sessions step from the clock; the ACT only
		// latches the action and is answered with the current state.
		res = c.observeLocked()
	}
	c.mu.Unlock()

	c.sendObs(act.Seq, res)
}

func (c *client) handleReset(rst protocol.ResetMsg) {
	if rst.ProtocolVersion != protocol.Version {
		c.sendError(rst.Seq, protocol.ErrProtoBadRequest, "bad protocol_version")
		return
	}

	c.mu.Lock()
	if rst.Seq != 0 && rst.Seq <= c.lastSeq {
		last := c.lastSeq
		c.mu.Unlock()
		c.sendError(rst.Seq, protocol.ErrStale,
			fmt.Sprintf("seq %d is not newer than %d", rst.Seq, last))
		return
	}
	if rst.Seq != 0 {
		c.lastSeq = rst.Seq
	}
	var res session.StepResult
	if c.rec != nil {
		var err error
		res, err = c.rec.Reset()
		if err != nil {
			c.dropRecorderLocked(err)
		}
	} else {
		res = c.s.Reset()
	}
	c.epReward = 0
	c.epDone = false
	c.mu.Unlock()

	c.sendObs(rst.Seq, res)
}

// stepLocked runs one tick and keeps the episode bookkeeping current.
// Callers hold c.mu.
func (c *client) stepLocked(a session.Action) session.StepResult {
	var res session.StepResult
	if c.rec != nil {
		var err error
		res, err = c.rec.Step(a)
		if err != nil {
			c.dropRecorderLocked(err)
		}
	} else {
		res = c.s.Step(a)
	}
	c.epReward += res.Reward
	if res.Done {
		c.finishEpisodeLocked(res)
	}
	return res
}

// observeLocked snapshots the current state without stepping.
func (c *client) observeLocked() session.StepResult {
	res := session.StepResult{State: c.s.State()}
	res.Done, res.DoneReason = c.s.Done()
	return res
}

// finishEpisodeLocked emits the index row once per episode. Steps past
// the terminal state are no-ops and must not emit again.
func (c *client) finishEpisodeLocked(res session.StepResult) {
	if c.epDone {
		return
	}
	c.epDone = true
	if c.srv.opts.Episodes == nil {
		return
	}
	st := c.s.State()
	c.srv.opts.Episodes.RecordEpisode(indexdb.EpisodeRow{
		SessionID:     c.id,
		Episode:       c.s.Episode(),
		Seed:          c.s.WorldSeed(),
		Ruleset:       c.rs.Name,
		Steps:         c.s.StepCount(),
		Reward:        c.epReward,
		DoneReason:    string(res.DoneReason),
		Achievements:  st.Achievements,
		RecordingPath: c.recPath,
	})
}

// dropRecorderLocked stops recording after a write failure. The session
// itself keeps running; the file stays a valid prefix of the run.
func (c *client) dropRecorderLocked(err error) {
	c.srv.log.Printf("session %s: recording failed, stopping it: %v", c.id, err)
	_ = c.rec.Close()
	c.rec = nil
	if c.srv.opts.Recordings != nil {
		c.srv.opts.Recordings.RecordingClosed(c.recPath)
	}
}

// tickLoop feeds wall time to real-time and hybrid sessions. Each
// executed tick goes out as an unsolicited OBS with seq 0.
func (c *client) tickLoop() {
	t := time.NewTicker(c.tick)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-t.C:
			c.mu.Lock()
			results := c.s.Advance(now.Sub(last).Seconds())
			last = now
			for _, res := range results {
				c.epReward += res.Reward
				if res.Done {
					c.finishEpisodeLocked(res)
				}
			}
			c.mu.Unlock()
			for _, res := range results {
				c.sendObs(0, res)
			}
		}
	}
}

func (c *client) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case b := <-c.out:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *client) sendObs(seq uint64, res session.StepResult) {
	if c.srv.opts.Watch != nil {
		c.srv.opts.Watch.Publish(c.id, res)
	}
	c.send(protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Seq:             seq,
		Step:            res.State.Step,
		Episode:         res.State.Episode,
		Reward:          res.Reward,
		Done:            res.Done,
		DoneReason:      string(res.DoneReason),
		NewlyUnlocked:   res.NewlyUnlocked,
		Events:          res.Events,
		State:           res.State,
	})
}

func (c *client) sendError(seq uint64, code, msg string) {
	c.send(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Seq:             seq,
		Code:            code,
		Message:         msg,
	})
}

func (c *client) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.srv.log.Printf("session %s: marshal: %v", c.id, err)
		return
	}
	select {
	case c.out <- b:
	case <-c.ctx.Done():
	}
}

func (c *client) shutdown() {
	c.cancel()
	if c.srv.opts.Watch != nil {
		c.srv.opts.Watch.SessionClosed(c.id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil {
		if err := c.rec.Close(); err != nil {
			c.srv.log.Printf("session %s: close recording: %v", c.id, err)
		}
		c.rec = nil
		if c.srv.opts.Recordings != nil {
			c.srv.opts.Recordings.RecordingClosed(c.recPath)
		}
	}
}
