// Package ws serves the agent gateway. Each connection owns one
// private session: HELLO negotiates the profile and config, WELCOME
// answers with the session identity, then ACT and RESET stream against
// OBS. Real-time sessions additionally tick from a server-side clock.
package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gridcraft.ai/internal/persistence/indexdb"
	"gridcraft.ai/internal/protocol"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

// EpisodeSink receives finished episodes. Implementations must not
// block; both index backends queue internally.
type EpisodeSink interface {
	RecordEpisode(e indexdb.EpisodeRow)
}

// WatchSink receives the live observation stream for spectators.
// Implementations must not block; the registry drops frames for slow
// watchers instead.
type WatchSink interface {
	SessionOpened(id, agentName string, rs *ruleset.Ruleset, cfg session.Config)
	Publish(id string, res session.StepResult)
	SessionClosed(id string)
}

// Options configures the gateway beyond the protocol itself.
type Options struct {
	// RecordDir, when set, stores one recording per logical session.
	// Real-time and hybrid sessions are not recorded: their clock
	// ticks would bypass the recorder.
	RecordDir string
	// DigestEvery is the recording digest cadence (0 = every step).
	DigestEvery int

	// Episodes receives a row whenever a session's episode ends.
	Episodes EpisodeSink

	// Watch mirrors every OBS to spectators.
	Watch WatchSink

	// Recordings is told when a recording file is complete on disk
	// and will not grow further.
	Recordings RecordingSink
}

// RecordingSink receives finalized recording paths, e.g. for mirroring
// them off the host. Implementations must not block.
type RecordingSink interface {
	RecordingClosed(path string)
}

// Metrics is a point-in-time counter sample for the exposition
// endpoint.
type Metrics struct {
	ActiveConnections int64 `json:"active_connections"`
	SessionsTotal     int64 `json:"sessions_total"`
}

type Server struct {
	log  *log.Logger
	opts Options

	active atomic.Int64
	total  atomic.Int64

	upgrader websocket.Upgrader
}

func NewServer(logger *log.Logger, opts Options) *Server {
	return &Server{
		log:  logger,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Metrics samples the connection counters.
func (s *Server) Metrics() Metrics {
	return Metrics{
		ActiveConnections: s.active.Load(),
		SessionsTotal:     s.total.Load(),
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := s.handshake(conn)
		if c == nil {
			return
		}
		defer c.shutdown()
		s.active.Add(1)
		s.total.Add(1)
		defer s.active.Add(-1)

		go c.writeLoop(conn)
		if c.tick > 0 {
			go c.tickLoop()
		}
		c.readLoop(conn)
	}
}

// handshake reads the HELLO, builds the session and answers with the
// WELCOME. A nil return means the connection was refused.
func (s *Server) handshake(conn *websocket.Conn) *client {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.refuse(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		s.refuse(conn, protocol.ErrProtoBadRequest, "malformed HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		s.refuse(conn, protocol.ErrProtoBadRequest,
			fmt.Sprintf("protocol %q, want %q", hello.ProtocolVersion, protocol.Version))
		return nil
	}
	if hello.AgentName == "" {
		hello.AgentName = "agent"
	}

	cfg, err := session.PresetByName(hello.Preset)
	if err != nil {
		s.refuse(conn, protocol.ErrBadRequest, err.Error())
		return nil
	}
	applyOverrides(&cfg, hello.Overrides)
	cfg.Seed = nil
	if hello.Seed != nil {
		seed := *hello.Seed
		cfg.Seed = &seed
	}

	profile := hello.Ruleset
	if profile == "" {
		profile = "classic"
	}
	rs, err := ruleset.ByName(profile)
	if err != nil {
		s.refuse(conn, protocol.ErrBadRequest, err.Error())
		return nil
	}

	sess, err := session.New(cfg, rs)
	if err != nil {
		s.refuse(conn, protocol.ErrBadRequest, err.Error())
		return nil
	}

	c := newClient(s, sess, rs)
	s.record(c)

	if err := writeJSON(conn, c.welcome(hello.AgentName)); err != nil {
		c.shutdown()
		return nil
	}
	if s.opts.Watch != nil {
		s.opts.Watch.SessionOpened(c.id, hello.AgentName, rs, cfg)
	}
	s.log.Printf("session %s: agent=%q ruleset=%s seed=%d time=%s",
		c.id, hello.AgentName, rs.Name, sess.Seed(), cfg.Time.Kind)
	return c
}

// refuse reports why the handshake failed, then closes. The ERROR
// frame carries the detail; the close frame only the code.
func (s *Server) refuse(conn *websocket.Conn, code, msg string) {
	b, err := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         msg,
	})
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code),
		time.Now().Add(time.Second))
}

func applyOverrides(cfg *session.Config, o *protocol.ConfigOverrides) {
	if o == nil {
		return
	}
	if o.ViewRadius != nil {
		cfg.ViewRadius = *o.ViewRadius
	}
	if o.MaxSteps != nil {
		steps := *o.MaxSteps
		cfg.MaxSteps = &steps
	}
	if o.FullWorldState != nil {
		cfg.FullWorldState = *o.FullWorldState
	}
	if o.DayNightCycle != nil {
		cfg.DayNightCycle = *o.DayNightCycle
	}
	if o.HungerEnabled != nil {
		cfg.HungerEnabled = *o.HungerEnabled
	}
	if o.ThirstEnabled != nil {
		cfg.ThirstEnabled = *o.ThirstEnabled
	}
	if o.FatigueEnabled != nil {
		cfg.FatigueEnabled = *o.FatigueEnabled
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
