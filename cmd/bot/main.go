// bot is a scripted agent for exercising the gateway. It connects,
// plays a number of episodes under a weighted random policy and prints
// what it unlocked. Useful as a smoke load and as a worked example of
// the wire protocol.
package main

import (
	"encoding/json"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"gridcraft.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "gateway ws url")
		name     = flag.String("name", "bot", "agent name")
		rsName   = flag.String("ruleset", "classic", "profile name")
		preset   = flag.String("preset", "fast_training", "session preset")
		seed     = flag.Uint64("seed", 0, "world seed (0 = server entropy)")
		episodes = flag.Int("episodes", 3, "episodes to play before exiting")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "bot"})

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatal("dial", "url", *url, "error", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       *name,
		Ruleset:         *rsName,
		Preset:          *preset,
	}
	if *seed != 0 {
		hello.Seed = seed
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatal("send HELLO", "error", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	rngSeed := int64(*seed)
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	b := &bot{
		conn:     conn,
		logger:   logger,
		rng:      rand.New(rand.NewSource(rngSeed)),
		episodes: *episodes,
		unlocked: make(map[string]bool),
	}

	for {
		select {
		case <-stop:
			logger.Info("interrupted")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(time.Second))
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if b.finished {
				return
			}
			logger.Fatal("read", "error", err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.handleWelcome(&w)
		case protocol.TypeObs:
			var obs protocol.ObsMsg
			if err := json.Unmarshal(msg, &obs); err != nil {
				continue
			}
			if b.handleObs(&obs) {
				return
			}
		case protocol.TypeError:
			var em protocol.ErrorMsg
			if err := json.Unmarshal(msg, &em); err != nil {
				continue
			}
			logger.Warn("server error", "code", em.Code, "message", em.Message)
			if em.Seq != 0 && em.Seq == b.seq {
				b.inflight = false
				b.act()
			}
		}
	}
}

type bot struct {
	conn   *websocket.Conn
	logger *log.Logger
	rng    *rand.Rand

	actions  []string
	seq      uint64
	inflight bool

	episodes int
	played   int
	epReward float64
	total    float64
	unlocked map[string]bool
	finished bool
}

func (b *bot) handleWelcome(w *protocol.WelcomeMsg) {
	b.actions = w.Actions
	b.logger.Info("connected",
		"session", w.SessionID,
		"ruleset", w.Ruleset.Name,
		"seed", w.WorldParams.Seed,
		"time_mode", w.WorldParams.TimeMode,
		"actions", len(w.Actions))
	b.act()
}

// handleObs reports true once the run is over and the close message is
// on the wire.
func (b *bot) handleObs(obs *protocol.ObsMsg) bool {
	if obs.Seq != 0 && obs.Seq == b.seq {
		b.inflight = false
	}
	b.epReward += obs.Reward
	for _, name := range obs.NewlyUnlocked {
		if !b.unlocked[name] {
			b.unlocked[name] = true
			b.logger.Info("unlocked", "achievement", name, "step", obs.Step)
		}
	}

	if obs.Done {
		b.played++
		b.total += b.epReward
		b.logger.Info("episode done",
			"episode", obs.Episode,
			"steps", obs.Step,
			"reward", b.epReward,
			"reason", obs.DoneReason)
		b.epReward = 0
		if b.played >= b.episodes {
			b.logger.Info("run complete",
				"episodes", b.played,
				"total_reward", b.total,
				"unlocked", len(b.unlocked))
			b.finished = true
			_ = b.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
				time.Now().Add(time.Second))
			return true
		}
		b.seq++
		b.inflight = true
		_ = b.conn.WriteJSON(protocol.ResetMsg{
			Type:            protocol.TypeReset,
			ProtocolVersion: protocol.Version,
			Seq:             b.seq,
		})
		return false
	}

	// Unsolicited ticks arrive with seq 0 on real-time sessions; only
	// queue another action when nothing of ours is pending.
	if !b.inflight {
		b.act()
	}
	return false
}

func (b *bot) act() {
	if len(b.actions) == 0 {
		return
	}
	b.seq++
	b.inflight = true
	_ = b.conn.WriteJSON(protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Seq:             b.seq,
		Action:          b.pick(),
	})
}

// pick draws an action name. Interaction and movement dominate so the
// bot actually reaches trees and water; everything else keeps a small
// chance so crafting comes up over a few hundred steps.
func (b *bot) pick() string {
	total := 0
	weights := make([]int, len(b.actions))
	for i, name := range b.actions {
		w := 1
		switch {
		case name == "noop":
			w = 0
		case name == "do":
			w = 8
		case strings.HasPrefix(name, "move_"):
			w = 6
		}
		weights[i] = w
		total += w
	}
	if total == 0 {
		return b.actions[0]
	}
	n := b.rng.Intn(total)
	for i, w := range weights {
		if n < w {
			return b.actions[i]
		}
		n -= w
	}
	return b.actions[len(b.actions)-1]
}
