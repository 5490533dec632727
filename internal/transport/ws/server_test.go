package ws_test

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gridcraft.ai/internal/persistence/indexdb"
	"gridcraft.ai/internal/persistence/recording"
	"gridcraft.ai/internal/protocol"
	"gridcraft.ai/internal/transport/ws"
)

type captureSink struct {
	mu   sync.Mutex
	rows []indexdb.EpisodeRow
}

func (c *captureSink) RecordEpisode(e indexdb.EpisodeRow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, e)
}

func (c *captureSink) snapshot() []indexdb.EpisodeRow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]indexdb.EpisodeRow(nil), c.rows...)
}

func dialGateway(t *testing.T, opts ws.Options) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	srv := httptest.NewServer(ws.NewServer(logger, opts).Handler())
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, srv
}

func writeMsg(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readInto(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(msg, v); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
}

func sayHello(t *testing.T, conn *websocket.Conn, hello protocol.HelloMsg) protocol.WelcomeMsg {
	t.Helper()
	hello.Type = protocol.TypeHello
	hello.ProtocolVersion = protocol.Version
	writeMsg(t, conn, hello)
	var welcome protocol.WelcomeMsg
	readInto(t, conn, &welcome)
	if welcome.Type != protocol.TypeWelcome {
		t.Fatalf("expected WELCOME, got %+v", welcome)
	}
	return welcome
}

func TestHandshakeAndActFlow(t *testing.T) {
	conn, srv := dialGateway(t, ws.Options{})
	defer srv.Close()
	defer conn.Close()

	seed := uint64(42)
	welcome := sayHello(t, conn, protocol.HelloMsg{
		AgentName: "it-agent",
		Preset:    "fast_training",
		Seed:      &seed,
	})
	if welcome.SessionID == "" {
		t.Fatalf("welcome carries no session id")
	}
	if welcome.WorldParams.Seed != 42 {
		t.Fatalf("seed = %d, want 42", welcome.WorldParams.Seed)
	}
	if welcome.WorldParams.TimeMode != "logical" {
		t.Fatalf("time mode = %q", welcome.WorldParams.TimeMode)
	}
	if welcome.WorldParams.MaxSteps != 1000 {
		t.Fatalf("max steps = %d, want 1000", welcome.WorldParams.MaxSteps)
	}
	if welcome.Ruleset.Name != "classic" || welcome.Ruleset.Actions != 17 {
		t.Fatalf("ruleset ref = %+v", welcome.Ruleset)
	}
	if len(welcome.Actions) != 17 || welcome.Actions[0] != "noop" {
		t.Fatalf("actions = %v", welcome.Actions)
	}

	var obs protocol.ObsMsg
	writeMsg(t, conn, protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version,
		Seq: 1, Action: "move_up",
	})
	readInto(t, conn, &obs)
	if obs.Type != protocol.TypeObs || obs.Seq != 1 || obs.Step != 1 {
		t.Fatalf("first obs = %+v", obs)
	}

	// Aliases resolve like in the snapshot API.
	writeMsg(t, conn, protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version,
		Seq: 2, Action: "u",
	})
	readInto(t, conn, &obs)
	if obs.Seq != 2 || obs.Step != 2 {
		t.Fatalf("alias obs = %+v", obs)
	}

	// A replayed seq is refused without stepping.
	writeMsg(t, conn, protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version,
		Seq: 2, Action: "noop",
	})
	var wsErr protocol.ErrorMsg
	readInto(t, conn, &wsErr)
	if wsErr.Type != protocol.TypeError || wsErr.Code != protocol.ErrStale || wsErr.Seq != 2 {
		t.Fatalf("stale response = %+v", wsErr)
	}
	writeMsg(t, conn, protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version,
		Seq: 3, Action: "noop",
	})
	readInto(t, conn, &obs)
	if obs.Step != 3 {
		t.Fatalf("step after stale = %d, want 3", obs.Step)
	}

	// Unknown actions answer E_BAD_REQUEST and consume nothing.
	writeMsg(t, conn, protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version,
		Seq: 4, Action: "fly",
	})
	readInto(t, conn, &wsErr)
	if wsErr.Code != protocol.ErrBadRequest {
		t.Fatalf("unknown action code = %q", wsErr.Code)
	}
	writeMsg(t, conn, protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version,
		Seq: 4, Action: "noop",
	})
	readInto(t, conn, &obs)
	if obs.Step != 4 {
		t.Fatalf("step after refused action = %d, want 4", obs.Step)
	}

	// RESET starts the next episode.
	writeMsg(t, conn, protocol.ResetMsg{
		Type: protocol.TypeReset, ProtocolVersion: protocol.Version, Seq: 5,
	})
	readInto(t, conn, &obs)
	if obs.Seq != 5 || obs.Episode != 1 || obs.Step != 0 {
		t.Fatalf("reset obs = %+v", obs)
	}
	if obs.DoneReason != "reset" {
		t.Fatalf("reset done_reason = %q", obs.DoneReason)
	}
}

func TestMalformedAndUnknownMessages(t *testing.T) {
	conn, srv := dialGateway(t, ws.Options{})
	defer srv.Close()
	defer conn.Close()

	sayHello(t, conn, protocol.HelloMsg{AgentName: "m", Preset: "fast_training"})

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var wsErr protocol.ErrorMsg
	readInto(t, conn, &wsErr)
	if wsErr.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("malformed json code = %q", wsErr.Code)
	}

	writeMsg(t, conn, map[string]any{"type": "TELEPORT", "protocol_version": protocol.Version})
	readInto(t, conn, &wsErr)
	if wsErr.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("unknown type code = %q", wsErr.Code)
	}

	// The connection survives both.
	writeMsg(t, conn, protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Action: "noop",
	})
	var obs protocol.ObsMsg
	readInto(t, conn, &obs)
	if obs.Step != 1 {
		t.Fatalf("step = %d, want 1", obs.Step)
	}
}

func TestHelloMustComeFirst(t *testing.T) {
	conn, srv := dialGateway(t, ws.Options{})
	defer srv.Close()
	defer conn.Close()

	writeMsg(t, conn, protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Action: "noop",
	})
	var wsErr protocol.ErrorMsg
	readInto(t, conn, &wsErr)
	if wsErr.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("code = %q", wsErr.Code)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("connection stayed open after refused handshake")
	}
}

func TestHelloRejectsUnknownPreset(t *testing.T) {
	conn, srv := dialGateway(t, ws.Options{})
	defer srv.Close()
	defer conn.Close()

	writeMsg(t, conn, protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version,
		AgentName: "p", Preset: "nope",
	})
	var wsErr protocol.ErrorMsg
	readInto(t, conn, &wsErr)
	if wsErr.Code != protocol.ErrBadRequest {
		t.Fatalf("code = %q", wsErr.Code)
	}
	if !strings.Contains(wsErr.Message, "nope") {
		t.Fatalf("message = %q", wsErr.Message)
	}
}

func TestEpisodeSinkAndRecording(t *testing.T) {
	sink := &captureSink{}
	dir := t.TempDir()
	conn, srv := dialGateway(t, ws.Options{RecordDir: dir, Episodes: sink})

	seed := uint64(7)
	maxSteps := 3
	welcome := sayHello(t, conn, protocol.HelloMsg{
		AgentName: "rec-agent",
		Preset:    "fast_training",
		Seed:      &seed,
		Overrides: &protocol.ConfigOverrides{MaxSteps: &maxSteps},
	})
	if welcome.WorldParams.MaxSteps != 3 {
		t.Fatalf("override lost: max steps = %d", welcome.WorldParams.MaxSteps)
	}

	var obs protocol.ObsMsg
	for i := 1; i <= 3; i++ {
		writeMsg(t, conn, protocol.ActMsg{
			Type: protocol.TypeAct, ProtocolVersion: protocol.Version,
			Seq: uint64(i), Action: "noop",
		})
		readInto(t, conn, &obs)
	}
	if !obs.Done || obs.DoneReason != "max_steps" {
		t.Fatalf("final obs = %+v", obs)
	}

	// Stepping past the end stays terminal and emits no second row.
	writeMsg(t, conn, protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version,
		Seq: 4, Action: "noop",
	})
	readInto(t, conn, &obs)
	if !obs.Done || obs.Step != 3 {
		t.Fatalf("post-done obs = %+v", obs)
	}

	// Close the connection so the handler finishes the recording.
	conn.Close()
	srv.Close()

	rows := sink.snapshot()
	if len(rows) != 1 {
		t.Fatalf("episode rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.SessionID != welcome.SessionID || row.Episode != 0 {
		t.Fatalf("row identity = %+v", row)
	}
	if row.Steps != 3 || row.DoneReason != "max_steps" || row.Seed != 7 {
		t.Fatalf("row = %+v", row)
	}
	wantPath := filepath.Join(dir, welcome.SessionID+".rec.zst")
	if row.RecordingPath != wantPath {
		t.Fatalf("recording path = %q, want %q", row.RecordingPath, wantPath)
	}

	res, err := recording.Replay(wantPath)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Steps != 3 || !res.Done || res.DoneReason != "max_steps" {
		t.Fatalf("replay result = %+v", res)
	}
}

func TestRealTimeSessionTicksOnItsOwn(t *testing.T) {
	conn, srv := dialGateway(t, ws.Options{})
	defer srv.Close()
	defer conn.Close()

	welcome := sayHello(t, conn, protocol.HelloMsg{AgentName: "h", Preset: "human_play"})
	if welcome.WorldParams.TimeMode != "real_time" || welcome.WorldParams.TicksPerSecond != 10 {
		t.Fatalf("world params = %+v", welcome.WorldParams)
	}

	var first, second protocol.ObsMsg
	readInto(t, conn, &first)
	readInto(t, conn, &second)
	if first.Type != protocol.TypeObs || second.Type != protocol.TypeObs {
		t.Fatalf("expected unsolicited OBS, got %+v / %+v", first, second)
	}
	if first.Seq != 0 || second.Seq != 0 {
		t.Fatalf("clock obs must not carry a seq: %d / %d", first.Seq, second.Seq)
	}
	if second.Step <= first.Step {
		t.Fatalf("steps did not advance: %d then %d", first.Step, second.Step)
	}
}
