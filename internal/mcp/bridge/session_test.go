package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"gridcraft.ai/internal/protocol"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

func TestHandleWelcomeResolvesLocalProfile(t *testing.T) {
	rs := ruleset.Classic()
	s := newSession("agent-1", testConfig(), nil)

	msg, err := json.Marshal(protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "abc-123",
		AgentName:       "agent-1",
		Ruleset: protocol.RulesetRef{
			Name:   rs.Name,
			Digest: rs.Digest,
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s.handleWelcome(msg)

	st := s.Status()
	if !st.Connected || st.SessionID != "abc-123" || st.Ruleset != "classic" {
		t.Fatalf("status after welcome: %+v", st)
	}
	if st.LastError != "" {
		t.Fatalf("unexpected error in status: %s", st.LastError)
	}
	cat, err := s.GetCatalog(context.Background(), "actions")
	if err != nil {
		t.Fatalf("catalog after welcome: %v", err)
	}
	if cat.Digest != rs.Digest {
		t.Fatalf("catalog digest %q, want %q", cat.Digest, rs.Digest)
	}
}

func TestHandleWelcomeDigestMismatch(t *testing.T) {
	s := newSession("agent-1", testConfig(), nil)

	msg, err := json.Marshal(protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "abc-123",
		Ruleset:         protocol.RulesetRef{Name: "classic", Digest: "deadbeef"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s.handleWelcome(msg)

	st := s.Status()
	if !st.Connected {
		t.Fatal("a digest mismatch must not kill the session")
	}
	if st.LastError == "" {
		t.Fatal("a digest mismatch should surface in status")
	}
	if _, err := s.GetCatalog(context.Background(), "actions"); err == nil {
		t.Fatal("catalogs should be unavailable on a digest mismatch")
	}
}

func TestAckForResolvesOnEcho(t *testing.T) {
	s := newSession("agent-1", testConfig(), nil)

	obs, err := json.Marshal(map[string]any{
		"type":             protocol.TypeObs,
		"protocol_version": protocol.Version,
		"seq":              3,
		"step":             7,
		"episode":          1,
		"reward":           0.5,
		"newly_unlocked":   []string{"collect_wood"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s.handleObs(obs)

	o, settled, err := s.ackFor(3)
	if !settled || err != nil {
		t.Fatalf("ackFor(3): settled=%v err=%v", settled, err)
	}
	if o.Step != 7 || o.Reward != 0.5 || len(o.NewlyUnlocked) != 1 {
		t.Fatalf("echo payload: %+v", o)
	}
	if _, settled, _ := s.ackFor(4); settled {
		t.Fatal("seq 4 has no echo yet")
	}
}

func TestAckForResolvesOnSeqError(t *testing.T) {
	s := newSession("agent-1", testConfig(), nil)

	em, err := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Seq:             2,
		Code:            protocol.ErrBadRequest,
		Message:         `unknown action "fly"`,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s.handleError(em)

	_, settled, ackErr := s.ackFor(2)
	if !settled || ackErr == nil {
		t.Fatalf("a seq error must settle the wait: settled=%v err=%v", settled, ackErr)
	}
	if st := s.Status(); st.LastError != "" {
		t.Fatalf("seq-scoped errors must stay out of status, got %q", st.LastError)
	}
}

func TestUnsolicitedErrorLandsInStatus(t *testing.T) {
	s := newSession("agent-1", testConfig(), nil)

	em, err := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            protocol.ErrProtoBadRequest,
		Message:         "malformed message",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s.handleError(em)

	if st := s.Status(); st.LastError == "" {
		t.Fatal("an unsolicited error should surface in status")
	}
}

func TestObsOrderingAcrossReset(t *testing.T) {
	s := newSession("agent-1", testConfig(), nil)

	first, _ := json.Marshal(map[string]any{
		"type": protocol.TypeObs, "protocol_version": protocol.Version,
		"step": 42, "episode": 1,
	})
	s.handleObs(first)
	if _, _, _, ok := s.obsNewerThan(42, 1); ok {
		t.Fatal("the same frame is not newer")
	}

	// After a reset the step counter winds back while the episode
	// moves on.
	second, _ := json.Marshal(map[string]any{
		"type": protocol.TypeObs, "protocol_version": protocol.Version,
		"step": 0, "episode": 2,
	})
	s.handleObs(second)
	_, step, ep, ok := s.obsNewerThan(42, 1)
	if !ok || step != 0 || ep != 2 {
		t.Fatalf("episode 2 step 0 must rank above episode 1 step 42 (ok=%v step=%d episode=%d)", ok, step, ep)
	}
}

func TestGetObsBeforeFirstFrame(t *testing.T) {
	s := newSession("agent-1", testConfig(), nil)

	res, err := s.GetObs(context.Background(), GetObsOpts{})
	if err != nil {
		t.Fatalf("GetObs: %v", err)
	}
	if res.Obs != nil {
		t.Fatalf("no frame has arrived yet, got %s", res.Obs)
	}
	if _, err := s.GetObs(context.Background(), GetObsOpts{Mode: "huge"}); err == nil {
		t.Fatal("unknown mode accepted")
	}
}

func TestSummarizeObsStripsTiles(t *testing.T) {
	seed := uint64(9)
	cfg := session.DefaultConfig()
	cfg.Seed = &seed
	sess, err := session.New(cfg, ruleset.Classic())
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	res := sess.Step(session.Noop)

	full, err := json.Marshal(protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Seq:             1,
		Step:            res.State.Step,
		Episode:         res.State.Episode,
		Reward:          res.Reward,
		State:           res.State,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	sum, err := summarizeObs(full)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(sum) >= len(full) {
		t.Fatalf("summary (%d bytes) should be smaller than the full frame (%d bytes)", len(sum), len(full))
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(sum, &out); err != nil {
		t.Fatalf("parse summary: %v", err)
	}
	var st map[string]json.RawMessage
	if err := json.Unmarshal(out["state"], &st); err != nil {
		t.Fatalf("parse state: %v", err)
	}
	if _, ok := st["view"]; ok {
		t.Fatal("summary must drop the tile view")
	}
	if _, ok := st["health"]; !ok {
		t.Fatal("summary must keep the vitals")
	}
}

func TestBuildCatalogs(t *testing.T) {
	rs := ruleset.Classic()
	cats := buildCatalogs(rs)
	for _, name := range catalogNames {
		if _, ok := cats[name]; !ok {
			t.Fatalf("missing catalog %s", name)
		}
	}

	var actions []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(cats["actions"], &actions); err != nil {
		t.Fatalf("actions: %v", err)
	}
	if len(actions) != rs.ActionCount() {
		t.Fatalf("got %d actions, profile has %d", len(actions), rs.ActionCount())
	}
	if actions[0].ID != 0 || actions[0].Name != "noop" {
		t.Fatalf("action 0: %+v", actions[0])
	}

	var recipes []struct {
		Action  string         `json:"action"`
		Product string         `json:"product"`
		Cost    map[string]int `json:"cost"`
	}
	if err := json.Unmarshal(cats["recipes"], &recipes); err != nil {
		t.Fatalf("recipes: %v", err)
	}
	if len(recipes) == 0 {
		t.Fatal("classic has recipes")
	}
	for _, r := range recipes {
		if r.Action == "" || r.Product == "" || len(r.Cost) == 0 {
			t.Fatalf("incomplete recipe: %+v", r)
		}
	}

	if got := buildCatalogs(nil); len(got) != 0 {
		t.Fatalf("nil profile should yield no catalogs, got %d", len(got))
	}
}
