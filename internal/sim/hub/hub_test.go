package hub

import (
	"strings"
	"testing"

	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
	"gridcraft.ai/internal/sim/world"
)

// quietConfig keeps creatures and vitals out of the way so map and
// hint assertions see exactly what the test placed.
func quietConfig(seed uint64) session.Config {
	c := session.DefaultConfig()
	c.Seed = &seed
	c.CowDensity = 0
	c.ZombieDensity = 0
	c.SkeletonDensity = 0
	c.ZombieSpawnRate = 0
	c.CowSpawnRate = 0
	c.DayNightCycle = false
	c.HungerEnabled = false
	c.ThirstEnabled = false
	c.FatigueEnabled = false
	return c
}

func newHub(t *testing.T, mutate func(*session.Config)) *Hub {
	t.Helper()
	cfg := quietConfig(777)
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, ruleset.Classic())
}

func process(t *testing.T, h *Hub, req SnapshotRequest) *SnapshotResponse {
	t.Helper()
	resp, err := h.Process(req)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	return resp
}

func TestFreshSessionResponse(t *testing.T) {
	h := newHub(t, nil)
	resp := process(t, h, SnapshotRequest{})

	if resp.SessionID == "" {
		t.Fatal("no session id assigned")
	}
	if resp.Step != 0 || resp.Episode != 0 || resp.Done {
		t.Fatalf("fresh session: step %d episode %d done %v", resp.Step, resp.Episode, resp.Done)
	}
	if resp.Stats.Health != 9 || resp.Stats.Energy != 9 {
		t.Fatalf("fresh vitals %+v", resp.Stats)
	}

	if len(resp.MapLines) != 9 {
		t.Fatalf("map has %d rows", len(resp.MapLines))
	}
	for i, line := range resp.MapLines {
		if len([]rune(line)) != 9 {
			t.Fatalf("map row %d is %d wide: %q", i, len([]rune(line)), line)
		}
	}
	if []rune(resp.MapLines[4])[4] != '@' {
		t.Fatalf("player not centered: %q", resp.MapLines[4])
	}

	if len(resp.Inventory) != 12 {
		t.Fatalf("inventory lists %d items", len(resp.Inventory))
	}
	for item, n := range resp.Inventory {
		if n != 0 {
			t.Fatalf("fresh inventory holds %d %s", n, item)
		}
	}

	if len(resp.AvailableActions) != 16 {
		t.Fatalf("%d available actions", len(resp.AvailableActions))
	}
	for _, a := range resp.AvailableActions {
		if a == "noop" {
			t.Fatal("noop offered as an available action")
		}
	}

	if resp.MapLegend[0] != (LegendEntry{Label: "@", Value: "Player"}) {
		t.Fatalf("legend starts with %+v", resp.MapLegend[0])
	}
	last := resp.MapLegend[len(resp.MapLegend)-1]
	if last != (LegendEntry{Label: "M", Value: "Mob"}) {
		t.Fatalf("legend ends with %+v", last)
	}
	if resp.MapLegend[1].Value != "Grass" {
		t.Fatalf("material legend not capitalized: %+v", resp.MapLegend[1])
	}
}

func TestActionsAdvanceSession(t *testing.T) {
	h := newHub(t, nil)
	resp := process(t, h, SnapshotRequest{
		Actions: []string{"move_right", "move_right", "move_right", "move_right", "do"},
	})
	if resp.Step != 5 {
		t.Fatalf("step %d after 5 actions", resp.Step)
	}
	if resp.Done {
		t.Fatal("short walk ended the episode")
	}
}

func TestResumeSession(t *testing.T) {
	h := newHub(t, nil)
	first := process(t, h, SnapshotRequest{Actions: []string{"move_right"}})

	second := process(t, h, SnapshotRequest{
		SessionID: first.SessionID,
		Actions:   []string{"r", "r"},
	})
	if second.SessionID != first.SessionID {
		t.Fatalf("resume changed id: %s -> %s", first.SessionID, second.SessionID)
	}
	if second.Step != 3 {
		t.Fatalf("step %d after 1+2 actions", second.Step)
	}
	if h.Len() != 1 {
		t.Fatalf("hub holds %d sessions", h.Len())
	}
}

func TestUnknownSessionStartsFresh(t *testing.T) {
	h := newHub(t, nil)
	resp := process(t, h, SnapshotRequest{
		SessionID: "gone",
		Actions:   []string{"move_left", "move_left"},
	})
	if resp.SessionID == "gone" || resp.SessionID == "" {
		t.Fatalf("expected a fresh id, got %q", resp.SessionID)
	}
	if resp.Step != 2 {
		t.Fatalf("fresh session stepped to %d", resp.Step)
	}
}

func TestUnknownActionFailsBeforeStepping(t *testing.T) {
	h := newHub(t, nil)
	_, err := h.Process(SnapshotRequest{Actions: []string{"move_left", "fly"}})
	if err == nil || !strings.Contains(err.Error(), "fly") {
		t.Fatalf("want unknown action error, got %v", err)
	}
	if h.Len() != 0 {
		t.Fatal("failed request left a session behind")
	}
}

func TestViewSizeOverride(t *testing.T) {
	h := newHub(t, nil)
	size := 5
	resp := process(t, h, SnapshotRequest{ViewSize: &size})
	if len(resp.MapLines) != 5 || len([]rune(resp.MapLines[0])) != 5 {
		t.Fatalf("view size override ignored: %d rows", len(resp.MapLines))
	}
}

func TestStopsSteppingAtEpisodeEnd(t *testing.T) {
	h := newHub(t, func(c *session.Config) {
		maxSteps := 3
		c.MaxSteps = &maxSteps
	})
	resp := process(t, h, SnapshotRequest{
		Actions: []string{"noop", "noop", "noop", "noop", "noop", "noop"},
	})
	if resp.Step != 3 {
		t.Fatalf("stepped past the end: %d", resp.Step)
	}
	if !resp.Done || resp.DoneReason != "max_steps" {
		t.Fatalf("done %v reason %q", resp.Done, resp.DoneReason)
	}
}

func TestCreatureRendersAsMob(t *testing.T) {
	h := newHub(t, nil)
	resp := process(t, h, SnapshotRequest{})

	s, ok := h.Session(resp.SessionID)
	if !ok {
		t.Fatal("session not registered")
	}
	p := s.World().Player().Pos
	s.World().AddObject(world.Object{
		Kind:   world.KindZombie,
		Pos:    world.Pos{X: p.X + 1, Y: p.Y},
		Health: 5,
	})

	resp = process(t, h, SnapshotRequest{SessionID: resp.SessionID})
	center := []rune(resp.MapLines[4])
	if center[4] != '@' || center[5] != 'M' {
		t.Fatalf("center row %q, want @ then M", resp.MapLines[4])
	}

	found := false
	for _, e := range resp.Entities {
		if e.Kind == "zombie" && e.Health == 5 {
			found = true
		}
	}
	if !found {
		t.Fatalf("zombie missing from entities: %+v", resp.Entities)
	}
}

func TestHintsFollowProgress(t *testing.T) {
	h := newHub(t, nil)
	resp := process(t, h, SnapshotRequest{})
	if len(resp.Hints) == 0 || !strings.Contains(resp.Hints[0], "Collect wood") {
		t.Fatalf("opening hint missing: %v", resp.Hints)
	}

	s, _ := h.Session(resp.SessionID)
	s.PlayerState().AddItem("wood", 2)
	resp = process(t, h, SnapshotRequest{SessionID: resp.SessionID})
	if len(resp.Hints) == 0 || !strings.Contains(resp.Hints[0], "place_table") {
		t.Fatalf("table hint missing: %v", resp.Hints)
	}
}

func TestRewardAndUnlocksAccumulate(t *testing.T) {
	h := newHub(t, nil)
	resp := process(t, h, SnapshotRequest{})

	// Put a tree straight ahead so "do" collects wood on demand.
	s, _ := h.Session(resp.SessionID)
	p := s.World().Player().Pos
	front := world.Pos{X: p.X, Y: p.Y + 1}
	s.World().SetMaterial(front, s.Ruleset().MustMaterial("tree"))

	resp = process(t, h, SnapshotRequest{
		SessionID: resp.SessionID,
		Actions:   []string{"do"},
	})
	if resp.Reward < 1 {
		t.Fatalf("reward %v after first collect_wood", resp.Reward)
	}
	joined := strings.Join(resp.NewlyUnlocked, ",")
	if !strings.Contains(joined, "collect_wood") {
		t.Fatalf("newly unlocked %v", resp.NewlyUnlocked)
	}
	if len(resp.Achievements) != 1 || resp.Achievements[0] != "collect_wood" {
		t.Fatalf("achievement list %v", resp.Achievements)
	}
	if resp.Inventory["wood"] != 1 {
		t.Fatalf("wood count %d", resp.Inventory["wood"])
	}
}

func TestResolveActionAliases(t *testing.T) {
	rs := ruleset.Classic()
	cases := []struct {
		in   string
		want string
	}{
		{"noop", "noop"},
		{"wait", "noop"},
		{"l", "move_left"},
		{"LEFT", "move_left"},
		{" move_left ", "move_left"},
		{"u", "move_up"},
		{"d", "move_down"},
		{"interact", "do"},
		{"table", "place_table"},
		{"stone", "place_stone"},
		{"pick", "make_wood_pickaxe"},
		{"spick", "make_stone_pickaxe"},
		{"isword", "make_iron_sword"},
		{"iron_sword", "make_iron_sword"},
	}
	for _, c := range cases {
		a, err := ResolveAction(rs, c.in)
		if err != nil {
			t.Fatalf("resolve %q: %v", c.in, err)
		}
		if got := session.ActionName(rs, a); got != c.want {
			t.Errorf("resolve %q = %s, want %s", c.in, got, c.want)
		}
	}

	if _, err := ResolveAction(rs, "fly"); err == nil {
		t.Fatal("resolved a nonsense action")
	}
}

func TestRemoveAndList(t *testing.T) {
	h := newHub(t, nil)
	a := process(t, h, SnapshotRequest{})
	b := process(t, h, SnapshotRequest{})

	ids := h.SessionIDs()
	if len(ids) != 2 {
		t.Fatalf("listed %d ids", len(ids))
	}
	if !h.Remove(a.SessionID) {
		t.Fatal("remove reported missing session")
	}
	if h.Remove(a.SessionID) {
		t.Fatal("second remove reported success")
	}
	if h.Len() != 1 {
		t.Fatalf("hub holds %d sessions", h.Len())
	}
	if _, ok := h.Session(b.SessionID); !ok {
		t.Fatal("surviving session lost")
	}
}
