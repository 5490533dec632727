package session

import (
	"testing"

	"gridcraft.ai/internal/sim/ruleset"
)

func newRealTime(t *testing.T, tps float64) *Session {
	t.Helper()
	cfg := scenarioConfig(555)
	cfg.Time = TimeMode{Kind: TimeRealTime, TicksPerSecond: tps}
	s, err := New(cfg, ruleset.Classic())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestAdvanceAccumulatesFractions(t *testing.T) {
	s := newRealTime(t, 10) // one tick per 100ms

	if got := s.Advance(0.05); len(got) != 0 {
		t.Fatalf("ran %d ticks on half a tick of time", len(got))
	}
	if got := s.Advance(0.06); len(got) != 1 {
		t.Fatalf("ran %d ticks, want the accumulated one", len(got))
	}
	if s.StepCount() != 1 {
		t.Fatalf("step count %d", s.StepCount())
	}
}

func TestAdvanceRunsWholeBacklog(t *testing.T) {
	s := newRealTime(t, 10)
	if got := s.Advance(0.35); len(got) != 3 {
		t.Fatalf("ran %d ticks for 350ms", len(got))
	}
}

func TestAdvanceDropsExcessBacklog(t *testing.T) {
	s := newRealTime(t, 10)
	// Three seconds owes 30 ticks; the cap runs 10 and drops the rest.
	if got := s.Advance(3.0); len(got) != 10 {
		t.Fatalf("ran %d ticks, want the catch-up cap", len(got))
	}
	if got := s.Advance(0.05); len(got) != 0 {
		t.Fatalf("backlog survived the drop: %d ticks", len(got))
	}
}

func TestAdvanceReplaysLatchedAction(t *testing.T) {
	s := newRealTime(t, 10)
	carve(t, s, 4)
	start := s.World().Player().Pos

	a, err := ActionByName(s.Ruleset(), "move_right")
	if err != nil {
		t.Fatal(err)
	}
	s.SetAction(a)
	s.Advance(0.25)

	got := s.World().Player().Pos
	if got.X != start.X+2 || got.Y != start.Y {
		t.Fatalf("player at %+v after two latched moves from %+v", got, start)
	}
}

func TestPauseSwallowsTime(t *testing.T) {
	s := newRealTime(t, 10)
	s.SetPaused(true)
	if got := s.Advance(5); got != nil {
		t.Fatalf("paused session ran %d ticks", len(got))
	}
	s.SetPaused(false)
	// Unpausing clears anything that piled up.
	if got := s.Advance(0.05); len(got) != 0 {
		t.Fatalf("time leaked through the pause: %d ticks", len(got))
	}
	if got := s.Advance(0.1); len(got) != 1 {
		t.Fatalf("clock dead after unpause: %d ticks", len(got))
	}
}

func TestLogicalSessionsIgnoreAdvance(t *testing.T) {
	s := newScenario(t, nil)
	if got := s.Advance(10); got != nil {
		t.Fatalf("logical session ran %d ticks from Advance", len(got))
	}
	if s.StepCount() != 0 {
		t.Fatalf("step count %d", s.StepCount())
	}
}

func TestAdvanceStopsAtEpisodeEnd(t *testing.T) {
	cfg := scenarioConfig(555)
	cfg.Time = TimeMode{Kind: TimeRealTime, TicksPerSecond: 10}
	maxSteps := 3
	cfg.MaxSteps = &maxSteps
	s, err := New(cfg, ruleset.Classic())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := s.Advance(1.0)
	if len(got) != 3 {
		t.Fatalf("ran %d ticks past the episode end", len(got))
	}
	last := got[len(got)-1]
	if !last.Done || last.DoneReason != DoneMaxSteps {
		t.Fatalf("final tick not terminal: %+v", last)
	}
	if s.Advance(1.0) != nil {
		t.Fatal("done session kept ticking")
	}
}

func TestManualStepAllowedByMode(t *testing.T) {
	logical := newScenario(t, nil)
	if !logical.ManualStepAllowed() {
		t.Fatal("logical mode must allow manual steps")
	}

	rt := newRealTime(t, 10)
	if rt.ManualStepAllowed() {
		t.Fatal("real time mode allows manual steps without the flag")
	}

	cfg := scenarioConfig(1)
	cfg.Time = TimeMode{Kind: TimeHybrid, TicksPerSecond: 10}
	hybrid, err := New(cfg, ruleset.Classic())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !hybrid.ManualStepAllowed() {
		t.Fatal("hybrid mode must allow manual steps")
	}
}
