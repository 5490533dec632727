package mcp

import (
	"fmt"
	"testing"
	"time"
)

func TestReplayGuardRejectsRepeat(t *testing.T) {
	g := newReplayGuard(time.Minute)
	now := time.Now()

	if !g.allow("agent-1", "sig-a", now) {
		t.Fatal("first sighting must pass")
	}
	if g.allow("agent-1", "sig-a", now.Add(time.Second)) {
		t.Fatal("a repeat inside the TTL must be rejected")
	}
	if !g.allow("agent-2", "sig-a", now.Add(time.Second)) {
		t.Fatal("the same signature under another key is a different request")
	}
	if !g.allow("agent-1", "sig-a", now.Add(2*time.Minute)) {
		t.Fatal("an expired entry is fresh again")
	}
}

func TestReplayGuardEmptySignature(t *testing.T) {
	g := newReplayGuard(time.Minute)
	now := time.Now()

	if !g.allow("agent-1", "", now) || !g.allow("agent-1", "", now) {
		t.Fatal("empty signatures always pass")
	}
	var nilGuard *replayGuard
	if !nilGuard.allow("agent-1", "sig", now) {
		t.Fatal("a nil guard always passes")
	}
}

func TestReplayGuardPrunesExpired(t *testing.T) {
	g := newReplayGuard(time.Minute)
	start := time.Now()
	for i := 0; i < replayPruneAbove; i++ {
		g.allow("agent", fmt.Sprintf("sig-%d", i), start)
	}

	// Everything above has expired; the next insert triggers a prune.
	later := start.Add(2 * time.Minute)
	if !g.allow("agent", "fresh", later) {
		t.Fatal("fresh signature rejected")
	}
	g.mu.Lock()
	n := len(g.seen)
	g.mu.Unlock()
	if n != 1 {
		t.Fatalf("prune left %d entries, want 1", n)
	}
}
