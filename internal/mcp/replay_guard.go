package mcp

import (
	"sync"
	"time"
)

const (
	replayTTL        = 10 * time.Minute
	replayPruneAbove = 4096
	replayHardCap    = 65536
)

// replayGuard rejects a signature it has already accepted inside the
// TTL. Nonce-bound signatures differ per request, so a repeat means a
// captured frame is being replayed.
type replayGuard struct {
	ttl time.Duration

	mu        sync.Mutex
	seen      map[string]time.Time
	lastPrune time.Time
}

// newReplayGuard builds a guard; ttl <= 0 selects the default.
func newReplayGuard(ttl time.Duration) *replayGuard {
	if ttl <= 0 {
		ttl = replayTTL
	}
	return &replayGuard{ttl: ttl, seen: map[string]time.Time{}}
}

// allow records key|sig and reports whether it was fresh. A nil guard
// or empty signature always passes; unauthenticated deployments have
// nothing to replay.
func (g *replayGuard) allow(key, sig string, now time.Time) bool {
	if g == nil || sig == "" {
		return true
	}
	k := key + "|" + sig

	g.mu.Lock()
	defer g.mu.Unlock()
	if at, ok := g.seen[k]; ok && now.Sub(at) < g.ttl {
		return false
	}
	g.pruneLocked(now)
	g.seen[k] = now
	return true
}

// pruneLocked drops expired entries once the map grows or enough time
// passes. Past the hard cap the whole map resets, trading replay
// protection for bounded memory.
func (g *replayGuard) pruneLocked(now time.Time) {
	if len(g.seen) >= replayHardCap {
		g.seen = map[string]time.Time{}
		g.lastPrune = now
		return
	}
	if len(g.seen) < replayPruneAbove && now.Sub(g.lastPrune) < g.ttl/2 {
		return
	}
	for k, at := range g.seen {
		if now.Sub(at) >= g.ttl {
			delete(g.seen, k)
		}
	}
	g.lastPrune = now
}
