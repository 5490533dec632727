package session

import (
	"fmt"

	"gridcraft.ai/internal/sim/rng"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/world"
)

// Snapshot is the complete serializable session state. Restoring it
// under the same ruleset yields a session whose future is identical to
// the original's.
type Snapshot struct {
	Config        Config
	RulesetName   string
	RulesetDigest string

	MasterSeed uint64
	WorldSeed  uint64
	RNGState   uint64

	Step     int
	Episode  int
	Daylight float64

	Player       Player
	Achievements []int

	World world.State

	Done       bool
	DoneReason DoneReason
	LastAction Action
}

// Snapshot captures the session mid-flight.
func (s *Session) Snapshot() Snapshot {
	ach := make([]int, len(s.achievements))
	copy(ach, s.achievements)
	pl := s.player
	pl.Items = make(map[string]int, len(s.player.Items))
	for k, v := range s.player.Items {
		pl.Items[k] = v
	}
	return Snapshot{
		Config:        s.cfg,
		RulesetName:   s.rs.Name,
		RulesetDigest: s.rs.Digest,
		MasterSeed:    s.masterSeed,
		WorldSeed:     s.worldSeed,
		RNGState:      s.rng.State(),
		Step:          s.step,
		Episode:       s.episode,
		Daylight:      s.daylight,
		Player:        pl,
		Achievements:  ach,
		World:         s.world.ExportState(),
		Done:          s.done,
		DoneReason:    s.doneReason,
		LastAction:    s.lastAction,
	}
}

// Restore rebuilds a session from a snapshot. The ruleset must be the
// same profile the snapshot was taken under; the digest makes that
// check exact.
func Restore(snap Snapshot, rs *ruleset.Ruleset) (*Session, error) {
	if snap.RulesetDigest != rs.Digest {
		return nil, fmt.Errorf("snapshot took ruleset %s (%.12s), have %s (%.12s)",
			snap.RulesetName, snap.RulesetDigest, rs.Name, rs.Digest)
	}
	if err := snap.Config.validate(); err != nil {
		return nil, fmt.Errorf("snapshot config: %w", err)
	}
	if len(snap.Achievements) != len(rs.Achievements) {
		return nil, fmt.Errorf("snapshot has %d achievement counters, ruleset has %d",
			len(snap.Achievements), len(rs.Achievements))
	}
	w, err := world.FromState(snap.World, rs)
	if err != nil {
		return nil, fmt.Errorf("snapshot world: %w", err)
	}

	s := &Session{
		cfg:        snap.Config,
		world:      w,
		rng:        rng.New(0),
		masterSeed: snap.MasterSeed,
		worldSeed:  snap.WorldSeed,
		step:       snap.Step,
		episode:    snap.Episode,
		daylight:   snap.Daylight,
		done:       snap.Done,
		doneReason: snap.DoneReason,
		lastAction: snap.LastAction,
	}
	s.bindRuleset(rs)
	s.rng.Restore(snap.RNGState)
	s.player = snap.Player
	s.player.cap = rs.InventoryCap
	if s.player.Items == nil {
		s.player.Items = map[string]int{}
	}
	s.achievements = make([]int, len(snap.Achievements))
	copy(s.achievements, snap.Achievements)
	s.prevAch = make([]int, len(snap.Achievements))
	return s, nil
}
