package session

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// StateDigest hashes everything that determines future behavior: the
// world grid and arena, the player, the achievement counters, the tick
// counters and the random stream position. Two sessions agree on their
// digests after every tick exactly when they are interchangeable.
func (s *Session) StateDigest() string {
	h := sha256.New()
	le := binary.LittleEndian
	var buf [8]byte

	wi := func(v int) {
		le.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	wu := func(v uint64) {
		le.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	wf := func(v float64) { wu(math.Float64bits(v)) }
	ws := func(v string) {
		wi(len(v))
		h.Write([]byte(v))
	}

	wi(s.step)
	wi(s.episode)
	wf(s.daylight)
	wu(s.rng.State())
	wu(s.worldSeed)

	p := &s.player
	wi(p.Health)
	wi(p.Food)
	wi(p.Drink)
	wi(p.Energy)
	wi(p.Facing.X)
	wi(p.Facing.Y)
	if p.Sleeping {
		wi(1)
	} else {
		wi(0)
	}
	wi(p.HungerCounter)
	wi(p.ThirstCounter)
	wi(p.FatigueCounter)
	wi(p.RecoverCounter)
	ws(p.LastDamage)
	// Items hash in ruleset order so map iteration cannot leak in.
	for _, item := range s.rs.Items {
		wi(p.Items[item])
	}
	for _, c := range s.achievements {
		wi(c)
	}

	st := s.world.ExportState()
	wi(st.Width)
	wi(st.Height)
	h.Write(st.Tiles)
	wu(st.NextID)
	wu(st.PlayerID)
	for i := range st.Objects {
		o := &st.Objects[i]
		wu(o.ID)
		wi(int(o.Kind))
		wi(o.Pos.X)
		wi(o.Pos.Y)
		wi(o.Health)
		wi(o.Cooldown)
		wi(o.Reload)
		wi(o.Dir.X)
		wi(o.Dir.Y)
		wi(o.Growth)
	}

	if s.done {
		wi(1)
	} else {
		wi(0)
	}
	ws(string(s.doneReason))

	return hex.EncodeToString(h.Sum(nil))
}
