package session

import (
	"math"

	"gridcraft.ai/internal/sim/world"
)

// spawnDespawn culls far-away cows and zombies, then rolls for new
// arrivals around the player: zombies only in darkness, cows any time.
func (s *Session) spawnDespawn() {
	playerPos := s.world.Player().Pos

	var removals []uint64
	for _, id := range s.world.ObjectIDs() {
		o := s.world.Object(id)
		if o.Pos.Manhattan(playerPos) <= despawnDist {
			continue
		}
		switch o.Kind {
		case world.KindCow:
			if s.rng.Chance(s.cfg.CowDespawnRate) {
				removals = append(removals, id)
			}
		case world.KindZombie:
			if s.rng.Chance(s.cfg.ZombieDespawnRate) {
				removals = append(removals, id)
			}
		}
	}
	for _, id := range removals {
		s.world.RemoveObject(id)
	}

	if s.daylight < zombieNightMax && s.rng.Chance(s.cfg.ZombieSpawnRate*0.01) {
		pos := ringPos(s, playerPos, 15, 10)
		if s.world.IsWalkable(pos) {
			s.world.AddObject(world.Object{Kind: world.KindZombie, Pos: pos, Health: s.cfg.ZombieHealth})
		}
	}
	if s.rng.Chance(s.cfg.CowSpawnRate * 0.1) {
		pos := ringPos(s, playerPos, 10, 15)
		if s.world.IsWalkable(pos) {
			s.world.AddObject(world.Object{Kind: world.KindCow, Pos: pos, Health: s.cfg.CowHealth})
		}
	}
}

// ringPos draws a point at a random angle, between base and base+spread
// cells out from the center.
func ringPos(s *Session, center world.Pos, base, spread float64) world.Pos {
	angle := s.rng.Float64() * 2 * math.Pi
	dist := base + s.rng.Float64()*spread
	return world.Pos{
		X: center.X + int(math.Cos(angle)*dist),
		Y: center.Y + int(math.Sin(angle)*dist),
	}
}
