package session

import (
	"gridcraft.ai/internal/sim/mathx"
	"gridcraft.ai/internal/sim/world"
)

const (
	zombieNoticeDist  = 8
	zombieChaseChance = 0.9
	zombieLongAxis    = 0.8
	zombieDamageAwake = 2
	zombieDamageSleep = 7
	zombieCooldown    = 5

	skeletonRetreatDist  = 3
	skeletonShootDist    = 5
	skeletonChaseDist    = 8
	skeletonLongAxis     = 0.6
	skeletonShootChance  = 0.5
	skeletonChaseChance  = 0.3
	skeletonWanderChance = 0.2
	skeletonReload       = 4

	cowIdleChance = 0.5

	arrowDamage = 2

	despawnDist    = 30
	zombieNightMax = 0.5
)

// processCreatures runs every cow, zombie and skeleton in id order.
// Player position and sleep state are sampled once at the top of the
// pass, so all creatures this tick see the same picture.
func (s *Session) processCreatures() {
	playerPos := s.world.Player().Pos
	playerAsleep := s.player.Sleeping
	for _, id := range s.world.KindIDs(world.KindCow, world.KindZombie, world.KindSkeleton) {
		o := s.world.Object(id)
		if o == nil {
			continue
		}
		switch o.Kind {
		case world.KindCow:
			s.cowTurn(o)
		case world.KindZombie:
			s.zombieTurn(o, playerPos, playerAsleep)
		case world.KindSkeleton:
			s.skeletonTurn(o, playerPos)
		}
	}
}

// cowTurn: half the time the cow stands still, otherwise it tries one
// random step.
func (s *Session) cowTurn(o *world.Object) {
	if s.rng.Chance(cowIdleChance) {
		return
	}
	next := o.Pos.Add(world.Dirs4[s.rng.Intn(4)])
	if s.world.IsWalkable(next) {
		s.world.MoveObject(o.ID, next)
	}
}

// zombieTurn chases a noticed player, then bites if adjacent. The chase
// roll only happens inside notice range, which keeps distant zombies
// cheap and the draw count stable for replay.
func (s *Session) zombieTurn(o *world.Object, playerPos world.Pos, playerAsleep bool) {
	if o.Pos.Manhattan(playerPos) <= zombieNoticeDist && s.rng.Chance(zombieChaseChance) {
		d := towardDirection(o.Pos, playerPos, s.rng.Chance(zombieLongAxis))
		next := o.Pos.Add(d)
		if s.world.IsWalkable(next) {
			s.world.MoveObject(o.ID, next)
		}
	} else {
		next := o.Pos.Add(world.Dirs4[s.rng.Intn(4)])
		if s.world.IsWalkable(next) {
			s.world.MoveObject(o.ID, next)
		}
	}
	if o.Pos.Manhattan(playerPos) <= 1 {
		if o.Cooldown > 0 {
			// The bite cooldown only runs down while in reach.
			o.Cooldown--
			return
		}
		base := zombieDamageAwake
		if playerAsleep {
			base = zombieDamageSleep
		}
		s.player.ApplyDamage("zombie", int(float64(base)*s.cfg.ZombieDamageMult))
		if playerAsleep {
			s.wakeUp()
		}
		o.Cooldown = zombieCooldown
	}
}

// skeletonTurn keeps its distance: back off when the player is close,
// shoot at mid range once the bow is reloaded, drift closer or wander
// otherwise. Distance is judged from where the skeleton started the
// turn.
func (s *Session) skeletonTurn(o *world.Object, playerPos world.Pos) {
	if o.Reload > 0 {
		o.Reload--
	}
	dist := o.Pos.Manhattan(playerPos)
	if dist <= skeletonRetreatDist {
		d := towardDirection(o.Pos, playerPos, s.rng.Chance(skeletonLongAxis))
		next := o.Pos.Add(world.Pos{X: -d.X, Y: -d.Y})
		if s.world.IsWalkable(next) {
			s.world.MoveObject(o.ID, next)
			return
		}
	}
	switch {
	case dist <= skeletonShootDist && o.Reload == 0 && s.rng.Chance(skeletonShootChance):
		d := towardDirection(o.Pos, playerPos, true)
		s.world.AddObject(world.Object{Kind: world.KindArrow, Pos: o.Pos.Add(d), Dir: d})
		o.Reload = skeletonReload
	case dist <= skeletonChaseDist && s.rng.Chance(skeletonChaseChance):
		d := towardDirection(o.Pos, playerPos, s.rng.Chance(skeletonLongAxis))
		next := o.Pos.Add(d)
		if s.world.IsWalkable(next) {
			s.world.MoveObject(o.ID, next)
		}
	case s.rng.Chance(skeletonWanderChance):
		next := o.Pos.Add(world.Dirs4[s.rng.Intn(4)])
		if s.world.IsWalkable(next) {
			s.world.MoveObject(o.ID, next)
		}
	}
}

// towardDirection picks the single-axis step from one cell toward
// another. With longAxis the larger offset is closed first, otherwise
// the smaller one; a tie flips the choice to the other axis.
func towardDirection(from, to world.Pos, longAxis bool) world.Pos {
	dx := to.X - from.X
	dy := to.Y - from.Y
	chooseX := mathx.AbsInt(dx) > mathx.AbsInt(dy)
	if !longAxis {
		chooseX = mathx.AbsInt(dx) <= mathx.AbsInt(dy)
	}
	if chooseX {
		return world.Pos{X: mathx.SignInt(dx), Y: 0}
	}
	return world.Pos{X: 0, Y: mathx.SignInt(dy)}
}
