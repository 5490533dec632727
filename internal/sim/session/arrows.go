package session

import "gridcraft.ai/internal/sim/world"

// processArrows flies every arrow one cell along its direction. An arrow
// resolves against whatever occupies the next cell: the player or a
// creature takes the hit, a crafting station is smashed back to ground,
// a solid tile stops it. Open ground, water and lava let it pass.
func (s *Session) processArrows() {
	playerPos := s.world.Player().Pos
	for _, id := range s.world.KindIDs(world.KindArrow) {
		o := s.world.Object(id)
		if o == nil {
			continue
		}
		next := o.Pos.Add(o.Dir)
		dmg := int(arrowDamage * s.cfg.ArrowDamageMult)

		if next == playerPos {
			wasAsleep := s.player.Sleeping
			s.player.ApplyDamage("arrow", dmg)
			if wasAsleep {
				s.wakeUp()
			}
			s.world.RemoveObject(id)
			continue
		}
		if targetID, ok := s.world.ObjectIDAt(next); ok {
			t := s.world.Object(targetID)
			switch t.Kind {
			case world.KindCow, world.KindZombie, world.KindSkeleton, world.KindPlant:
				if t.Health > dmg {
					t.Health -= dmg
				} else {
					s.world.RemoveObject(targetID)
				}
			}
			s.world.RemoveObject(id)
			continue
		}
		if !s.world.InBounds(next) {
			s.world.RemoveObject(id)
			continue
		}
		idx, _ := s.world.MaterialIdx(next)
		if s.stationMats[idx] {
			s.world.SetMaterial(next, s.pathIdx)
			s.world.RemoveObject(id)
			continue
		}
		m := s.world.Material(next)
		if m.Walkable || m.Drink {
			s.world.MoveObject(id, next)
			continue
		}
		s.world.RemoveObject(id)
	}
}
