package session

import "gridcraft.ai/internal/sim/world"

// processPlants grows every sapling by one tick, except those with a
// creature in an adjacent cell, which get trampled instead. Dead plants
// are swept out in a second pass so removal order stays id-sorted.
func (s *Session) processPlants() {
	for _, id := range s.world.KindIDs(world.KindPlant) {
		o := s.world.Object(id)
		if o == nil {
			continue
		}
		menaced := false
		for _, d := range world.Dirs4 {
			if adj := s.world.ObjectAt(o.Pos.Add(d)); adj != nil && adj.IsCreature() {
				menaced = true
				break
			}
		}
		if menaced {
			if o.Health > 1 {
				o.Health--
			} else {
				o.Health = 0
			}
		} else {
			o.Growth++
		}
	}
	for _, id := range s.world.KindIDs(world.KindPlant) {
		if o := s.world.Object(id); o != nil && o.Health == 0 {
			s.world.RemoveObject(id)
		}
	}
}
