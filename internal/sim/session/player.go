package session

import (
	"gridcraft.ai/internal/sim/mathx"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/world"
)

// Player carries the avatar's vitals and inventory. Its position lives in
// the world arena; the entry there only claims the cell.
type Player struct {
	Health int `json:"health"`
	Food   int `json:"food"`
	Drink  int `json:"drink"`
	Energy int `json:"energy"`

	Items map[string]int `json:"items"`

	Facing   world.Pos `json:"facing"`
	Sleeping bool      `json:"sleeping"`

	// Life stat accumulators, in hundredths of a point per tick.
	HungerCounter  int `json:"hunger_counter"`
	ThirstCounter  int `json:"thirst_counter"`
	FatigueCounter int `json:"fatigue_counter"`
	RecoverCounter int `json:"recover_counter"`

	// LastDamage names the most recent source of health loss.
	LastDamage string `json:"last_damage,omitempty"`

	cap int
}

func newPlayer(rs *ruleset.Ruleset) Player {
	c := rs.InventoryCap
	return Player{
		Health: c,
		Food:   c,
		Drink:  c,
		Energy: c,
		Items:  map[string]int{},
		Facing: world.Pos{X: 0, Y: 1},
		cap:    c,
	}
}

// Has reports a non-zero count of the item. Shaped to feed the ruleset
// tool table lookups.
func (p *Player) Has(item string) bool { return p.Items[item] > 0 }

// Item returns the held count.
func (p *Player) Item(item string) int { return p.Items[item] }

// AddItem adds n of the item, capped at the inventory limit. Counts never
// go negative.
func (p *Player) AddItem(item string, n int) {
	p.Items[item] = mathx.ClampInt(p.Items[item]+n, 0, p.cap)
}

// CanAfford reports whether every line of the cost is covered.
func (p *Player) CanAfford(cost map[string]int) bool {
	for item, n := range cost {
		if p.Items[item] < n {
			return false
		}
	}
	return true
}

// Consume subtracts the cost. Callers check CanAfford first.
func (p *Player) Consume(cost map[string]int) {
	for item, n := range cost {
		p.Items[item] -= n
	}
}

func (p *Player) AddHealth(n int) { p.Health = mathx.ClampInt(p.Health+n, 0, p.cap) }
func (p *Player) AddFood(n int)   { p.Food = mathx.ClampInt(p.Food+n, 0, p.cap) }
func (p *Player) AddDrink(n int)  { p.Drink = mathx.ClampInt(p.Drink+n, 0, p.cap) }
func (p *Player) AddEnergy(n int) { p.Energy = mathx.ClampInt(p.Energy+n, 0, p.cap) }

// ApplyDamage lowers health and records the source. A hit that does not
// exceed the remaining health leaves the player alive; anything else
// drops health to zero. Sleeping is not touched here; call sites decide
// whether the hit wakes the player.
func (p *Player) ApplyDamage(source string, amount int) {
	p.LastDamage = source
	if p.Health > amount {
		p.Health -= amount
		return
	}
	p.Health = 0
}
