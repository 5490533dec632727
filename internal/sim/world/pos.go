package world

import "gridcraft.ai/internal/sim/mathx"

// Pos is a grid coordinate. X grows rightward, Y grows downward.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Pos) Add(q Pos) Pos {
	return Pos{p.X + q.X, p.Y + q.Y}
}

// Manhattan is the distance metric used by all AI and spawn logic.
func (p Pos) Manhattan(q Pos) int {
	return mathx.AbsInt(p.X-q.X) + mathx.AbsInt(p.Y-q.Y)
}

// Dirs4 is the canonical cardinal order. Every random direction draw
// indexes this table, so the order is part of the determinism contract.
var Dirs4 = [4]Pos{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}
