package world

import (
	"reflect"
	"testing"

	"gridcraft.ai/internal/sim/ruleset"
)

func genParams() GenParams {
	return GenParams{
		Width: 64, Height: 64,
		ChunkW: 12, ChunkH: 12,
		TreeDensity:     1,
		OreDensity:      map[string]float64{},
		CowDensity:      1,
		ZombieDensity:   1,
		SkeletonDensity: 1,
		CowHealth:       3,
		ZombieHealth:    5,
		SkeletonHealth:  3,
		ClearRadius:     10,
	}
}

func TestGenerateDeterministic(t *testing.T) {
	rs := ruleset.Classic()
	for _, seed := range []uint64{1, 42, 777} {
		a := Generate(seed, genParams(), rs).ExportState()
		b := Generate(seed, genParams(), rs).ExportState()
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("seed %d: two generations differ", seed)
		}
	}
}

func TestGenerateSeedsDiffer(t *testing.T) {
	rs := ruleset.Classic()
	distinct := map[string]bool{}
	for _, seed := range []uint64{1, 2, 3, 4, 5} {
		w := Generate(seed, genParams(), rs)
		distinct[string(w.ExportState().Tiles)] = true
	}
	if len(distinct) < 2 {
		t.Fatalf("5 seeds produced %d distinct worlds", len(distinct))
	}
}

func TestGeneratePlayerPlacement(t *testing.T) {
	rs := ruleset.Classic()
	for _, seed := range []uint64{7, 99, 12345} {
		w := Generate(seed, genParams(), rs)
		p := w.Player()
		if p == nil {
			t.Fatalf("seed %d: no player", seed)
		}
		m := w.Material(p.Pos)
		if m == nil || !m.Walkable {
			t.Fatalf("seed %d: player on %v", seed, m)
		}
		// The player must be the only occupant of its cell.
		if id, _ := w.ObjectIDAt(p.Pos); id != p.ID {
			t.Fatalf("seed %d: player shares cell with object %d", seed, id)
		}
	}
}

func TestGenerateZeroDensities(t *testing.T) {
	rs := ruleset.Classic()
	p := genParams()
	p.TreeDensity = 0
	p.CowDensity = 0
	p.ZombieDensity = 0
	p.SkeletonDensity = 0
	p.OreDensity["diamond"] = 0

	w := Generate(404, p, rs)
	if n := w.CountMaterial(rs.MustMaterial("tree")); n != 0 {
		t.Fatalf("%d trees with zero tree density", n)
	}
	if n := w.CountMaterial(rs.MustMaterial("diamond")); n != 0 {
		t.Fatalf("%d diamonds with zero diamond density", n)
	}
	for _, k := range []ObjectKind{KindCow, KindZombie, KindSkeleton} {
		if n := w.CountKind(k); n != 0 {
			t.Fatalf("%d %s with zero density", n, k)
		}
	}
}

func TestGenerateClearRadius(t *testing.T) {
	rs := ruleset.Classic()
	p := genParams()
	// Crank densities so suppression, not luck, keeps the area clear.
	p.CowDensity = 20
	p.ZombieDensity = 20
	p.SkeletonDensity = 10

	w := Generate(31337, p, rs)
	center := Pos{p.Width / 2, p.Height / 2}
	for _, id := range w.KindIDs(KindCow, KindZombie, KindSkeleton) {
		o := w.Object(id)
		if center.Manhattan(o.Pos) <= p.ClearRadius {
			t.Fatalf("%s at %v inside clear radius", o.Kind, o.Pos)
		}
	}
}

func TestGenerateCreatureCells(t *testing.T) {
	rs := ruleset.Classic()
	w := Generate(777, genParams(), rs)
	grass := rs.MustMaterial("grass")
	path := rs.MustMaterial("path")
	for _, id := range w.KindIDs(KindCow, KindZombie, KindSkeleton) {
		o := w.Object(id)
		idx, _ := w.MaterialIdx(o.Pos)
		switch o.Kind {
		case KindSkeleton:
			if idx != path {
				t.Fatalf("skeleton on material %d", idx)
			}
		default:
			if idx != grass {
				t.Fatalf("%s on material %d", o.Kind, idx)
			}
		}
		want := map[ObjectKind]int{KindCow: 3, KindZombie: 5, KindSkeleton: 3}[o.Kind]
		if o.Health != want {
			t.Fatalf("%s health = %d, want %d", o.Kind, o.Health, want)
		}
	}
}

func TestGenerateOddSizes(t *testing.T) {
	rs := ruleset.Classic()
	p := genParams()
	p.Width, p.Height = 50, 30 // not multiples of the chunk size
	w := Generate(5, p, rs)
	if w.Width() != 50 || w.Height() != 30 {
		t.Fatalf("world is %dx%d", w.Width(), w.Height())
	}
	for y := 0; y < 30; y++ {
		for x := 0; x < 50; x++ {
			if _, ok := w.MaterialIdx(Pos{x, y}); !ok {
				t.Fatalf("unset tile at %d,%d", x, y)
			}
		}
	}
}
