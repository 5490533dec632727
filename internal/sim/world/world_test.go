package world

import (
	"reflect"
	"testing"

	"gridcraft.ai/internal/sim/ruleset"
)

func testWorld(t *testing.T, w, h int) *World {
	t.Helper()
	return New(w, h, ruleset.Classic(), "grass")
}

func TestMaterialAccess(t *testing.T) {
	w := testWorld(t, 8, 6)
	rs := w.Ruleset()

	if idx, ok := w.MaterialIdx(Pos{0, 0}); !ok || idx != rs.MustMaterial("grass") {
		t.Fatalf("fresh world tile = %d,%v", idx, ok)
	}
	if _, ok := w.MaterialIdx(Pos{8, 0}); ok {
		t.Fatal("out of bounds read succeeded")
	}
	if m := w.Material(Pos{-1, 0}); m != nil {
		t.Fatalf("out of bounds material = %v", m)
	}

	stone := rs.MustMaterial("stone")
	w.SetMaterial(Pos{3, 2}, stone)
	if m := w.Material(Pos{3, 2}); m.Name != "stone" {
		t.Fatalf("material after set = %q", m.Name)
	}
	// Out of bounds writes are dropped, not panics.
	w.SetMaterial(Pos{99, 99}, stone)
}

func TestIsWalkable(t *testing.T) {
	w := testWorld(t, 8, 8)
	rs := w.Ruleset()

	if !w.IsWalkable(Pos{1, 1}) {
		t.Fatal("grass not walkable")
	}
	w.SetMaterial(Pos{2, 2}, rs.MustMaterial("stone"))
	if w.IsWalkable(Pos{2, 2}) {
		t.Fatal("stone walkable")
	}
	w.SetMaterial(Pos{3, 3}, rs.MustMaterial("lava"))
	if !w.IsWalkable(Pos{3, 3}) {
		t.Fatal("lava must be walkable")
	}
	w.SetMaterial(Pos{4, 4}, rs.MustMaterial("water"))
	if w.IsWalkable(Pos{4, 4}) {
		t.Fatal("water walkable")
	}
	if w.IsWalkable(Pos{-1, 0}) || w.IsWalkable(Pos{0, 8}) {
		t.Fatal("out of bounds walkable")
	}

	w.AddObject(Object{Kind: KindCow, Pos: Pos{5, 5}, Health: 3})
	if w.IsWalkable(Pos{5, 5}) {
		t.Fatal("occupied cell walkable")
	}
}

func TestHasAdjacent(t *testing.T) {
	w := testWorld(t, 8, 8)
	table := w.Ruleset().MustMaterial("table")

	if w.HasAdjacent(Pos{4, 4}, table) {
		t.Fatal("phantom table")
	}
	w.SetMaterial(Pos{4, 5}, table)
	if !w.HasAdjacent(Pos{4, 4}, table) {
		t.Fatal("south table not seen")
	}
	if w.HasAdjacent(Pos{5, 5}, table) {
		t.Fatal("diagonal counted as adjacent")
	}
	// Edge cells only probe in-bounds neighbors.
	if w.HasAdjacent(Pos{0, 0}, table) {
		t.Fatal("edge probe found a table")
	}
}

func TestObjectArena(t *testing.T) {
	w := testWorld(t, 8, 8)

	a := w.AddObject(Object{Kind: KindCow, Pos: Pos{1, 1}, Health: 3})
	b := w.AddObject(Object{Kind: KindZombie, Pos: Pos{2, 2}, Health: 5})
	if b != a+1 {
		t.Fatalf("ids not sequential: %d then %d", a, b)
	}

	if id, ok := w.ObjectIDAt(Pos{1, 1}); !ok || id != a {
		t.Fatalf("ObjectIDAt = %d,%v", id, ok)
	}
	if _, ok := w.ObjectIDAt(Pos{7, 7}); ok {
		t.Fatal("empty cell occupied")
	}

	// Overlap resolves to the lowest id.
	c := w.AddObject(Object{Kind: KindArrow, Pos: Pos{1, 1}, Dir: Pos{1, 0}})
	if id, _ := w.ObjectIDAt(Pos{1, 1}); id != a {
		t.Fatalf("overlap resolved to %d, want %d", id, a)
	}

	w.MoveObject(a, Pos{3, 3})
	if id, _ := w.ObjectIDAt(Pos{1, 1}); id != c {
		t.Fatalf("after move, cell resolves to %d, want %d", id, c)
	}

	w.RemoveObject(b)
	if w.Object(b) != nil {
		t.Fatal("removed object still present")
	}
	w.RemoveObject(b) // second remove is a no-op

	ids := w.ObjectIDs()
	if !reflect.DeepEqual(ids, []uint64{a, c}) {
		t.Fatalf("ObjectIDs = %v", ids)
	}
}

func TestKindIDs(t *testing.T) {
	w := testWorld(t, 8, 8)
	z1 := w.AddObject(Object{Kind: KindZombie, Pos: Pos{1, 1}, Health: 5})
	w.AddObject(Object{Kind: KindArrow, Pos: Pos{2, 1}, Dir: Pos{1, 0}})
	c1 := w.AddObject(Object{Kind: KindCow, Pos: Pos{3, 1}, Health: 3})
	z2 := w.AddObject(Object{Kind: KindZombie, Pos: Pos{4, 1}, Health: 5})

	got := w.KindIDs(KindCow, KindZombie, KindSkeleton)
	if !reflect.DeepEqual(got, []uint64{z1, c1, z2}) {
		t.Fatalf("creature ids = %v", got)
	}
	if n := w.CountKind(KindZombie); n != 2 {
		t.Fatalf("zombie count = %d", n)
	}
}

func TestPlayerEntry(t *testing.T) {
	w := testWorld(t, 8, 8)
	if w.Player() != nil {
		t.Fatal("player before AddObject")
	}
	id := w.AddObject(Object{Kind: KindPlayer, Pos: Pos{4, 4}})
	if w.PlayerID() != id || w.Player() == nil || w.Player().Pos != (Pos{4, 4}) {
		t.Fatalf("player entry wrong: id=%d obj=%+v", w.PlayerID(), w.Player())
	}
	if w.IsWalkable(Pos{4, 4}) {
		t.Fatal("player cell walkable")
	}
}

func TestViewWindow(t *testing.T) {
	w := testWorld(t, 8, 8)
	rs := w.Ruleset()
	stone := rs.MustMaterial("stone")
	w.SetMaterial(Pos{5, 4}, stone)
	w.AddObject(Object{Kind: KindCow, Pos: Pos{3, 3}, Health: 3})
	w.AddObject(Object{Kind: KindZombie, Pos: Pos{0, 0}, Health: 5})

	v := w.View(Pos{4, 4}, 2)
	if v.Side() != 5 || len(v.Tiles) != 25 {
		t.Fatalf("view shape: side=%d tiles=%d", v.Side(), len(v.Tiles))
	}
	// Window coordinate of world (5,4) is (3,2).
	if got := v.TileAt(3, 2); got != stone {
		t.Fatalf("stone tile = %d", got)
	}
	if len(v.Objects) != 1 || v.Objects[0].Kind != KindCow {
		t.Fatalf("view objects = %+v", v.Objects)
	}

	// A corner view hangs over the edge.
	v = w.View(Pos{0, 0}, 2)
	if v.TileAt(0, 0) != OutOfBounds {
		t.Fatal("corner view missing out-of-bounds sentinel")
	}
	if v.TileAt(2, 2) == OutOfBounds {
		t.Fatal("center of corner view out of bounds")
	}
}

func TestStateRoundTrip(t *testing.T) {
	w := testWorld(t, 6, 6)
	rs := w.Ruleset()
	w.SetMaterial(Pos{1, 2}, rs.MustMaterial("tree"))
	w.AddObject(Object{Kind: KindPlayer, Pos: Pos{3, 3}})
	w.AddObject(Object{Kind: KindSkeleton, Pos: Pos{5, 5}, Health: 3, Reload: 2})

	st := w.ExportState()
	w2, err := FromState(st, rs)
	if err != nil {
		t.Fatalf("FromState: %v", err)
	}
	if !reflect.DeepEqual(st, w2.ExportState()) {
		t.Fatal("state changed across round trip")
	}
	if w2.Player() == nil || w2.Player().Pos != (Pos{3, 3}) {
		t.Fatal("player lost in round trip")
	}
}

func TestFromStateRejects(t *testing.T) {
	w := testWorld(t, 4, 4)
	w.AddObject(Object{Kind: KindPlayer, Pos: Pos{1, 1}})
	good := w.ExportState()

	bad := good
	bad.Tiles = good.Tiles[:3]
	if _, err := FromState(bad, w.Ruleset()); err == nil {
		t.Fatal("short tile slice accepted")
	}

	bad = good
	bad.Tiles = append([]uint8(nil), good.Tiles...)
	bad.Tiles[0] = 200
	if _, err := FromState(bad, w.Ruleset()); err == nil {
		t.Fatal("unknown material accepted")
	}

	bad = good
	bad.PlayerID = 99
	if _, err := FromState(bad, w.Ruleset()); err == nil {
		t.Fatal("dangling player id accepted")
	}
}
