// Package world owns the tile grid and the object arena, and answers the
// spatial queries the session and the view layer are built on. It holds
// no tick logic and draws no randomness of its own.
package world

import (
	"fmt"
	"sort"

	"gridcraft.ai/internal/sim/ruleset"
)

// World is the canonical spatial store of one episode. Not safe for
// concurrent use; the owning session serializes all access.
type World struct {
	w, h  int
	rs    *ruleset.Ruleset
	tiles []uint8

	objects  map[uint64]*Object
	nextID   uint64
	playerID uint64
}

// New returns an empty world filled with the named material.
func New(w, h int, rs *ruleset.Ruleset, fill string) *World {
	wd := &World{
		w:       w,
		h:       h,
		rs:      rs,
		tiles:   make([]uint8, w*h),
		objects: make(map[uint64]*Object),
		nextID:  1,
	}
	idx := rs.MustMaterial(fill)
	for i := range wd.tiles {
		wd.tiles[i] = idx
	}
	return wd
}

func (w *World) Width() int                { return w.w }
func (w *World) Height() int               { return w.h }
func (w *World) Ruleset() *ruleset.Ruleset { return w.rs }

func (w *World) InBounds(p Pos) bool {
	return p.X >= 0 && p.X < w.w && p.Y >= 0 && p.Y < w.h
}

// MaterialIdx returns the tile value at p, false when out of bounds.
func (w *World) MaterialIdx(p Pos) (uint8, bool) {
	if !w.InBounds(p) {
		return 0, false
	}
	return w.tiles[p.Y*w.w+p.X], true
}

// Material returns the palette entry at p, nil when out of bounds.
// Callers treat nil as world edge.
func (w *World) Material(p Pos) *ruleset.Material {
	idx, ok := w.MaterialIdx(p)
	if !ok {
		return nil
	}
	return w.rs.MaterialAt(idx)
}

// SetMaterial writes a tile value. Out of bounds writes are dropped.
func (w *World) SetMaterial(p Pos, idx uint8) {
	if !w.InBounds(p) {
		return
	}
	w.tiles[p.Y*w.w+p.X] = idx
}

// IsWalkable reports whether p is in bounds, on walkable material and
// free of any object, the player included. Lava is walkable; stepping
// onto it is the mover's problem.
func (w *World) IsWalkable(p Pos) bool {
	m := w.Material(p)
	if m == nil || !m.Walkable {
		return false
	}
	_, occupied := w.ObjectIDAt(p)
	return !occupied
}

// HasAdjacent reports whether the named material occupies any of the
// four orthogonal neighbors of p.
func (w *World) HasAdjacent(p Pos, material uint8) bool {
	for _, d := range Dirs4 {
		if idx, ok := w.MaterialIdx(p.Add(d)); ok && idx == material {
			return true
		}
	}
	return false
}

// ObjectIDAt returns the lowest object id occupying p. Objects may
// transiently share a cell (an arrow fired into an occupied cell), so
// the scan order has to be stable.
func (w *World) ObjectIDAt(p Pos) (uint64, bool) {
	best := uint64(0)
	for id, o := range w.objects {
		if o.Pos == p && (best == 0 || id < best) {
			best = id
		}
	}
	return best, best != 0
}

// ObjectAt returns the object occupying p, nil when the cell is free.
func (w *World) ObjectAt(p Pos) *Object {
	id, ok := w.ObjectIDAt(p)
	if !ok {
		return nil
	}
	return w.objects[id]
}

// Object returns the arena entry for id, nil when absent.
func (w *World) Object(id uint64) *Object {
	return w.objects[id]
}

// AddObject copies o into the arena and returns its assigned id.
// Ids ascend in insertion order; AI passes iterate in that order.
func (w *World) AddObject(o Object) uint64 {
	id := w.nextID
	w.nextID++
	o.ID = id
	w.objects[id] = &o
	if o.Kind == KindPlayer {
		w.playerID = id
	}
	return id
}

// RemoveObject drops id from the arena. Unknown ids are ignored.
func (w *World) RemoveObject(id uint64) {
	delete(w.objects, id)
}

// MoveObject relocates id. Unknown ids are ignored.
func (w *World) MoveObject(id uint64, p Pos) {
	if o, ok := w.objects[id]; ok {
		o.Pos = p
	}
}

// ObjectIDs returns every arena id in ascending order.
func (w *World) ObjectIDs() []uint64 {
	ids := make([]uint64, 0, len(w.objects))
	for id := range w.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// KindIDs returns the ids of every object of the given kinds, ascending.
func (w *World) KindIDs(kinds ...ObjectKind) []uint64 {
	var ids []uint64
	for id, o := range w.objects {
		for _, k := range kinds {
			if o.Kind == k {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CountKind returns how many objects of kind k exist.
func (w *World) CountKind(k ObjectKind) int {
	n := 0
	for _, o := range w.objects {
		if o.Kind == k {
			n++
		}
	}
	return n
}

// CountMaterial returns how many tiles hold the given palette index.
func (w *World) CountMaterial(idx uint8) int {
	n := 0
	for _, t := range w.tiles {
		if t == idx {
			n++
		}
	}
	return n
}

// Player returns the player's arena entry.
func (w *World) Player() *Object {
	return w.objects[w.playerID]
}

// PlayerID returns the player's arena id, 0 before the player is added.
func (w *World) PlayerID() uint64 { return w.playerID }

// State is the plain serializable form of a world, used by save files
// and state digests.
type State struct {
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Tiles    []uint8  `json:"tiles"`
	Objects  []Object `json:"objects,omitempty"`
	NextID   uint64   `json:"next_id"`
	PlayerID uint64   `json:"player_id"`
}

// ExportState copies the world into its serializable form. Objects come
// out in ascending id order.
func (w *World) ExportState() State {
	st := State{
		Width:    w.w,
		Height:   w.h,
		Tiles:    append([]uint8(nil), w.tiles...),
		NextID:   w.nextID,
		PlayerID: w.playerID,
	}
	for _, id := range w.ObjectIDs() {
		st.Objects = append(st.Objects, *w.objects[id])
	}
	return st
}

// FromState rebuilds a world from its serializable form.
func FromState(st State, rs *ruleset.Ruleset) (*World, error) {
	if st.Width <= 0 || st.Height <= 0 {
		return nil, fmt.Errorf("world state: bad size %dx%d", st.Width, st.Height)
	}
	if len(st.Tiles) != st.Width*st.Height {
		return nil, fmt.Errorf("world state: %d tiles for %dx%d", len(st.Tiles), st.Width, st.Height)
	}
	for i, t := range st.Tiles {
		if int(t) >= len(rs.Materials) {
			return nil, fmt.Errorf("world state: tile %d holds unknown material %d", i, t)
		}
	}
	w := &World{
		w:        st.Width,
		h:        st.Height,
		rs:       rs,
		tiles:    append([]uint8(nil), st.Tiles...),
		objects:  make(map[uint64]*Object, len(st.Objects)),
		nextID:   st.NextID,
		playerID: st.PlayerID,
	}
	for _, o := range st.Objects {
		if o.ID == 0 || o.ID >= st.NextID {
			return nil, fmt.Errorf("world state: object id %d out of range", o.ID)
		}
		obj := o
		w.objects[o.ID] = &obj
	}
	if st.PlayerID != 0 {
		p, ok := w.objects[st.PlayerID]
		if !ok || p.Kind != KindPlayer {
			return nil, fmt.Errorf("world state: player id %d does not name a player", st.PlayerID)
		}
	}
	return w, nil
}
