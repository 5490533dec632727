package render

import (
	"encoding/json"

	"gridcraft.ai/internal/sim/session"
	"gridcraft.ai/internal/sim/world"
)

// JSON renders the observation as indented JSON.
type JSON struct{}

var _ Renderer = JSON{}

func (JSON) Render(gs *session.GameState) (string, error) {
	raw, err := json.MarshalIndent(gs, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// CompactJSON renders the observation as a single JSON line, the form
// recordings and wire transports use.
type CompactJSON struct{}

var _ Renderer = CompactJSON{}

func (CompactJSON) Render(gs *session.GameState) (string, error) {
	raw, err := json.Marshal(gs)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Semantic category codes for objects. Tiles keep their palette index,
// so profiles must keep their palette below SemanticPlayer.
const (
	SemanticPlayer    = 20
	SemanticCow       = 21
	SemanticZombie    = 22
	SemanticSkeleton  = 23
	SemanticArrow     = 24
	SemanticPlant     = 25
	SemanticPlantRipe = 26
)

// Semantic flattens the windowed view into one byte per cell: objects
// map to the Semantic* codes, bare tiles keep their palette index and
// cells beyond the world edge read zero.
type Semantic struct{}

// Bytes returns the row major grid, nil when the observation carries
// no windowed view.
func (Semantic) Bytes(gs *session.GameState) []byte {
	v := gs.View
	if v == nil {
		return nil
	}
	side := v.Side()
	out := make([]byte, side*side)
	for wy := 0; wy < side; wy++ {
		for wx := 0; wx < side; wx++ {
			idx := v.TileAt(wx, wy)
			if idx == world.OutOfBounds {
				idx = 0
			}
			out[wy*side+wx] = idx
		}
	}
	for i := range v.Objects {
		o := &v.Objects[i]
		cell := (o.Pos.Y-v.Center.Y+v.Radius)*side + (o.Pos.X - v.Center.X + v.Radius)
		if out[cell] < SemanticPlayer {
			out[cell] = semanticCode(o)
		}
	}
	return out
}

func semanticCode(o *world.Object) byte {
	switch o.Kind {
	case world.KindPlayer:
		return SemanticPlayer
	case world.KindCow:
		return SemanticCow
	case world.KindZombie:
		return SemanticZombie
	case world.KindSkeleton:
		return SemanticSkeleton
	case world.KindArrow:
		return SemanticArrow
	case world.KindPlant:
		if o.Ripe() {
			return SemanticPlantRipe
		}
		return SemanticPlant
	}
	return 0
}
