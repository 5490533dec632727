// Package render turns observations into consumable forms: a plain
// text block for language agents and debugging, JSON for structured
// consumers, and a flat semantic byte grid for learned policies.
// Rendering never touches a live session; everything works off the
// observation and the rule profile it was produced under.
package render

import (
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
	"gridcraft.ai/internal/sim/world"
)

// Renderer is anything that turns an observation into a string.
type Renderer interface {
	Render(gs *session.GameState) (string, error)
}

// ObjectGlyph returns the fixed map character for an object; material
// glyphs come from the profile.
func ObjectGlyph(o *world.Object) rune {
	switch o.Kind {
	case world.KindPlayer:
		return '@'
	case world.KindCow:
		return 'C'
	case world.KindZombie:
		return 'Z'
	case world.KindSkeleton:
		return 'S'
	case world.KindArrow:
		return '*'
	case world.KindPlant:
		if o.Ripe() {
			return 'P'
		}
		return 'p'
	}
	return '?'
}

// MaterialGlyph returns the profile character for a tile index. Out of
// range values, including the view's out-of-bounds marker, come out as
// spaces.
func MaterialGlyph(rs *ruleset.Ruleset, idx uint8) rune {
	if idx == world.OutOfBounds || int(idx) >= len(rs.Materials) {
		return ' '
	}
	return []rune(rs.Materials[idx].Glyph)[0]
}

const entityLegend = "Entities: @ player  C cow  Z zombie  S skeleton  * arrow  P/p plant"
