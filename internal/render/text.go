package render

import (
	"fmt"
	"strings"

	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
	"gridcraft.ai/internal/sim/world"
)

// Text renders an observation as a block of lines: header, map, then
// optional vitals, inventory, achievements and legend sections. Agents
// that only want the map switch the trailing sections off.
type Text struct {
	ShowInventory    bool
	ShowAchievements bool
	ShowLegend       bool

	rs *ruleset.Ruleset
}

var _ Renderer = (*Text)(nil)

// NewText returns a renderer with every section enabled.
func NewText(rs *ruleset.Ruleset) *Text {
	return &Text{
		ShowInventory:    true,
		ShowAchievements: true,
		ShowLegend:       true,
		rs:               rs,
	}
}

// Minimal returns a renderer that emits only the header and the map.
func Minimal(rs *ruleset.Ruleset) *Text {
	return &Text{rs: rs}
}

func (t *Text) Render(gs *session.GameState) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Step: %d | Episode: %d | Daylight: %.1f%%\n",
		gs.Step, gs.Episode, gs.Daylight*100)
	sleeping := ""
	if gs.Sleeping {
		sleeping = " [SLEEPING]"
	}
	fmt.Fprintf(&b, "Position: (%d, %d) | Facing: (%d, %d)%s\n\n",
		gs.PlayerPos.X, gs.PlayerPos.Y, gs.Facing.X, gs.Facing.Y, sleeping)

	switch {
	case gs.View != nil:
		b.WriteString("=== VIEW ===\n")
		b.WriteString(t.renderView(gs.View))
		b.WriteString("\n\n")
	case gs.Full != nil:
		b.WriteString("=== WORLD ===\n")
		b.WriteString(t.renderFull(gs.Full))
		b.WriteString("\n\n")
	}

	if t.ShowInventory {
		b.WriteString("=== VITALS ===\n")
		fmt.Fprintf(&b, "Health: %d | Food: %d | Drink: %d | Energy: %d\n",
			gs.Health, gs.Food, gs.Drink, gs.Energy)
		t.writeInventory(&b, gs)
		b.WriteByte('\n')
	}

	if t.ShowAchievements {
		fmt.Fprintf(&b, "=== ACHIEVEMENTS (%d/%d) ===\n",
			len(gs.Achievements), len(t.rs.Achievements))
		for _, name := range t.rs.Achievements {
			if n := gs.Achievements[name]; n > 0 {
				fmt.Fprintf(&b, "  %s: %d\n", name, n)
			}
		}
		b.WriteByte('\n')
	}

	if t.ShowLegend {
		t.writeLegend(&b)
	}

	return b.String(), nil
}

// renderView draws the windowed map. Objects overlay their tile; when
// two objects share a cell the lower id wins, matching the arena's
// occupancy rule. Cells beyond the world edge come out as spaces.
func (t *Text) renderView(v *world.View) string {
	side := v.Side()
	overlay := make(map[world.Pos]rune, len(v.Objects))
	for i := range v.Objects {
		o := &v.Objects[i]
		if _, taken := overlay[o.Pos]; !taken {
			overlay[o.Pos] = ObjectGlyph(o)
		}
	}

	lines := make([]string, 0, side)
	for wy := 0; wy < side; wy++ {
		row := make([]rune, 0, side)
		for wx := 0; wx < side; wx++ {
			p := world.Pos{X: v.Center.X + wx - v.Radius, Y: v.Center.Y + wy - v.Radius}
			if ch, ok := overlay[p]; ok {
				row = append(row, ch)
				continue
			}
			row = append(row, t.tileGlyph(v.TileAt(wx, wy)))
		}
		lines = append(lines, string(row))
	}
	return strings.Join(lines, "\n")
}

func (t *Text) renderFull(st *world.State) string {
	overlay := make(map[world.Pos]rune, len(st.Objects))
	for i := range st.Objects {
		o := &st.Objects[i]
		if _, taken := overlay[o.Pos]; !taken {
			overlay[o.Pos] = ObjectGlyph(o)
		}
	}

	lines := make([]string, 0, st.Height)
	for y := 0; y < st.Height; y++ {
		row := make([]rune, 0, st.Width)
		for x := 0; x < st.Width; x++ {
			if ch, ok := overlay[world.Pos{X: x, Y: y}]; ok {
				row = append(row, ch)
				continue
			}
			row = append(row, t.tileGlyph(st.Tiles[y*st.Width+x]))
		}
		lines = append(lines, string(row))
	}
	return strings.Join(lines, "\n")
}

func (t *Text) tileGlyph(idx uint8) rune {
	return MaterialGlyph(t.rs, idx)
}

// writeInventory splits the profile's items into resources and tools.
// Tools are whatever the sword and pickaxe ladders name; everything
// else counts as a resource and prints in item order.
func (t *Text) writeInventory(b *strings.Builder, gs *session.GameState) {
	tool := make(map[string]bool, len(t.rs.Pickaxes)+len(t.rs.Swords))
	for _, p := range t.rs.Pickaxes {
		tool[p.Item] = true
	}
	for _, sw := range t.rs.Swords {
		tool[sw.Item] = true
	}

	b.WriteString("\n=== RESOURCES ===\n")
	parts := make([]string, 0, len(t.rs.Items))
	for _, item := range t.rs.Items {
		if !tool[item] {
			parts = append(parts, fmt.Sprintf("%s: %d", item, gs.Items[item]))
		}
	}
	b.WriteString(strings.Join(parts, " | "))
	b.WriteByte('\n')

	b.WriteString("\n=== TOOLS ===\n")
	parts = parts[:0]
	for _, p := range t.rs.Pickaxes {
		parts = append(parts, fmt.Sprintf("%s=%d", p.Item, gs.Items[p.Item]))
	}
	fmt.Fprintf(b, "Pickaxes: %s\n", strings.Join(parts, " "))
	parts = parts[:0]
	for _, sw := range t.rs.Swords {
		parts = append(parts, fmt.Sprintf("%s=%d", sw.Item, gs.Items[sw.Item]))
	}
	fmt.Fprintf(b, "Swords: %s\n", strings.Join(parts, " "))
}

const legendPerLine = 6

func (t *Text) writeLegend(b *strings.Builder) {
	b.WriteString("=== LEGEND ===\n")
	for i := 0; i < len(t.rs.Materials); i += legendPerLine {
		end := i + legendPerLine
		if end > len(t.rs.Materials) {
			end = len(t.rs.Materials)
		}
		parts := make([]string, 0, legendPerLine)
		for _, m := range t.rs.Materials[i:end] {
			parts = append(parts, m.Glyph+" "+m.Name)
		}
		if i == 0 {
			b.WriteString("Terrain:  ")
		} else {
			b.WriteString("          ")
		}
		b.WriteString(strings.Join(parts, "  "))
		b.WriteByte('\n')
	}
	b.WriteString(entityLegend)
	b.WriteByte('\n')
}
