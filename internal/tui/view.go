package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gridcraft.ai/internal/render"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
	"gridcraft.ai/internal/sim/world"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle = lipgloss.NewStyle().Bold(true)
	alertStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	mapStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	replayMapStyle = mapStyle.BorderForeground(lipgloss.Color("6"))

	statHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	statMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	statLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// cellStyles color the map by material name and, under the "obj:"
// prefix, by object kind. Unknown cells render unstyled.
var cellStyles = map[string]lipgloss.Style{
	"grass":   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	"water":   lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
	"stone":   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	"tree":    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	"coal":    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	"iron":    lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	"diamond": lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	"ruby":    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	"table":   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	"furnace": lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	"sand":    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	"lava":    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	"path":    lipgloss.NewStyle().Foreground(lipgloss.Color("7")),

	"obj:player":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")),
	"obj:cow":      lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	"obj:zombie":   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	"obj:skeleton": lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
	"obj:arrow":    lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	"obj:plant":    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
}

var defaultCellStyle = lipgloss.NewStyle()

type styledCell struct {
	ch  rune
	key string
}

// renderMap draws the observation grid. Consecutive cells with the
// same style render as one run to keep the escape sequences down.
func renderMap(gs *session.GameState, rs *ruleset.Ruleset) string {
	var rows [][]styledCell
	switch {
	case gs.View != nil:
		rows = viewCells(gs.View, rs)
	case gs.Full != nil:
		rows = fullCells(gs.Full, rs)
	default:
		return ""
	}

	var sb strings.Builder
	for y, row := range rows {
		if y > 0 {
			sb.WriteByte('\n')
		}
		x := 0
		for x < len(row) {
			start := row[x].key
			var run strings.Builder
			for x < len(row) && row[x].key == start {
				run.WriteRune(row[x].ch)
				x++
			}
			style, ok := cellStyles[start]
			if !ok {
				style = defaultCellStyle
			}
			sb.WriteString(style.Render(run.String()))
		}
	}
	return sb.String()
}

func viewCells(v *world.View, rs *ruleset.Ruleset) [][]styledCell {
	side := v.Side()
	overlay := overlayCells(v.Objects)
	rows := make([][]styledCell, 0, side)
	for wy := 0; wy < side; wy++ {
		row := make([]styledCell, 0, side)
		for wx := 0; wx < side; wx++ {
			p := world.Pos{X: v.Center.X + wx - v.Radius, Y: v.Center.Y + wy - v.Radius}
			if c, ok := overlay[p]; ok {
				row = append(row, c)
				continue
			}
			row = append(row, tileCell(rs, v.TileAt(wx, wy)))
		}
		rows = append(rows, row)
	}
	return rows
}

func fullCells(st *world.State, rs *ruleset.Ruleset) [][]styledCell {
	overlay := overlayCells(st.Objects)
	rows := make([][]styledCell, 0, st.Height)
	for y := 0; y < st.Height; y++ {
		row := make([]styledCell, 0, st.Width)
		for x := 0; x < st.Width; x++ {
			if c, ok := overlay[world.Pos{X: x, Y: y}]; ok {
				row = append(row, c)
				continue
			}
			row = append(row, tileCell(rs, st.Tiles[y*st.Width+x]))
		}
		rows = append(rows, row)
	}
	return rows
}

// overlayCells maps object positions to their glyphs. When two objects
// share a cell the lower id wins, matching the text renderer.
func overlayCells(objs []world.Object) map[world.Pos]styledCell {
	overlay := make(map[world.Pos]styledCell, len(objs))
	for i := range objs {
		o := &objs[i]
		if _, taken := overlay[o.Pos]; !taken {
			overlay[o.Pos] = styledCell{ch: render.ObjectGlyph(o), key: "obj:" + o.Kind.String()}
		}
	}
	return overlay
}

func tileCell(rs *ruleset.Ruleset, idx uint8) styledCell {
	if idx == world.OutOfBounds || int(idx) >= len(rs.Materials) {
		return styledCell{ch: ' '}
	}
	return styledCell{ch: render.MaterialGlyph(rs, idx), key: rs.Materials[idx].Name}
}

const statCap = 9

func statBar(label string, v int) string {
	n := v
	if n < 0 {
		n = 0
	}
	if n > statCap {
		n = statCap
	}
	st := statHigh
	switch {
	case n <= 2:
		st = statLow
	case n <= 5:
		st = statMid
	}
	bar := strings.Repeat("█", n) + strings.Repeat("░", statCap-n)
	return fmt.Sprintf("%-7s %s %d", label, st.Render(bar), v)
}

func sidePanel(gs *session.GameState, rs *ruleset.Ruleset, reward float64, events []string) string {
	var b strings.Builder
	b.WriteString(statBar("health", gs.Health))
	b.WriteByte('\n')
	b.WriteString(statBar("food", gs.Food))
	b.WriteByte('\n')
	b.WriteString(statBar("drink", gs.Drink))
	b.WriteByte('\n')
	b.WriteString(statBar("energy", gs.Energy))
	b.WriteByte('\n')

	b.WriteByte('\n')
	b.WriteString(labelStyle.Render("inventory"))
	b.WriteByte('\n')
	carried := 0
	for _, item := range rs.Items {
		if c := gs.Items[item]; c > 0 {
			fmt.Fprintf(&b, "  %-16s %d\n", item, c)
			carried++
		}
	}
	if carried == 0 {
		b.WriteString(dimStyle.Render("  empty"))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(labelStyle.Render("achievements"))
	fmt.Fprintf(&b, " %d/%d  reward %.2f\n", len(gs.Achievements), len(rs.Achievements), reward)

	if len(events) > 0 {
		b.WriteByte('\n')
		for _, e := range events {
			b.WriteString(dimStyle.Render(e))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// composeFrame lays out the bordered map next to the stats panel, or
// stacks a compact stats line under the map when the terminal is too
// narrow for both.
func composeFrame(width int, gs *session.GameState, rs *ruleset.Ruleset, reward float64, events []string, replay bool) string {
	style := mapStyle
	if replay {
		style = replayMapStyle
	}
	mapPanel := style.Render(renderMap(gs, rs))

	if width > 0 && lipgloss.Width(mapPanel)+30 > width {
		compact := fmt.Sprintf("hp %d  food %d  drink %d  energy %d  reward %.2f",
			gs.Health, gs.Food, gs.Drink, gs.Energy, reward)
		return mapPanel + "\n" + dimStyle.Render(compact)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, mapPanel, "  ", sidePanel(gs, rs, reward, events))
}
