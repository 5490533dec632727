// Package tui is the Bubble Tea front end for interactive play. It
// owns the terminal loop, the key-to-action mapping and the map/stats
// layout; underneath runs the same session the gateway serves.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TickMsg drives real-time sessions and replay playback.
type TickMsg time.Time

// tickCmd returns a Bubble Tea command that emits ticks at the given
// interval.
func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
