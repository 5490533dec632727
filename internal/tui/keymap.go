package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

// KeyMap holds the control bindings for live play. Game actions resolve
// through the profile's action table, not through bindings, so one
// layout serves every profile.
type KeyMap struct {
	Move  key.Binding
	Do    key.Binding
	Sleep key.Binding
	Place key.Binding
	Craft key.Binding
	Wait  key.Binding
	Pause key.Binding
	Reset key.Binding
	Help  key.Binding
	Quit  key.Binding
}

// ShortHelp returns the bindings for the one-line help bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Move, k.Do, k.Sleep, k.Help, k.Quit}
}

// FullHelp returns the bindings for the expanded help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Move, k.Do, k.Sleep, k.Wait},
		{k.Place, k.Craft},
		{k.Pause, k.Reset, k.Help, k.Quit},
	}
}

// DefaultKeyMap returns the standard survival layout.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Move: key.NewBinding(
			key.WithKeys("w", "a", "s", "d", "up", "left", "down", "right"),
			key.WithHelp("wasd", "move"),
		),
		Do: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "interact"),
		),
		Sleep: key.NewBinding(
			key.WithKeys("tab", "z"),
			key.WithHelp("tab", "sleep"),
		),
		Place: key.NewBinding(
			key.WithKeys("r", "t", "f", "p"),
			key.WithHelp("r/t/f/p", "place stone/table/furnace/plant"),
		),
		Craft: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8"),
			key.WithHelp("1-6", "craft tools (7/8 diamond tier)"),
		),
		Wait: key.NewBinding(
			key.WithKeys("."),
			key.WithHelp(".", "wait"),
		),
		Pause: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "pause"),
		),
		Reset: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "new episode"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// actionKeys is the classic desktop layout: movement on wasd and the
// arrows, interact on space, sleep on tab, placements on letters and
// the craft ladder on digits.
var actionKeys = map[string]string{
	"w": "move_up", "up": "move_up",
	"s": "move_down", "down": "move_down",
	"a": "move_left", "left": "move_left",
	"d": "move_right", "right": "move_right",
	" ":   "do",
	"tab": "sleep", "z": "sleep",
	"r": "place_stone",
	"t": "place_table",
	"f": "place_furnace",
	"p": "place_plant",
	"1": "make_wood_pickaxe",
	"2": "make_stone_pickaxe",
	"3": "make_iron_pickaxe",
	"4": "make_wood_sword",
	"5": "make_stone_sword",
	"6": "make_iron_sword",
	"7": "make_diamond_pickaxe",
	"8": "make_diamond_sword",
	".": "noop",
}

// ActionFor maps a key press to an action index under the given
// profile. Keys bound to actions the profile lacks, like the diamond
// tier under classic, report false.
func ActionFor(rs *ruleset.Ruleset, msg tea.KeyMsg) (session.Action, bool) {
	name, ok := actionKeys[msg.String()]
	if !ok {
		return 0, false
	}
	a, err := session.ActionByName(rs, name)
	if err != nil {
		return 0, false
	}
	return a, true
}

// PlaybackKeyMap holds the control bindings for watching a recording.
type PlaybackKeyMap struct {
	Play   key.Binding
	Step   key.Binding
	Faster key.Binding
	Slower key.Binding
	Help   key.Binding
	Quit   key.Binding
}

// ShortHelp returns the bindings for the one-line help bar.
func (k PlaybackKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.Step, k.Help, k.Quit}
}

// FullHelp returns the bindings for the expanded help view.
func (k PlaybackKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Play, k.Step},
		{k.Faster, k.Slower},
		{k.Help, k.Quit},
	}
}

// DefaultPlaybackKeyMap returns the standard playback bindings.
func DefaultPlaybackKeyMap() PlaybackKeyMap {
	return PlaybackKeyMap{
		Play: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "play/pause"),
		),
		Step: key.NewBinding(
			key.WithKeys("n", "right"),
			key.WithHelp("n", "step"),
		),
		Faster: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "faster"),
		),
		Slower: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "slower"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "quit"),
		),
	}
}

// WatchKeyMap holds the control bindings for spectating a live
// session. Spectators only look.
type WatchKeyMap struct {
	Help key.Binding
	Quit key.Binding
}

// ShortHelp returns the bindings for the one-line help bar.
func (k WatchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns the bindings for the expanded help view.
func (k WatchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Help, k.Quit}}
}

// DefaultWatchKeyMap returns the standard spectator bindings.
func DefaultWatchKeyMap() WatchKeyMap {
	return WatchKeyMap{
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "quit"),
		),
	}
}
