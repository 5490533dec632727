package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"gridcraft.ai/internal/persistence/recording"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

const maxEvents = 8

// Options configure an interactive run.
type Options struct {
	Session *session.Session

	// Recorder, when set, owns all stepping so every tick lands in the
	// recording. Only logical time sessions are recordable.
	Recorder *recording.Recorder

	Width  int
	Height int
}

// Model drives one session in the terminal. Real time sessions tick
// themselves through Advance; logical sessions step on key presses.
type Model struct {
	s   *session.Session
	rec *recording.Recorder
	rs  *ruleset.Ruleset

	keys KeyMap
	help help.Model

	tick     time.Duration
	lastTick time.Time

	state    session.GameState
	epReward float64
	events   []string

	width  int
	height int

	quitting bool
}

func New(opts Options) Model {
	m := Model{
		s:      opts.Session,
		rec:    opts.Recorder,
		rs:     opts.Session.Ruleset(),
		keys:   DefaultKeyMap(),
		help:   help.New(),
		state:  opts.Session.State(),
		width:  opts.Width,
		height: opts.Height,
	}
	cfg := opts.Session.Config()
	if cfg.Time.Kind != session.TimeLogical && cfg.Time.TicksPerSecond > 0 {
		m.tick = time.Duration(float64(time.Second) / cfg.Time.TicksPerSecond)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	if m.tick > 0 {
		return tickCmd(m.tick)
	}
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case TickMsg:
		return m.handleTick(time.Time(msg))
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Pause):
		if m.tick > 0 {
			m.s.SetPaused(!m.s.Paused())
		}
		return m, nil
	case key.Matches(msg, m.keys.Reset):
		m.reset()
		return m, nil
	}

	if a, ok := ActionFor(m.rs, msg); ok {
		m.s.SetAction(a)
		if m.s.ManualStepAllowed() {
			m.step(a)
		}
	}
	return m, nil
}

func (m Model) handleTick(now time.Time) (tea.Model, tea.Cmd) {
	if m.tick <= 0 {
		return m, nil
	}
	dt := m.tick.Seconds()
	if !m.lastTick.IsZero() {
		dt = now.Sub(m.lastTick).Seconds()
	}
	m.lastTick = now
	for _, res := range m.s.Advance(dt) {
		m.apply(res)
	}
	return m, tickCmd(m.tick)
}

// step runs one manual tick, through the recorder when one is attached.
// A write failure drops the recorder and keeps the session playable.
func (m *Model) step(a session.Action) {
	if m.state.Done {
		return
	}
	var res session.StepResult
	if m.rec != nil {
		var err error
		res, err = m.rec.Step(a)
		if err != nil {
			m.pushEvent("recording failed: " + err.Error())
			m.rec.Close()
			m.rec = nil
		}
	} else {
		res = m.s.Step(a)
	}
	m.apply(res)
}

func (m *Model) apply(res session.StepResult) {
	m.state = res.State
	m.epReward += res.Reward
	for _, name := range res.NewlyUnlocked {
		m.pushEvent("unlocked: " + name)
	}
	for _, e := range res.Events {
		m.pushEvent(e)
	}
	if res.Done && res.DoneReason != session.DoneReset {
		m.pushEvent("game over: " + string(res.DoneReason))
	}
}

func (m *Model) reset() {
	var res session.StepResult
	if m.rec != nil {
		var err error
		res, err = m.rec.Reset()
		if err != nil {
			m.pushEvent("recording failed: " + err.Error())
			m.rec.Close()
			m.rec = nil
		}
	} else {
		res = m.s.Reset()
	}
	m.state = res.State
	m.epReward = 0
	m.events = m.events[:0]
	m.pushEvent(fmt.Sprintf("episode %d", m.state.Episode))
}

func (m *Model) pushEvent(e string) {
	m.events = append(m.events, e)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

func (m Model) headerView() string {
	head := titleStyle.Render("gridcraft") + dimStyle.Render(fmt.Sprintf(
		"  step %d  episode %d  daylight %3.0f%%  reward %.2f",
		m.state.Step, m.state.Episode, m.state.Daylight*100, m.epReward))
	switch {
	case m.state.Done:
		head += alertStyle.Render(fmt.Sprintf("  GAME OVER: %s (enter restarts)", m.state.DoneReason))
	case m.tick > 0 && m.s.Paused():
		head += alertStyle.Render("  [PAUSED]")
	case m.state.Sleeping:
		head += dimStyle.Render("  [SLEEPING]")
	}
	return head
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	frame := composeFrame(m.width, &m.state, m.rs, m.epReward, m.events, false)
	return m.headerView() + "\n" + frame + "\n" + helpStyle.Render(m.help.View(m.keys))
}

// Run blocks until the player quits or the program fails.
func Run(opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
