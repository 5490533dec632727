package tui

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"gridcraft.ai/internal/persistence/recording"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

const (
	minPlayInterval = 10 * time.Millisecond
	maxPlayInterval = 2 * time.Second
)

// Playback replays a recording in the terminal, rebuilding the run
// tick by tick and checking recorded digests as it goes.
type Playback struct {
	s     *session.Session
	rs    *ruleset.Ruleset
	lines []recording.StepLine
	pos   int

	keys PlaybackKeyMap
	help help.Model

	base     time.Duration
	interval time.Duration
	playing  bool

	state  session.GameState
	reward float64
	events []string

	width  int
	height int

	quitting bool
	err      error
}

// NewPlayback reads the whole recording up front, so the file is
// closed before the program starts and stepping never waits on it.
func NewPlayback(path string, speed float64, width, height int) (Playback, error) {
	r, err := recording.Open(path)
	if err != nil {
		return Playback{}, err
	}
	defer r.Close()

	h := r.Header()
	rs, err := ruleset.ByName(h.Ruleset)
	if err != nil {
		return Playback{}, fmt.Errorf("recording %s: %w", path, err)
	}
	if h.RulesetDigest != rs.Digest {
		return Playback{}, fmt.Errorf("recording took ruleset %s (%.12s), have %s (%.12s)",
			h.Ruleset, h.RulesetDigest, rs.Name, rs.Digest)
	}

	s, err := session.NewSeeded(h.Config, rs, h.Seed)
	if err != nil {
		return Playback{}, fmt.Errorf("recording config: %w", err)
	}

	var lines []recording.StepLine
	for {
		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Playback{}, err
		}
		lines = append(lines, line)
	}

	rate := h.Config.Time.TicksPerSecond
	if rate <= 0 {
		rate = 10
	}
	if speed <= 0 {
		speed = 1
	}
	base := time.Duration(float64(time.Second) / rate)

	m := Playback{
		s:        s,
		rs:       rs,
		lines:    lines,
		keys:     DefaultPlaybackKeyMap(),
		help:     help.New(),
		base:     base,
		interval: clampInterval(time.Duration(float64(base) / speed)),
		playing:  true,
		state:    s.State(),
		width:    width,
		height:   height,
	}
	return m, nil
}

func clampInterval(d time.Duration) time.Duration {
	if d < minPlayInterval {
		return minPlayInterval
	}
	if d > maxPlayInterval {
		return maxPlayInterval
	}
	return d
}

func (m Playback) Init() tea.Cmd {
	if m.playing {
		return tickCmd(m.interval)
	}
	return nil
}

func (m Playback) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case TickMsg:
		if !m.playing {
			return m, nil
		}
		m.stepOnce()
		if !m.playing {
			return m, nil
		}
		return m, tickCmd(m.interval)
	}
	return m, nil
}

func (m Playback) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Play):
		if m.err != nil || m.pos >= len(m.lines) {
			return m, nil
		}
		m.playing = !m.playing
		if m.playing {
			return m, tickCmd(m.interval)
		}
		return m, nil
	case key.Matches(msg, m.keys.Step):
		if !m.playing {
			m.stepOnce()
		}
		return m, nil
	case key.Matches(msg, m.keys.Faster):
		m.interval = clampInterval(m.interval / 2)
		return m, nil
	case key.Matches(msg, m.keys.Slower):
		m.interval = clampInterval(m.interval * 2)
		return m, nil
	}
	return m, nil
}

// stepOnce consumes the next recorded line and verifies the rebuild
// still matches it. A mismatch halts playback with the error shown.
func (m *Playback) stepOnce() {
	if m.pos >= len(m.lines) {
		m.playing = false
		return
	}
	line := m.lines[m.pos]

	var res session.StepResult
	if line.Reset {
		res = m.s.Reset()
		m.reward = 0
		m.events = m.events[:0]
		m.pushEvent(fmt.Sprintf("episode %d", res.State.Episode))
	} else {
		res = m.s.Step(session.Action(line.Action))
		m.reward += res.Reward
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
	m.state = res.State

	if got := m.s.StepCount(); got != line.Step {
		m.err = fmt.Errorf("step mismatch: want=%d got=%d", line.Step, got)
		m.playing = false
		return
	}
	if line.Digest != "" {
		if got := m.s.StateDigest(); got != line.Digest {
			m.err = fmt.Errorf("digest mismatch at step %d: got=%s want=%s", line.Step, got, line.Digest)
			m.playing = false
			return
		}
	}

	m.pos++
	if m.pos >= len(m.lines) {
		m.playing = false
		m.pushEvent("replay complete")
	}
}

func (m *Playback) pushEvent(e string) {
	m.events = append(m.events, e)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

func (m Playback) headerView() string {
	speed := float64(m.base) / float64(m.interval)
	head := titleStyle.Render("gridcraft") + dimStyle.Render(fmt.Sprintf(
		"  REPLAY %d/%d  %.2gx  reward %.2f", m.pos, len(m.lines), speed, m.reward))
	switch {
	case m.err != nil:
		head += alertStyle.Render("  VERIFY FAILED: " + m.err.Error())
	case m.pos >= len(m.lines):
		head += dimStyle.Render("  [END]")
	case !m.playing:
		head += alertStyle.Render("  [PAUSED]")
	}
	return head
}

func (m Playback) View() string {
	if m.quitting {
		return ""
	}
	frame := composeFrame(m.width, &m.state, m.rs, m.reward, m.events, true)
	return m.headerView() + "\n" + frame + "\n" + helpStyle.Render(m.help.View(m.keys))
}

// RunPlayback blocks until the viewer quits. A digest or step mismatch
// found during playback comes back as the error.
func RunPlayback(path string, speed float64, width, height int) error {
	m, err := NewPlayback(path, speed, width, height)
	if err != nil {
		return err
	}
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if pm, ok := final.(Playback); ok && pm.err != nil {
		return pm.err
	}
	return nil
}
