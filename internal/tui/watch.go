package tui

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"gridcraft.ai/internal/observerproto"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

// watchPingEvery keeps the server's idle deadline ahead of us; frame
// traffic alone can be sparse while the agent thinks.
const watchPingEvery = 30 * time.Second

// Watch renders a live gateway session as frames arrive over the
// spectator endpoint. Spectators only look; the agent on the other end
// owns the session.
type Watch struct {
	conn *websocket.Conn
	rs   *ruleset.Ruleset

	keys WatchKeyMap
	help help.Model

	sessionID string
	agentName string
	timeMode  string

	state     session.GameState
	haveState bool
	epReward  float64
	events    []string

	width  int
	height int

	quitting bool
	ended    bool
	err      error
}

type watchFrame struct {
	frame observerproto.FrameMsg
	state session.GameState
}

type watchEnded struct{}

type watchFailed struct{ err error }

type watchPing struct{}

// NewWatch dials the watch endpoint and subscribes to the session. The
// WATCHING ack names the profile; a digest mismatch fails rather than
// render with the wrong palette.
func NewWatch(url, sessionID string, width, height int) (Watch, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return Watch{}, fmt.Errorf("dial %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	sub, _ := json.Marshal(observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		SessionID:       sessionID,
	})
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		_ = conn.Close()
		return Watch{}, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return Watch{}, fmt.Errorf("waiting for WATCHING: %w", err)
	}
	var ack observerproto.WatchingMsg
	if err := json.Unmarshal(msg, &ack); err != nil || ack.Type != observerproto.TypeWatching {
		_ = conn.Close()
		var em observerproto.ErrorMsg
		if json.Unmarshal(msg, &em) == nil && em.Type == observerproto.TypeError {
			return Watch{}, fmt.Errorf("watch refused: %s", em.Message)
		}
		return Watch{}, fmt.Errorf("expected WATCHING, got something else")
	}

	rs, err := ruleset.ByName(ack.Ruleset)
	if err != nil {
		_ = conn.Close()
		return Watch{}, fmt.Errorf("session %s: %w", sessionID, err)
	}
	if rs.Digest != ack.RulesetDigest {
		_ = conn.Close()
		return Watch{}, fmt.Errorf("session took ruleset %s (%.12s), have %s (%.12s)",
			ack.Ruleset, ack.RulesetDigest, rs.Name, rs.Digest)
	}
	// Frames arrive whenever the agent acts; no client read deadline.
	_ = conn.SetReadDeadline(time.Time{})

	return Watch{
		conn:      conn,
		rs:        rs,
		keys:      DefaultWatchKeyMap(),
		help:      help.New(),
		sessionID: ack.SessionID,
		agentName: ack.AgentName,
		timeMode:  ack.TimeMode,
		width:     width,
		height:    height,
	}, nil
}

func (m Watch) Init() tea.Cmd {
	return tea.Batch(m.readCmd(), watchPingCmd())
}

// readCmd blocks on the connection until something worth drawing
// arrives. Each handled message schedules the next read.
func (m Watch) readCmd() tea.Cmd {
	conn := m.conn
	return func() tea.Msg {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					return watchEnded{}
				}
				return watchFailed{err: err}
			}
			var frame observerproto.FrameMsg
			if err := json.Unmarshal(msg, &frame); err != nil {
				continue
			}
			switch frame.Type {
			case observerproto.TypeFrame:
				var gs session.GameState
				if err := json.Unmarshal(frame.State, &gs); err != nil {
					return watchFailed{err: fmt.Errorf("bad frame state: %w", err)}
				}
				return watchFrame{frame: frame, state: gs}
			case observerproto.TypeError:
				var em observerproto.ErrorMsg
				_ = json.Unmarshal(msg, &em)
				if em.Code == observerproto.ErrSessionClosed {
					return watchEnded{}
				}
				return watchFailed{err: fmt.Errorf("%s: %s", em.Code, em.Message)}
			}
		}
	}
}

func watchPingCmd() tea.Cmd {
	return tea.Tick(watchPingEvery, func(time.Time) tea.Msg {
		return watchPing{}
	})
}

func (m Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			_ = m.conn.Close()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case watchFrame:
		m.apply(msg)
		return m, m.readCmd()
	case watchEnded:
		m.ended = true
		return m, nil
	case watchFailed:
		m.err = msg.err
		return m, nil
	case watchPing:
		if m.quitting || m.ended || m.err != nil {
			return m, nil
		}
		_ = m.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
		return m, watchPingCmd()
	}
	return m, nil
}

func (m *Watch) apply(wf watchFrame) {
	if m.haveState && wf.state.Episode != m.state.Episode {
		m.epReward = 0
		m.events = nil
		m.pushWatchEvent(fmt.Sprintf("episode %d", wf.state.Episode))
	}
	m.state = wf.state
	m.haveState = true
	m.epReward += wf.frame.Reward
	for _, name := range wf.frame.NewlyUnlocked {
		m.pushWatchEvent("unlocked: " + name)
	}
	for _, ev := range wf.frame.Events {
		m.pushWatchEvent(ev)
	}
	if wf.frame.Done && wf.frame.DoneReason != string(session.DoneReset) {
		m.pushWatchEvent("game over: " + wf.frame.DoneReason)
	}
}

func (m *Watch) pushWatchEvent(s string) {
	m.events = append(m.events, s)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

func (m Watch) headerView() string {
	head := titleStyle.Render("gridcraft") + dimStyle.Render(
		fmt.Sprintf("  WATCHING %s (%.8s)  step %d  episode %d  reward %.2f",
			m.agentName, m.sessionID, m.state.Step, m.state.Episode, m.epReward))
	switch {
	case m.err != nil:
		head += alertStyle.Render("  STREAM FAILED: " + m.err.Error())
	case m.ended:
		head += dimStyle.Render("  [ENDED]")
	case !m.haveState:
		head += dimStyle.Render("  waiting for frames")
	}
	return head
}

func (m Watch) View() string {
	if m.quitting {
		return ""
	}
	if !m.haveState {
		return m.headerView() + "\n\n" + helpStyle.Render(m.help.View(m.keys))
	}
	frame := composeFrame(m.width, &m.state, m.rs, m.epReward, m.events, true)
	return m.headerView() + "\n" + frame + "\n" + helpStyle.Render(m.help.View(m.keys))
}

// RunWatch connects to a gateway session and runs the spectator UI.
func RunWatch(url, sessionID string, width, height int) error {
	m, err := NewWatch(url, sessionID, width, height)
	if err != nil {
		return err
	}
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if wm, ok := final.(Watch); ok && wm.err != nil {
		return wm.err
	}
	return nil
}
