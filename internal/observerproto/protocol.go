// Package observerproto defines the read-only spectator wire format.
// A spectator subscribes to one live gateway session by id and
// receives every observation frame that session's agent receives,
// without the ability to act. The version is independent of the agent
// protocol so viewers can trail agent rollouts.
package observerproto

import "encoding/json"

const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeWatching  = "WATCHING"
	TypeFrame     = "FRAME"
	TypeError     = "ERROR"
)

// Error codes carried by ErrorMsg.
const (
	ErrUnknownSession = "unknown_session"
	ErrSessionClosed  = "session_closed"
)

// SubscribeMsg is the first message on the watch connection. Re-sent,
// it switches the connection to another session.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
}

// WatchingMsg acknowledges a subscribe with the session identity.
type WatchingMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	AgentName       string `json:"agent_name"`
	Ruleset         string `json:"ruleset"`
	RulesetDigest   string `json:"ruleset_digest"`
	TimeMode        string `json:"time_mode"`
}

// FrameMsg is one executed step of the watched session. State carries
// the same observation payload the agent receives.
type FrameMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	Step            int             `json:"step"`
	Episode         int             `json:"episode"`
	Reward          float64         `json:"reward"`
	Done            bool            `json:"done"`
	DoneReason      string          `json:"done_reason,omitempty"`
	NewlyUnlocked   []string        `json:"newly_unlocked,omitempty"`
	Events          []string        `json:"events,omitempty"`
	State           json.RawMessage `json:"state"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// SessionInfo is one watchable session in the HTTP listing.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	AgentName string `json:"agent_name"`
	Ruleset   string `json:"ruleset"`
	TimeMode  string `json:"time_mode"`
	Step      int    `json:"step"`
	Episode   int    `json:"episode"`
}

// BootstrapResponse answers GET /v1/watch/sessions.
type BootstrapResponse struct {
	ProtocolVersion string        `json:"protocol_version"`
	Sessions        []SessionInfo `json:"sessions"`
}
