package protocol

// ACT (client -> server). Action takes canonical names and the short
// aliases the snapshot API accepts. Seq, when set, must grow per
// connection; it is echoed on the matching OBS.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq,omitempty"`
	Action          string `json:"action"`
}

// RESET (client -> server) starts the next episode.
type ResetMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq,omitempty"`
}

// OBS (server -> client). State carries the session observation as
// produced by the engine.
type ObsMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Seq             uint64   `json:"seq,omitempty"`
	Step            int      `json:"step"`
	Episode         int      `json:"episode"`
	Reward          float64  `json:"reward"`
	Done            bool     `json:"done"`
	DoneReason      string   `json:"done_reason,omitempty"`
	NewlyUnlocked   []string `json:"newly_unlocked,omitempty"`
	Events          []string `json:"events,omitempty"`
	State           any      `json:"state"`
}

// ERROR (server -> client). The connection stays open unless the
// transport says otherwise.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
