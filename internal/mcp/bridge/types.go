package bridge

import "encoding/json"

// Status is the answer to gridcraft.get_status. LastStep and
// LastEpisode track the newest OBS seen on the wire, not the engine's
// internal counters.
type Status struct {
	Connected     bool   `json:"connected"`
	Paused        bool   `json:"paused,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	AgentName     string `json:"agent_name"`
	GatewayWSURL  string `json:"gateway_ws_url"`
	Ruleset       string `json:"ruleset,omitempty"`
	RulesetDigest string `json:"ruleset_digest,omitempty"`
	TimeMode      string `json:"time_mode,omitempty"`
	LastStep      int    `json:"last_step"`
	LastEpisode   int    `json:"last_episode,omitempty"`
	LastError     string `json:"last_error,omitempty"`
}

// ObsMode selects how much of the observation gridcraft.get_obs
// returns.
type ObsMode string

const (
	// ObsModeFull returns the raw OBS frame, tile grid included.
	ObsModeFull ObsMode = "full"
	// ObsModeSummary strips the tile grid and truncates the event log.
	ObsModeSummary ObsMode = "summary"
)

// GetObsOpts are the arguments of gridcraft.get_obs. The zero value
// means: summary mode, newest cached frame, 2s wait budget.
type GetObsOpts struct {
	Mode        ObsMode `json:"mode,omitempty"`
	WaitNewStep bool    `json:"wait_new_step,omitempty"`
	TimeoutMS   int     `json:"timeout_ms,omitempty"`
}

// ObsResult carries one observation frame. Obs is nil when no frame
// has arrived yet; logical-time sessions stay silent until the first
// act or reset.
type ObsResult struct {
	Step    int             `json:"step"`
	Episode int             `json:"episode"`
	Obs     json.RawMessage `json:"obs"`
}

// CatalogResult is one named slice of the active profile. Digest is
// the profile digest the gateway announced, so agents can cache
// catalogs across sessions.
type CatalogResult struct {
	Name   string          `json:"name"`
	Digest string          `json:"digest"`
	Data   json.RawMessage `json:"data"`
}

// ActArgs are the arguments of gridcraft.act.
type ActArgs struct {
	Action string `json:"action"`
}

// ActResult reports the OBS that acknowledged the action.
type ActResult struct {
	Seq           uint64   `json:"seq"`
	Step          int      `json:"step"`
	Episode       int      `json:"episode"`
	Reward        float64  `json:"reward"`
	Done          bool     `json:"done"`
	DoneReason    string   `json:"done_reason,omitempty"`
	NewlyUnlocked []string `json:"newly_unlocked,omitempty"`
}

// ResetResult reports the OBS that acknowledged the reset.
type ResetResult struct {
	Seq     uint64 `json:"seq"`
	Step    int    `json:"step"`
	Episode int    `json:"episode"`
}
