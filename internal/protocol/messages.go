package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	AgentName       string           `json:"agent_name"`
	Ruleset         string           `json:"ruleset,omitempty"`
	Preset          string           `json:"preset,omitempty"`
	Seed            *uint64          `json:"seed,omitempty"`
	Overrides       *ConfigOverrides `json:"overrides,omitempty"`
}

// ConfigOverrides tweaks individual preset knobs. Nil fields keep the
// preset value.
type ConfigOverrides struct {
	ViewRadius     *int  `json:"view_radius,omitempty"`
	MaxSteps       *int  `json:"max_steps,omitempty"`
	FullWorldState *bool `json:"full_world_state,omitempty"`
	DayNightCycle  *bool `json:"day_night_cycle,omitempty"`
	HungerEnabled  *bool `json:"hunger_enabled,omitempty"`
	ThirstEnabled  *bool `json:"thirst_enabled,omitempty"`
	FatigueEnabled *bool `json:"fatigue_enabled,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	AgentName       string      `json:"agent_name,omitempty"`
	WorldParams     WorldParams `json:"world_params"`
	Ruleset         RulesetRef  `json:"ruleset"`
	Actions         []string    `json:"actions"`
}

type WorldParams struct {
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	ViewRadius     int     `json:"view_radius"`
	FullWorldState bool    `json:"full_world_state,omitempty"`
	Seed           uint64  `json:"seed"`
	MaxSteps       int     `json:"max_steps,omitempty"`
	TimeMode       string  `json:"time_mode"`
	TicksPerSecond float64 `json:"ticks_per_second,omitempty"`
}

// RulesetRef identifies the profile a session runs under. Digest is
// the sha256 hex of the profile source; a client that caches profiles
// can key on it.
type RulesetRef struct {
	Name         string `json:"name"`
	Digest       string `json:"digest"`
	Actions      int    `json:"actions"`
	Achievements int    `json:"achievements"`
}
