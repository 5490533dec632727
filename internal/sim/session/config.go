package session

import (
	"fmt"

	"gridcraft.ai/internal/sim/world"
)

// TimeModeKind selects how a session consumes wall time.
type TimeModeKind string

const (
	// TimeLogical steps only when Step is called. Advance is a no-op.
	TimeLogical TimeModeKind = "logical"
	// TimeRealTime steps at a fixed rate from Advance, replaying the
	// last set action.
	TimeRealTime TimeModeKind = "real_time"
	// TimeHybrid steps like real time but also accepts manual steps.
	TimeHybrid TimeModeKind = "hybrid"
)

type TimeMode struct {
	Kind              TimeModeKind `yaml:"kind" json:"kind"`
	TicksPerSecond    float64      `yaml:"ticks_per_second,omitempty" json:"ticks_per_second,omitempty"`
	PauseOnDisconnect bool         `yaml:"pause_on_disconnect,omitempty" json:"pause_on_disconnect,omitempty"`
	AllowManualStep   bool         `yaml:"allow_manual_step,omitempty" json:"allow_manual_step,omitempty"`
}

// Config fixes every knob of a session. It is immutable once the session
// exists; a changed config means a new session.
type Config struct {
	WorldWidth  int     `yaml:"world_width" json:"world_width"`
	WorldHeight int     `yaml:"world_height" json:"world_height"`
	Seed        *uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`
	ChunkWidth  int     `yaml:"chunk_width" json:"chunk_width"`
	ChunkHeight int     `yaml:"chunk_height" json:"chunk_height"`

	TreeDensity     float64 `yaml:"tree_density" json:"tree_density"`
	CoalDensity     float64 `yaml:"coal_density" json:"coal_density"`
	IronDensity     float64 `yaml:"iron_density" json:"iron_density"`
	DiamondDensity  float64 `yaml:"diamond_density" json:"diamond_density"`
	CowDensity      float64 `yaml:"cow_density" json:"cow_density"`
	ZombieDensity   float64 `yaml:"zombie_density" json:"zombie_density"`
	SkeletonDensity float64 `yaml:"skeleton_density" json:"skeleton_density"`

	ZombieSpawnRate   float64 `yaml:"zombie_spawn_rate" json:"zombie_spawn_rate"`
	ZombieDespawnRate float64 `yaml:"zombie_despawn_rate" json:"zombie_despawn_rate"`
	CowSpawnRate      float64 `yaml:"cow_spawn_rate" json:"cow_spawn_rate"`
	CowDespawnRate    float64 `yaml:"cow_despawn_rate" json:"cow_despawn_rate"`

	MaxSteps       *int `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`
	DayNightCycle  bool `yaml:"day_night_cycle" json:"day_night_cycle"`
	DayCyclePeriod int  `yaml:"day_cycle_period" json:"day_cycle_period"`

	HungerEnabled  bool `yaml:"hunger_enabled" json:"hunger_enabled"`
	ThirstEnabled  bool `yaml:"thirst_enabled" json:"thirst_enabled"`
	FatigueEnabled bool `yaml:"fatigue_enabled" json:"fatigue_enabled"`
	// HungerRate is the number of ticks between food decrements while
	// awake; ThirstRate likewise for drink.
	HungerRate int `yaml:"hunger_rate" json:"hunger_rate"`
	ThirstRate int `yaml:"thirst_rate" json:"thirst_rate"`

	PlayerDamageMult float64 `yaml:"player_damage_mult" json:"player_damage_mult"`
	ZombieDamageMult float64 `yaml:"zombie_damage_mult" json:"zombie_damage_mult"`
	ArrowDamageMult  float64 `yaml:"arrow_damage_mult" json:"arrow_damage_mult"`

	CowHealth      int `yaml:"cow_health" json:"cow_health"`
	ZombieHealth   int `yaml:"zombie_health" json:"zombie_health"`
	SkeletonHealth int `yaml:"skeleton_health" json:"skeleton_health"`

	ViewRadius     int  `yaml:"view_radius" json:"view_radius"`
	FullWorldState bool `yaml:"full_world_state" json:"full_world_state"`

	Time TimeMode `yaml:"time" json:"time"`
}

// DefaultConfig is the reference survival setup.
func DefaultConfig() Config {
	maxSteps := 10000
	return Config{
		WorldWidth:  64,
		WorldHeight: 64,
		ChunkWidth:  12,
		ChunkHeight: 12,

		TreeDensity:     1,
		CoalDensity:     1,
		IronDensity:     1,
		DiamondDensity:  1,
		CowDensity:      1,
		ZombieDensity:   1,
		SkeletonDensity: 1,

		ZombieSpawnRate:   0.3,
		ZombieDespawnRate: 0.4,
		CowSpawnRate:      0.01,
		CowDespawnRate:    0.01,

		MaxSteps:       &maxSteps,
		DayNightCycle:  true,
		DayCyclePeriod: 300,

		HungerEnabled:  true,
		ThirstEnabled:  true,
		FatigueEnabled: true,
		HungerRate:     25,
		ThirstRate:     20,

		PlayerDamageMult: 1,
		ZombieDamageMult: 1,
		ArrowDamageMult:  1,

		CowHealth:      3,
		ZombieHealth:   5,
		SkeletonHealth: 3,

		ViewRadius: 4,

		Time: TimeMode{Kind: TimeLogical},
	}
}

// FastTraining strips the survival pressure for cheap RL rollouts: short
// episodes, no day cycle, no life stat drain.
func FastTraining() Config {
	c := DefaultConfig()
	maxSteps := 1000
	c.MaxSteps = &maxSteps
	c.DayNightCycle = false
	c.HungerEnabled = false
	c.ThirstEnabled = false
	c.FatigueEnabled = false
	c.Time = TimeMode{Kind: TimeLogical}
	return c
}

// HumanPlay runs in real time with the whole world visible.
func HumanPlay() Config {
	c := DefaultConfig()
	c.FullWorldState = true
	c.Time = TimeMode{
		Kind:              TimeRealTime,
		TicksPerSecond:    10,
		PauseOnDisconnect: true,
	}
	return c
}

// Easy halves the hostile pressure and slows the vitals drain.
func Easy() Config {
	c := DefaultConfig()
	c.ZombieDensity = 0.5
	c.SkeletonDensity = 0.5
	c.ZombieDamageMult = 0.5
	c.ArrowDamageMult = 0.5
	c.HungerRate = 50
	c.ThirstRate = 40
	return c
}

// Hard doubles the hostiles, raises their damage and starves faster.
func Hard() Config {
	c := DefaultConfig()
	c.ZombieDensity = 2
	c.SkeletonDensity = 2
	c.ZombieDamageMult = 1.5
	c.ArrowDamageMult = 1.5
	c.HungerRate = 15
	c.ThirstRate = 12
	c.DiamondDensity = 0.5
	return c
}

// PresetByName resolves the named preset. An empty name means default.
func PresetByName(name string) (Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "fast_training":
		return FastTraining(), nil
	case "human_play":
		return HumanPlay(), nil
	case "easy":
		return Easy(), nil
	case "hard":
		return Hard(), nil
	}
	return Config{}, fmt.Errorf("unknown preset %q", name)
}

// PresetNames lists the presets in a stable order.
func PresetNames() []string {
	return []string{"default", "fast_training", "human_play", "easy", "hard"}
}

func (c *Config) validate() error {
	if c.WorldWidth < 8 || c.WorldHeight < 8 {
		return fmt.Errorf("world %dx%d: minimum is 8x8", c.WorldWidth, c.WorldHeight)
	}
	if c.ChunkWidth <= 0 || c.ChunkHeight <= 0 {
		return fmt.Errorf("chunk %dx%d: must be positive", c.ChunkWidth, c.ChunkHeight)
	}
	if c.ViewRadius < 1 {
		return fmt.Errorf("view radius %d: minimum is 1", c.ViewRadius)
	}
	if c.MaxSteps != nil && *c.MaxSteps <= 0 {
		return fmt.Errorf("max steps %d: must be positive or unset", *c.MaxSteps)
	}
	if c.DayNightCycle && c.DayCyclePeriod <= 0 {
		return fmt.Errorf("day cycle period %d: must be positive", c.DayCyclePeriod)
	}
	if c.HungerEnabled && c.HungerRate <= 0 {
		return fmt.Errorf("hunger rate %d: must be positive", c.HungerRate)
	}
	if c.ThirstEnabled && c.ThirstRate <= 0 {
		return fmt.Errorf("thirst rate %d: must be positive", c.ThirstRate)
	}
	for name, v := range map[string]float64{
		"tree_density":     c.TreeDensity,
		"coal_density":     c.CoalDensity,
		"iron_density":     c.IronDensity,
		"diamond_density":  c.DiamondDensity,
		"cow_density":      c.CowDensity,
		"zombie_density":   c.ZombieDensity,
		"skeleton_density": c.SkeletonDensity,
		"player_damage":    c.PlayerDamageMult,
		"zombie_damage":    c.ZombieDamageMult,
		"arrow_damage":     c.ArrowDamageMult,
	} {
		if v < 0 {
			return fmt.Errorf("%s: negative multiplier %v", name, v)
		}
	}
	if c.CowHealth <= 0 || c.ZombieHealth <= 0 || c.SkeletonHealth <= 0 {
		return fmt.Errorf("creature health must be positive")
	}
	switch c.Time.Kind {
	case TimeLogical:
	case TimeRealTime, TimeHybrid:
		if c.Time.TicksPerSecond <= 0 {
			return fmt.Errorf("time mode %s: ticks_per_second must be positive", c.Time.Kind)
		}
	default:
		return fmt.Errorf("unknown time mode %q", c.Time.Kind)
	}
	return nil
}

// spawnClearRadius keeps the start area free of generated creatures.
const spawnClearRadius = 10

func (c *Config) genParams() world.GenParams {
	return world.GenParams{
		Width:       c.WorldWidth,
		Height:      c.WorldHeight,
		ChunkW:      c.ChunkWidth,
		ChunkH:      c.ChunkHeight,
		TreeDensity: c.TreeDensity,
		OreDensity: map[string]float64{
			"coal":    c.CoalDensity,
			"iron":    c.IronDensity,
			"diamond": c.DiamondDensity,
		},
		CowDensity:      c.CowDensity,
		ZombieDensity:   c.ZombieDensity,
		SkeletonDensity: c.SkeletonDensity,
		CowHealth:       c.CowHealth,
		ZombieHealth:    c.ZombieHealth,
		SkeletonHealth:  c.SkeletonHealth,
		ClearRadius:     spawnClearRadius,
	}
}
