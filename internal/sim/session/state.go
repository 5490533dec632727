package session

import "gridcraft.ai/internal/sim/world"

// GameState is the observation handed to agents and renderers after each
// tick. Exactly one of View or Full is set, per the config.
type GameState struct {
	Step     int     `json:"step"`
	Episode  int     `json:"episode"`
	Daylight float64 `json:"daylight"`

	PlayerPos world.Pos `json:"player_pos"`
	Facing    world.Pos `json:"facing"`
	Sleeping  bool      `json:"sleeping"`

	Health int `json:"health"`
	Food   int `json:"food"`
	Drink  int `json:"drink"`
	Energy int `json:"energy"`

	Items map[string]int `json:"items"`
	// Achievements holds only the non-zero counters, keyed by name.
	Achievements map[string]int `json:"achievements"`

	View *world.View  `json:"view,omitempty"`
	Full *world.State `json:"full,omitempty"`

	Done       bool       `json:"done"`
	DoneReason DoneReason `json:"done_reason,omitempty"`
}

// State captures the current observation.
func (s *Session) State() GameState {
	p := s.world.Player()
	gs := GameState{
		Step:       s.step,
		Episode:    s.episode,
		Daylight:   s.daylight,
		PlayerPos:  p.Pos,
		Facing:     s.player.Facing,
		Sleeping:   s.player.Sleeping,
		Health:     s.player.Health,
		Food:       s.player.Food,
		Drink:      s.player.Drink,
		Energy:     s.player.Energy,
		Items:      make(map[string]int, len(s.player.Items)),
		Done:       s.done,
		DoneReason: s.doneReason,
	}
	for item, n := range s.player.Items {
		if n > 0 {
			gs.Items[item] = n
		}
	}
	gs.Achievements = make(map[string]int)
	for i, name := range s.rs.Achievements {
		if s.achievements[i] > 0 {
			gs.Achievements[name] = s.achievements[i]
		}
	}
	if s.cfg.FullWorldState {
		st := s.world.ExportState()
		gs.Full = &st
	} else {
		v := s.world.View(p.Pos, s.cfg.ViewRadius)
		gs.View = &v
	}
	return gs
}

// AchievementCount returns the counter for one achievement.
func (s *Session) AchievementCount(name string) int {
	if i, ok := s.rs.AchievementIndex(name); ok {
		return s.achievements[i]
	}
	return 0
}

// AchievementTotal counts distinct achievements unlocked this episode.
func (s *Session) AchievementTotal() int {
	n := 0
	for _, c := range s.achievements {
		if c > 0 {
			n++
		}
	}
	return n
}
