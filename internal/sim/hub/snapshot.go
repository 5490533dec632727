package hub

import (
	"strings"

	"gridcraft.ai/internal/sim/session"
	"gridcraft.ai/internal/sim/world"
)

// SnapshotRequest names a session to drive and the actions to apply.
// Seed and ViewSize only matter when this request ends up creating the
// session; an absent seed means OS entropy.
type SnapshotRequest struct {
	SessionID string   `json:"session_id,omitempty"`
	Seed      *uint64  `json:"seed,omitempty"`
	Actions   []string `json:"actions,omitempty"`
	ViewSize  *int     `json:"view_size,omitempty"`
}

// Entity is a creature visible from the player's position.
type Entity struct {
	Kind   string    `json:"kind"`
	Pos    world.Pos `json:"pos"`
	Health int       `json:"health"`
}

// Stats mirrors the player's vitals.
type Stats struct {
	Health int `json:"health"`
	Food   int `json:"food"`
	Drink  int `json:"drink"`
	Energy int `json:"energy"`
}

// LegendEntry explains one map character.
type LegendEntry struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// SnapshotResponse describes the session after the request's actions
// ran. Reward and NewlyUnlocked cover only those actions; everything
// else is current state.
type SnapshotResponse struct {
	SessionID  string `json:"session_id"`
	Step       int    `json:"step"`
	Episode    int    `json:"episode"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`

	PlayerPos    world.Pos      `json:"player_pos"`
	PlayerFacing world.Pos      `json:"player_facing"`
	Stats        Stats          `json:"stats"`
	Inventory    map[string]int `json:"inventory"`

	MapLines  []string      `json:"map_lines"`
	MapLegend []LegendEntry `json:"map_legend"`
	Entities  []Entity      `json:"entities"`

	Achievements  []string `json:"achievements"`
	NewlyUnlocked []string `json:"newly_unlocked"`
	Reward        float64  `json:"reward"`

	AvailableActions []string `json:"available_actions"`
	Hints            []string `json:"hints"`
}

func buildResponse(id string, s *session.Session, newly []string, reward float64) *SnapshotResponse {
	rs := s.Ruleset()
	p := s.PlayerState()
	done, reason := s.Done()

	inv := make(map[string]int, len(rs.Items))
	for _, item := range rs.Items {
		inv[item] = p.Item(item)
	}

	var unlocked []string
	for _, name := range rs.Achievements {
		if s.AchievementCount(name) > 0 {
			unlocked = append(unlocked, name)
		}
	}

	avail := make([]string, 0, rs.ActionCount()-1)
	for _, a := range rs.Actions[1:] {
		avail = append(avail, a.Name)
	}

	return &SnapshotResponse{
		SessionID:    id,
		Step:         s.StepCount(),
		Episode:      s.Episode(),
		Done:         done,
		DoneReason:   string(reason),
		PlayerPos:    s.World().Player().Pos,
		PlayerFacing: p.Facing,
		Stats: Stats{
			Health: p.Health,
			Food:   p.Food,
			Drink:  p.Drink,
			Energy: p.Energy,
		},
		Inventory:        inv,
		MapLines:         mapLines(s),
		MapLegend:        mapLegend(s),
		Entities:         entities(s),
		Achievements:     unlocked,
		NewlyUnlocked:    newly,
		Reward:           reward,
		AvailableActions: avail,
		Hints:            hints(s),
	}
}

// mapLines draws the player-centered window. The player is always the
// center glyph, any creature collapses to 'M', tiles use their palette
// glyph and the world edge reads as spaces. Arrows and plants stay
// invisible here; the entities list carries precise positions.
func mapLines(s *session.Session) []string {
	w := s.World()
	rs := s.Ruleset()
	center := w.Player().Pos
	r := s.Config().ViewRadius

	creatures := make(map[world.Pos]bool)
	for _, id := range w.KindIDs(world.KindCow, world.KindZombie, world.KindSkeleton) {
		creatures[w.Object(id).Pos] = true
	}

	lines := make([]string, 0, 2*r+1)
	for dy := -r; dy <= r; dy++ {
		row := make([]rune, 0, 2*r+1)
		for dx := -r; dx <= r; dx++ {
			p := world.Pos{X: center.X + dx, Y: center.Y + dy}
			switch {
			case dx == 0 && dy == 0:
				row = append(row, '@')
			case creatures[p]:
				row = append(row, 'M')
			default:
				if idx, ok := w.MaterialIdx(p); ok {
					row = append(row, []rune(rs.Materials[idx].Glyph)[0])
				} else {
					row = append(row, ' ')
				}
			}
		}
		lines = append(lines, string(row))
	}
	return lines
}

func mapLegend(s *session.Session) []LegendEntry {
	rs := s.Ruleset()
	entries := make([]LegendEntry, 0, len(rs.Materials)+2)
	entries = append(entries, LegendEntry{Label: "@", Value: "Player"})
	for _, m := range rs.Materials {
		entries = append(entries, LegendEntry{Label: m.Glyph, Value: capitalize(m.Name)})
	}
	entries = append(entries, LegendEntry{Label: "M", Value: "Mob"})
	return entries
}

func entities(s *session.Session) []Entity {
	w := s.World()
	center := w.Player().Pos
	reach := 2*s.Config().ViewRadius + 1

	var ents []Entity
	for _, id := range w.KindIDs(world.KindCow, world.KindZombie, world.KindSkeleton) {
		o := w.Object(id)
		if center.Manhattan(o.Pos) <= reach {
			ents = append(ents, Entity{Kind: o.Kind.String(), Pos: o.Pos, Health: o.Health})
		}
	}
	return ents
}

// hints nudges fresh agents down the wood-table-tools opening and
// points at sleep when health runs low. They are advisory text, never
// consumed by the engine.
func hints(s *session.Session) []string {
	p := s.PlayerState()
	var out []string
	if p.Item("wood") < 2 && p.Item("wood_pickaxe") == 0 {
		out = append(out, "Collect wood by facing a tree and using 'do'")
	}
	if p.Item("wood") >= 2 && s.AchievementCount("place_table") == 0 {
		out = append(out, "Place a crafting table with 'place_table' (needs 2 wood)")
	}
	if p.Item("wood") >= 1 && p.Item("wood_pickaxe") == 0 && s.AchievementCount("place_table") > 0 {
		out = append(out, "Make a wood pickaxe with 'make_wood_pickaxe' while near table")
	}
	if p.Item("wood") >= 1 && p.Item("wood_sword") == 0 && s.AchievementCount("place_table") > 0 {
		out = append(out, "Make a wood sword with 'make_wood_sword' while near table")
	}
	if p.Health < 5 && p.Food > 2 {
		out = append(out, "Use 'sleep' to restore health (consumes food)")
	}
	return out
}

func capitalize(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
