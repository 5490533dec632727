package hub

import (
	"strings"

	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

// actionAliases maps the shorthand agents actually type to canonical
// action names. Canonical names always resolve, alias or not.
var actionAliases = map[string]string{
	"wait":        "noop",
	"l":           "move_left",
	"left":        "move_left",
	"r":           "move_right",
	"right":       "move_right",
	"u":           "move_up",
	"up":          "move_up",
	"d":           "move_down",
	"down":        "move_down",
	"interact":    "do",
	"table":       "place_table",
	"furnace":     "place_furnace",
	"stone":       "place_stone",
	"plant":       "place_plant",
	"pick":        "make_wood_pickaxe",
	"wood_pick":   "make_wood_pickaxe",
	"spick":       "make_stone_pickaxe",
	"stone_pick":  "make_stone_pickaxe",
	"ipick":       "make_iron_pickaxe",
	"iron_pick":   "make_iron_pickaxe",
	"sword":       "make_wood_sword",
	"wood_sword":  "make_wood_sword",
	"ssword":      "make_stone_sword",
	"stone_sword": "make_stone_sword",
	"isword":      "make_iron_sword",
	"iron_sword":  "make_iron_sword",
}

// ResolveAction turns a canonical name or alias into an action index
// under the given profile. Matching ignores case and surrounding space.
func ResolveAction(rs *ruleset.Ruleset, name string) (session.Action, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := actionAliases[n]; ok {
		n = canonical
	}
	return session.ActionByName(rs, n)
}
