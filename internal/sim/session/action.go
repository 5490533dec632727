package session

import (
	"fmt"

	"gridcraft.ai/internal/sim/ruleset"
)

// Action indexes into the ruleset action table. Index 0 is always noop.
type Action int

const Noop Action = 0

// ActionByName resolves a name from the given ruleset to its index.
func ActionByName(rs *ruleset.Ruleset, name string) (Action, error) {
	i, ok := rs.ActionByName(name)
	if !ok {
		return 0, fmt.Errorf("unknown action %q", name)
	}
	return Action(i), nil
}

// ActionName returns the canonical name, or "" for an out-of-range index.
func ActionName(rs *ruleset.Ruleset, a Action) string {
	if int(a) < 0 || int(a) >= rs.ActionCount() {
		return ""
	}
	return rs.Actions[a].Name
}
