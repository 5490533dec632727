// Package ruleset defines the data-driven rule profile a session runs
// under: the versioned action set, the material palette, inventory items,
// recipes, placements and the achievement list. Profiles are YAML; the
// classic and extended profiles ship embedded, external ones load by path.
//
// The engine consumes only this data. Swapping a profile never requires a
// code change as long as the new profile sticks to the known action kinds.
package ruleset

import (
	"fmt"

	"gridcraft.ai/internal/sim/mathx"
)

// Action kinds understood by the session dispatcher.
const (
	KindNoop  = "noop"
	KindMove  = "move"
	KindDo    = "do"
	KindSleep = "sleep"
	KindPlace = "place"
	KindCraft = "craft"
)

// Zones the generator can target with ore placement.
const (
	ZoneMountain     = "mountain"
	ZoneDeepMountain = "deep_mountain"
)

type Ruleset struct {
	Version int    `yaml:"version"`
	Name    string `yaml:"name"`

	Actions      []ActionSpec `yaml:"actions"`
	Materials    []Material   `yaml:"materials"`
	Items        []string     `yaml:"items"`
	Achievements []string     `yaml:"achievements"`
	Recipes      []Recipe     `yaml:"recipes"`
	Placements   []Placement  `yaml:"placements"`

	Swords        []SwordTier   `yaml:"swords"`
	Pickaxes      []PickaxeTier `yaml:"pickaxes"`
	UnarmedDamage int           `yaml:"unarmed_damage"`
	InventoryCap  int           `yaml:"inventory_cap"`

	// Digest is the sha256 hex of the raw profile bytes, set by the loader.
	Digest string `yaml:"-"`

	materialIndex    map[string]uint8
	actionIndex      map[string]int
	achievementIndex map[string]int
	itemIndex        map[string]int
	recipeByAction   map[string]*Recipe
	placeByAction    map[string]*Placement
}

// ActionSpec is one entry of the versioned action set. The slice index is
// the wire id of the action; recordings and agents rely on it.
type ActionSpec struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	DX   int    `yaml:"dx,omitempty"`
	DY   int    `yaml:"dy,omitempty"`
}

// Material is one palette entry. The slice index is the tile value stored
// in the world grid.
type Material struct {
	Name     string `yaml:"name"`
	Glyph    string `yaml:"glyph"`
	Walkable bool   `yaml:"walkable,omitempty"`
	Deadly   bool   `yaml:"deadly,omitempty"`

	Mine   *MineRule   `yaml:"mine,omitempty"`
	Forage *ForageRule `yaml:"forage,omitempty"`
	Drink  bool        `yaml:"drink,omitempty"`
	Gen    *GenRule    `yaml:"gen,omitempty"`
}

// MineRule makes a material collectable with the do action.
type MineRule struct {
	Tier        int    `yaml:"tier"` // minimum pickaxe tier, 0 = bare hands
	Drop        string `yaml:"drop"`
	Into        string `yaml:"into"` // material left behind
	Achievement string `yaml:"achievement"`
}

// ForageRule grants an item probabilistically without changing the tile.
type ForageRule struct {
	Chance      float64 `yaml:"chance"`
	Drop        string  `yaml:"drop"`
	Achievement string  `yaml:"achievement"`
}

// GenRule places the material during generation inside the named zone.
type GenRule struct {
	Zone   string  `yaml:"zone"`
	Chance float64 `yaml:"chance"`
}

type Recipe struct {
	Action      string         `yaml:"action"`
	Product     string         `yaml:"product"`
	Cost        map[string]int `yaml:"cost"`
	Stations    []string       `yaml:"stations"`
	Achievement string         `yaml:"achievement"`
}

type Placement struct {
	Action      string         `yaml:"action"`
	Material    string         `yaml:"material,omitempty"`
	Object      string         `yaml:"object,omitempty"`
	Cost        map[string]int `yaml:"cost"`
	Achievement string         `yaml:"achievement"`
}

type SwordTier struct {
	Item   string `yaml:"item"`
	Damage int    `yaml:"damage"`
}

type PickaxeTier struct {
	Item string `yaml:"item"`
	Tier int    `yaml:"tier"`
}

// MaterialIndex returns the palette index for name.
func (r *Ruleset) MaterialIndex(name string) (uint8, bool) {
	i, ok := r.materialIndex[name]
	return i, ok
}

// MustMaterial returns the palette index for name and panics when the
// profile lacks it. Use only for materials that load-time validation
// guarantees exist.
func (r *Ruleset) MustMaterial(name string) uint8 {
	i, ok := r.materialIndex[name]
	if !ok {
		panic(fmt.Sprintf("ruleset %q: no material %q", r.Name, name))
	}
	return i
}

// MaterialAt returns the palette entry for a tile value.
func (r *Ruleset) MaterialAt(idx uint8) *Material {
	return &r.Materials[idx]
}

// ActionByName resolves an action name to its wire id.
func (r *Ruleset) ActionByName(name string) (int, bool) {
	i, ok := r.actionIndex[name]
	return i, ok
}

// ActionCount is the size of the action set.
func (r *Ruleset) ActionCount() int { return len(r.Actions) }

// AchievementIndex resolves an achievement name to its position in the
// canonical order.
func (r *Ruleset) AchievementIndex(name string) (int, bool) {
	i, ok := r.achievementIndex[name]
	return i, ok
}

// HasItem reports whether name is a legal inventory item.
func (r *Ruleset) HasItem(name string) bool {
	_, ok := r.itemIndex[name]
	return ok
}

// RecipeFor returns the recipe bound to a craft action.
func (r *Ruleset) RecipeFor(action string) (*Recipe, bool) {
	re, ok := r.recipeByAction[action]
	return re, ok
}

// PlacementFor returns the placement bound to a place action.
func (r *Ruleset) PlacementFor(action string) (*Placement, bool) {
	p, ok := r.placeByAction[action]
	return p, ok
}

// BestSwordDamage returns the damage of the strongest sword the owner
// holds, or the unarmed damage. has reports item possession.
func (r *Ruleset) BestSwordDamage(has func(item string) bool) int {
	for i := len(r.Swords) - 1; i >= 0; i-- {
		if has(r.Swords[i].Item) {
			return r.Swords[i].Damage
		}
	}
	return r.UnarmedDamage
}

// PickaxeTier returns the highest pickaxe tier the owner holds, 0 when
// bare handed.
func (r *Ruleset) PickaxeTier(has func(item string) bool) int {
	for i := len(r.Pickaxes) - 1; i >= 0; i-- {
		if has(r.Pickaxes[i].Item) {
			return r.Pickaxes[i].Tier
		}
	}
	return 0
}

func (r *Ruleset) buildIndexes() {
	r.materialIndex = make(map[string]uint8, len(r.Materials))
	for i, m := range r.Materials {
		r.materialIndex[m.Name] = uint8(i)
	}
	r.actionIndex = make(map[string]int, len(r.Actions))
	for i, a := range r.Actions {
		r.actionIndex[a.Name] = i
	}
	r.achievementIndex = make(map[string]int, len(r.Achievements))
	for i, a := range r.Achievements {
		r.achievementIndex[a] = i
	}
	r.itemIndex = make(map[string]int, len(r.Items))
	for i, it := range r.Items {
		r.itemIndex[it] = i
	}
	r.recipeByAction = make(map[string]*Recipe, len(r.Recipes))
	for i := range r.Recipes {
		r.recipeByAction[r.Recipes[i].Action] = &r.Recipes[i]
	}
	r.placeByAction = make(map[string]*Placement, len(r.Placements))
	for i := range r.Placements {
		r.placeByAction[r.Placements[i].Action] = &r.Placements[i]
	}
}

func (r *Ruleset) validate() error {
	if r.Version < 1 {
		return fmt.Errorf("version %d: must be >= 1", r.Version)
	}
	if r.Name == "" {
		return fmt.Errorf("missing name")
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("empty action set")
	}
	if r.Actions[0].Kind != KindNoop {
		return fmt.Errorf("action 0 must be the no-op, got %q", r.Actions[0].Name)
	}
	if r.InventoryCap <= 0 {
		return fmt.Errorf("inventory_cap %d: must be positive", r.InventoryCap)
	}
	if r.UnarmedDamage <= 0 {
		return fmt.Errorf("unarmed_damage %d: must be positive", r.UnarmedDamage)
	}

	seen := map[string]bool{}
	for i, a := range r.Actions {
		if a.Name == "" {
			return fmt.Errorf("action %d: empty name", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("action %q: duplicate", a.Name)
		}
		seen[a.Name] = true
		switch a.Kind {
		case KindNoop, KindDo, KindSleep:
		case KindMove:
			if mathx.AbsInt(a.DX)+mathx.AbsInt(a.DY) != 1 {
				return fmt.Errorf("action %q: move delta must be one cardinal step", a.Name)
			}
		case KindPlace:
			if _, ok := r.placeByAction[a.Name]; !ok {
				return fmt.Errorf("action %q: no placement entry", a.Name)
			}
		case KindCraft:
			if _, ok := r.recipeByAction[a.Name]; !ok {
				return fmt.Errorf("action %q: no recipe entry", a.Name)
			}
		default:
			return fmt.Errorf("action %q: unknown kind %q", a.Name, a.Kind)
		}
	}

	walkable := false
	seen = map[string]bool{}
	for i, m := range r.Materials {
		if m.Name == "" {
			return fmt.Errorf("material %d: empty name", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("material %q: duplicate", m.Name)
		}
		seen[m.Name] = true
		if len([]rune(m.Glyph)) != 1 {
			return fmt.Errorf("material %q: glyph must be one rune", m.Name)
		}
		if m.Walkable {
			walkable = true
		}
		if m.Mine != nil {
			if err := r.checkMine(m.Name, m.Mine); err != nil {
				return err
			}
		}
		if m.Forage != nil {
			if !r.hasItemName(m.Forage.Drop) {
				return fmt.Errorf("material %q: forage drop %q is not an item", m.Name, m.Forage.Drop)
			}
			if err := r.checkAchievement(m.Name, m.Forage.Achievement); err != nil {
				return err
			}
		}
		if m.Gen != nil {
			if m.Gen.Zone != ZoneMountain && m.Gen.Zone != ZoneDeepMountain {
				return fmt.Errorf("material %q: unknown gen zone %q", m.Name, m.Gen.Zone)
			}
			if m.Gen.Chance <= 0 || m.Gen.Chance >= 1 {
				return fmt.Errorf("material %q: gen chance %v out of (0,1)", m.Name, m.Gen.Chance)
			}
		}
	}
	if !walkable {
		return fmt.Errorf("no walkable material")
	}
	// The session hardcodes grass as the placement target and path as
	// what smashed stations collapse into.
	for _, required := range []string{"grass", "path"} {
		if _, ok := r.materialIndex[required]; !ok {
			return fmt.Errorf("missing required material %q", required)
		}
	}

	seen = map[string]bool{}
	for i, it := range r.Items {
		if it == "" {
			return fmt.Errorf("item %d: empty name", i)
		}
		if seen[it] {
			return fmt.Errorf("item %q: duplicate", it)
		}
		seen[it] = true
	}

	seen = map[string]bool{}
	for i, a := range r.Achievements {
		if a == "" {
			return fmt.Errorf("achievement %d: empty name", i)
		}
		if seen[a] {
			return fmt.Errorf("achievement %q: duplicate", a)
		}
		seen[a] = true
	}

	for _, re := range r.Recipes {
		if _, ok := r.actionIndex[re.Action]; !ok {
			return fmt.Errorf("recipe %q: no such action", re.Action)
		}
		if !r.hasItemName(re.Product) {
			return fmt.Errorf("recipe %q: product %q is not an item", re.Action, re.Product)
		}
		if len(re.Cost) == 0 {
			return fmt.Errorf("recipe %q: empty cost", re.Action)
		}
		for item, n := range re.Cost {
			if !r.hasItemName(item) {
				return fmt.Errorf("recipe %q: cost item %q unknown", re.Action, item)
			}
			if n <= 0 {
				return fmt.Errorf("recipe %q: cost %q must be positive", re.Action, item)
			}
		}
		for _, st := range re.Stations {
			if _, ok := r.materialIndex[st]; !ok {
				return fmt.Errorf("recipe %q: station %q is not a material", re.Action, st)
			}
		}
		if err := r.checkAchievement(re.Action, re.Achievement); err != nil {
			return err
		}
	}

	for _, p := range r.Placements {
		if _, ok := r.actionIndex[p.Action]; !ok {
			return fmt.Errorf("placement %q: no such action", p.Action)
		}
		if (p.Material == "") == (p.Object == "") {
			return fmt.Errorf("placement %q: exactly one of material or object", p.Action)
		}
		if p.Material != "" {
			if _, ok := r.materialIndex[p.Material]; !ok {
				return fmt.Errorf("placement %q: material %q unknown", p.Action, p.Material)
			}
		}
		if p.Object != "" && p.Object != "plant" {
			return fmt.Errorf("placement %q: unknown object %q", p.Action, p.Object)
		}
		for item, n := range p.Cost {
			if !r.hasItemName(item) {
				return fmt.Errorf("placement %q: cost item %q unknown", p.Action, item)
			}
			if n <= 0 {
				return fmt.Errorf("placement %q: cost %q must be positive", p.Action, item)
			}
		}
		if err := r.checkAchievement(p.Action, p.Achievement); err != nil {
			return err
		}
	}

	for i, s := range r.Swords {
		if !r.hasItemName(s.Item) {
			return fmt.Errorf("sword %q is not an item", s.Item)
		}
		if i > 0 && s.Damage <= r.Swords[i-1].Damage {
			return fmt.Errorf("sword damage must ascend, %q breaks the order", s.Item)
		}
	}
	for i, p := range r.Pickaxes {
		if !r.hasItemName(p.Item) {
			return fmt.Errorf("pickaxe %q is not an item", p.Item)
		}
		if i > 0 && p.Tier <= r.Pickaxes[i-1].Tier {
			return fmt.Errorf("pickaxe tier must ascend, %q breaks the order", p.Item)
		}
	}
	return nil
}

func (r *Ruleset) checkMine(mat string, m *MineRule) error {
	if m.Tier < 0 {
		return fmt.Errorf("material %q: negative mine tier", mat)
	}
	if !r.hasItemName(m.Drop) {
		return fmt.Errorf("material %q: mine drop %q is not an item", mat, m.Drop)
	}
	if _, ok := r.materialIndex[m.Into]; !ok {
		return fmt.Errorf("material %q: mines into unknown material %q", mat, m.Into)
	}
	return r.checkAchievement(mat, m.Achievement)
}

func (r *Ruleset) checkAchievement(owner, name string) error {
	if name == "" {
		return fmt.Errorf("%q: empty achievement", owner)
	}
	if _, ok := r.achievementIndex[name]; !ok {
		return fmt.Errorf("%q: achievement %q not in the achievement list", owner, name)
	}
	return nil
}

func (r *Ruleset) hasItemName(name string) bool {
	_, ok := r.itemIndex[name]
	return ok
}
