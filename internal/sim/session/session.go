// Package session runs one survival episode at a time: a generated world,
// a single player, hostile and passive creatures, and a deterministic
// tick pipeline. Every random decision comes from one seeded stream, so
// two sessions with the same config, seed and action sequence produce
// identical states tick for tick.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"

	"gridcraft.ai/internal/sim/rng"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/world"
)

// DoneReason says why an episode stopped.
type DoneReason string

const (
	DoneNone     DoneReason = ""
	DoneDeath    DoneReason = "death"
	DoneMaxSteps DoneReason = "max_steps"
	// DoneReset marks a state produced by an external reset rather than
	// by the episode itself ending.
	DoneReset DoneReason = "reset"
)

// StepResult is what one tick hands back to the caller.
type StepResult struct {
	State         GameState  `json:"state"`
	Reward        float64    `json:"reward"`
	Done          bool       `json:"done"`
	DoneReason    DoneReason `json:"done_reason,omitempty"`
	NewlyUnlocked []string   `json:"newly_unlocked,omitempty"`
	Events        []string   `json:"events,omitempty"`
}

// Session is a single-agent episode driver. Not safe for concurrent use;
// the hub serializes access.
type Session struct {
	cfg Config
	rs  *ruleset.Ruleset

	world  *world.World
	player Player
	rng    *rng.Stream

	step     int
	episode  int
	daylight float64

	achievements []int
	prevAch      []int

	done       bool
	doneReason DoneReason

	events []string

	lastAction Action
	clock      clock

	masterSeed uint64
	worldSeed  uint64

	grassIdx    uint8
	pathIdx     uint8
	stationMats map[uint8]bool
}

// New builds a session from the config. A nil seed draws one from the
// OS entropy pool; pass a seed for reproducible runs.
func New(cfg Config, rs *ruleset.Ruleset) (*Session, error) {
	seed := entropySeed()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	return NewSeeded(cfg, rs, seed)
}

// NewSeeded builds a session with an explicit master seed while leaving
// cfg.Seed as given. Replay needs the split: a recording taken under an
// entropy seed keeps cfg.Seed nil, so resets draw fresh terrain from
// the session stream exactly as the original run did.
func NewSeeded(cfg Config, rs *ruleset.Ruleset, seed uint64) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	s := &Session{
		cfg:        cfg,
		rng:        rng.New(seed),
		masterSeed: seed,
	}
	s.bindRuleset(rs)
	s.startEpisode(seed)
	return s, nil
}

func (s *Session) bindRuleset(rs *ruleset.Ruleset) {
	s.rs = rs
	s.grassIdx = rs.MustMaterial("grass")
	s.pathIdx = rs.MustMaterial("path")
	s.stationMats = map[uint8]bool{}
	for i := range rs.Recipes {
		for _, st := range rs.Recipes[i].Stations {
			s.stationMats[rs.MustMaterial(st)] = true
		}
	}
}

// Ruleset returns the profile the session runs under.
func (s *Session) Ruleset() *ruleset.Ruleset { return s.rs }

// Config returns a copy of the session config.
func (s *Session) Config() Config { return s.cfg }

// Seed returns the seed the session was created with.
func (s *Session) Seed() uint64 { return s.masterSeed }

// WorldSeed returns the seed the current episode's terrain grew from.
func (s *Session) WorldSeed() uint64 { return s.worldSeed }

// Episode returns the zero-based episode counter.
func (s *Session) Episode() int { return s.episode }

// StepCount returns the ticks taken in the current episode.
func (s *Session) StepCount() int { return s.step }

// Done reports whether the current episode has ended.
func (s *Session) Done() (bool, DoneReason) { return s.done, s.doneReason }

// World exposes the arena for tests and rendering. Mutating it outside
// Step breaks reproducibility.
func (s *Session) World() *world.World { return s.world }

// PlayerState exposes the vitals for tests and rendering.
func (s *Session) PlayerState() *Player { return &s.player }

func (s *Session) startEpisode(seed uint64) {
	s.worldSeed = seed
	s.world = world.Generate(seed, s.cfg.genParams(), s.rs)
	s.player = newPlayer(s.rs)
	s.achievements = make([]int, len(s.rs.Achievements))
	s.prevAch = make([]int, len(s.rs.Achievements))
	s.step = 0
	s.daylight = 1
	s.done = false
	s.doneReason = DoneNone
	s.events = nil
	s.lastAction = Noop
	s.clock = clock{}
}

// Reset starts a fresh episode. A configured seed regenerates the same
// terrain every time; otherwise the next terrain comes from the session
// stream, so a run of episodes is still a pure function of the original
// seed. The session stream itself is not reseeded.
func (s *Session) Reset() StepResult {
	seed := s.rng.Uint64()
	if s.cfg.Seed != nil {
		seed = *s.cfg.Seed
	}
	s.episode++
	s.startEpisode(seed)
	return StepResult{State: s.State(), DoneReason: DoneReset}
}

// Step advances the episode by one tick. After the episode ends, further
// calls change nothing and return the same terminal result.
func (s *Session) Step(a Action) StepResult {
	if s.done {
		return StepResult{State: s.State(), Done: true, DoneReason: s.doneReason}
	}
	s.step++
	copy(s.prevAch, s.achievements)
	s.events = s.events[:0]
	healthBefore := s.player.Health
	foodBefore := s.player.Food
	drinkBefore := s.player.Drink

	if s.cfg.DayNightCycle {
		s.daylight = daylightAt(s.step, s.cfg.DayCyclePeriod)
	}

	s.applyAction(a)
	if s.player.Food > foodBefore {
		s.eventf("food: %d -> %d (action %s)", foodBefore, s.player.Food, ActionName(s.rs, a))
	}
	if s.player.Drink > drinkBefore {
		s.eventf("drink: %d -> %d (action %s)", drinkBefore, s.player.Drink, ActionName(s.rs, a))
	}

	s.updateLifeStats()
	s.processCreatures()
	s.processArrows()
	s.processPlants()
	s.spawnDespawn()

	if s.player.Health < healthBefore {
		s.eventf("damage: %d -> %d (%s)", healthBefore, s.player.Health, s.damageLabel())
	}

	s.checkDone()
	if s.done && s.doneReason == DoneDeath {
		s.eventf("death: %s", s.damageLabel())
	}

	reward, newly := s.computeReward()
	return StepResult{
		State:         s.State(),
		Reward:        reward,
		Done:          s.done,
		DoneReason:    s.doneReason,
		NewlyUnlocked: newly,
		Events:        append([]string(nil), s.events...),
	}
}

func (s *Session) applyAction(a Action) {
	if int(a) < 0 || int(a) >= s.rs.ActionCount() {
		return
	}
	spec := &s.rs.Actions[a]
	if s.player.Sleeping && spec.Kind != ruleset.KindNoop {
		// Any deliberate input wakes the sleeper and is spent doing so.
		s.wakeUp()
		return
	}
	switch spec.Kind {
	case ruleset.KindNoop:
	case ruleset.KindMove:
		s.doMove(spec)
	case ruleset.KindSleep:
		s.player.Sleeping = true
	case ruleset.KindDo:
		s.doInteract()
	case ruleset.KindPlace:
		s.doPlace(spec.Name)
	case ruleset.KindCraft:
		s.doCraft(spec.Name)
	}
}

// doMove turns first, then walks. Stepping onto a deadly tile kills
// outright.
func (s *Session) doMove(spec *ruleset.ActionSpec) {
	d := world.Pos{X: spec.DX, Y: spec.DY}
	s.player.Facing = d
	p := s.world.Player()
	next := p.Pos.Add(d)
	if !s.world.IsWalkable(next) {
		return
	}
	s.world.MoveObject(p.ID, next)
	if m := s.world.Material(next); m != nil && m.Deadly {
		s.player.LastDamage = m.Name
		s.player.Health = 0
	}
}

// doInteract applies "do" to the faced cell. An object there takes
// priority over the terrain and consumes the action even when inert.
func (s *Session) doInteract() {
	p := s.world.Player()
	target := p.Pos.Add(s.player.Facing)
	if id, ok := s.world.ObjectIDAt(target); ok {
		s.interactObject(id)
		return
	}
	m := s.world.Material(target)
	if m == nil {
		return
	}
	s.interactTerrain(target, m)
}

func (s *Session) interactObject(id uint64) {
	o := s.world.Object(id)
	switch o.Kind {
	case world.KindCow, world.KindZombie, world.KindSkeleton:
		dmg := s.attackDamage()
		if o.Health > dmg {
			o.Health -= dmg
			return
		}
		kind := o.Kind
		s.world.RemoveObject(id)
		switch kind {
		case world.KindCow:
			s.player.AddFood(cowFoodGain)
			s.bump("eat_cow")
		case world.KindZombie:
			s.bump("defeat_zombie")
		case world.KindSkeleton:
			s.bump("defeat_skeleton")
		}
	case world.KindPlant:
		if o.Ripe() {
			s.world.RemoveObject(id)
			s.player.AddFood(plantFoodGain)
			s.bump("eat_plant")
		}
	}
}

func (s *Session) interactTerrain(pos world.Pos, m *ruleset.Material) {
	switch {
	case m.Mine != nil:
		if s.rs.PickaxeTier(s.player.Has) < m.Mine.Tier {
			return
		}
		s.world.SetMaterial(pos, s.rs.MustMaterial(m.Mine.Into))
		s.player.AddItem(m.Mine.Drop, 1)
		s.bump(m.Mine.Achievement)
	case m.Drink:
		s.player.ThirstCounter = 0
		s.player.AddDrink(1)
		s.bump("collect_drink")
	case m.Forage != nil:
		if s.rng.Chance(m.Forage.Chance) {
			s.player.AddItem(m.Forage.Drop, 1)
			s.bump(m.Forage.Achievement)
		}
	}
}

// doPlace puts a block or sapling on the faced cell. Only bare grass
// accepts a placement.
func (s *Session) doPlace(action string) {
	pl, ok := s.rs.PlacementFor(action)
	if !ok {
		return
	}
	p := s.world.Player()
	target := p.Pos.Add(s.player.Facing)
	idx, inBounds := s.world.MaterialIdx(target)
	if !inBounds || idx != s.grassIdx {
		return
	}
	if _, occupied := s.world.ObjectIDAt(target); occupied {
		return
	}
	if !s.player.CanAfford(pl.Cost) {
		return
	}
	s.player.Consume(pl.Cost)
	if pl.Material != "" {
		s.world.SetMaterial(target, s.rs.MustMaterial(pl.Material))
	} else {
		s.world.AddObject(world.Object{Kind: world.KindPlant, Pos: target, Health: plantHealth})
	}
	s.bump(pl.Achievement)
}

// doCraft checks station adjacency, then trades the cost for the
// product. The cost is spent even if the product is already at cap.
func (s *Session) doCraft(action string) {
	re, ok := s.rs.RecipeFor(action)
	if !ok {
		return
	}
	p := s.world.Player()
	for _, st := range re.Stations {
		if !s.world.HasAdjacent(p.Pos, s.rs.MustMaterial(st)) {
			return
		}
	}
	if !s.player.CanAfford(re.Cost) {
		return
	}
	s.player.Consume(re.Cost)
	s.player.AddItem(re.Product, 1)
	s.bump(re.Achievement)
}

func (s *Session) attackDamage() int {
	return int(float64(s.rs.BestSwordDamage(s.player.Has)) * s.cfg.PlayerDamageMult)
}

// wakeUp ends sleep deliberately and counts toward the wake_up
// achievement. Health loss from collapsed vitals ends sleep without it.
func (s *Session) wakeUp() {
	s.player.Sleeping = false
	s.bump("wake_up")
}

func (s *Session) bump(name string) {
	if name == "" {
		return
	}
	if i, ok := s.rs.AchievementIndex(name); ok {
		s.achievements[i]++
	}
}

func (s *Session) computeReward() (float64, []string) {
	var reward float64
	var newly []string
	for i, name := range s.rs.Achievements {
		if s.achievements[i] > s.prevAch[i] {
			reward++
			if s.prevAch[i] == 0 {
				newly = append(newly, name)
			}
		}
	}
	return reward, newly
}

func (s *Session) checkDone() {
	if s.player.Health <= 0 {
		s.done = true
		s.doneReason = DoneDeath
		return
	}
	if s.cfg.MaxSteps != nil && s.step >= *s.cfg.MaxSteps {
		s.done = true
		s.doneReason = DoneMaxSteps
	}
}

func (s *Session) eventf(format string, args ...any) {
	s.events = append(s.events, fmt.Sprintf(format, args...))
}

func (s *Session) damageLabel() string {
	if s.player.LastDamage == "" {
		return "unknown"
	}
	return s.player.LastDamage
}

// daylightAt follows a cosine curve: dark at the period boundaries,
// brightest halfway through.
func daylightAt(step, period int) float64 {
	phase := float64(step%period) / float64(period)
	return 1 - math.Pow(math.Abs(math.Cos(math.Pi*phase)), 3)
}

func entropySeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("entropy source unavailable: %v", err))
	}
	return binary.LittleEndian.Uint64(b[:])
}
