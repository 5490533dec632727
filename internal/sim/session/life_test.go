package session

import "testing"

func TestHungerDrainsFood(t *testing.T) {
	s := newScenario(t, func(c *Config) {
		c.HungerEnabled = true
		c.HungerRate = 25
	})
	carve(t, s, 2)

	for i := 0; i < 24; i++ {
		s.Step(Noop)
	}
	if s.PlayerState().Food != 9 {
		t.Fatalf("food dropped early: %d", s.PlayerState().Food)
	}
	res := s.Step(Noop)
	if s.PlayerState().Food != 8 {
		t.Fatalf("food %d at the hunger threshold", s.PlayerState().Food)
	}
	found := false
	for _, ev := range res.Events {
		if ev == "food (hunger): 9 -> 8" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no hunger event in %v", res.Events)
	}

	for i := 0; i < 25; i++ {
		s.Step(Noop)
	}
	if s.PlayerState().Food != 7 {
		t.Fatalf("food %d after two hunger cycles", s.PlayerState().Food)
	}
}

func TestThirstDrainsDrink(t *testing.T) {
	s := newScenario(t, func(c *Config) {
		c.ThirstEnabled = true
		c.ThirstRate = 20
	})
	carve(t, s, 2)

	for i := 0; i < 19; i++ {
		s.Step(Noop)
	}
	if s.PlayerState().Drink != 9 {
		t.Fatalf("drink dropped early: %d", s.PlayerState().Drink)
	}
	s.Step(Noop)
	if s.PlayerState().Drink != 8 {
		t.Fatalf("drink %d at the thirst threshold", s.PlayerState().Drink)
	}
}

func TestFatigueDrainsEnergy(t *testing.T) {
	s := newScenario(t, func(c *Config) { c.FatigueEnabled = true })
	carve(t, s, 2)

	for i := 0; i < 30; i++ {
		s.Step(Noop)
	}
	if s.PlayerState().Energy != 9 {
		t.Fatalf("energy dropped early: %d", s.PlayerState().Energy)
	}
	s.Step(Noop)
	if s.PlayerState().Energy != 8 {
		t.Fatalf("energy %d past the fatigue threshold", s.PlayerState().Energy)
	}
}

func TestSleepRestoresEnergyAndAutoWakes(t *testing.T) {
	s := newScenario(t, func(c *Config) { c.FatigueEnabled = true })
	carve(t, s, 2)
	s.PlayerState().Energy = 5

	act(t, s, "sleep")
	woke := false
	for i := 0; i < 60 && !woke; i++ {
		s.Step(Noop)
		woke = !s.PlayerState().Sleeping
	}
	if !woke {
		t.Fatal("never woke up")
	}
	if s.PlayerState().Energy != 9 {
		t.Fatalf("woke with energy %d", s.PlayerState().Energy)
	}
	if s.AchievementCount("wake_up") != 1 {
		t.Fatal("full night of sleep did not count as wake_up")
	}
	// Energy ticks up every 11 sleeping ticks; four points plus the
	// sleep action itself lands on tick 44.
	if s.StepCount() != 44 {
		t.Fatalf("woke at step %d", s.StepCount())
	}
}

func TestRecoverHealsWithNecessitiesMet(t *testing.T) {
	s := newScenario(t, nil)
	carve(t, s, 2)
	s.PlayerState().Health = 5

	for i := 0; i < 25; i++ {
		s.Step(Noop)
	}
	if s.PlayerState().Health != 5 {
		t.Fatalf("healed early: %d", s.PlayerState().Health)
	}
	s.Step(Noop)
	if s.PlayerState().Health != 6 {
		t.Fatalf("health %d past the recovery threshold", s.PlayerState().Health)
	}
	for i := 0; i < 26; i++ {
		s.Step(Noop)
	}
	if s.PlayerState().Health != 7 {
		t.Fatalf("health %d after two recovery cycles", s.PlayerState().Health)
	}
}

func TestSleepDoublesRecovery(t *testing.T) {
	s := newScenario(t, nil)
	carve(t, s, 2)
	st := s.PlayerState()
	st.Health = 5
	st.Energy = 5 // below cap so sleep sticks

	act(t, s, "sleep")
	for i := 0; i < 12; i++ {
		s.Step(Noop)
	}
	if s.PlayerState().Health != 6 {
		t.Fatalf("health %d after 13 sleeping ticks", s.PlayerState().Health)
	}
}

func TestSleepHalvesHunger(t *testing.T) {
	s := newScenario(t, func(c *Config) {
		c.HungerEnabled = true
		c.HungerRate = 25
	})
	carve(t, s, 2)
	s.PlayerState().Energy = 5

	act(t, s, "sleep")
	for i := 0; i < 48; i++ {
		s.Step(Noop)
	}
	if s.PlayerState().Food != 9 {
		t.Fatalf("food dropped early while sleeping: %d", s.PlayerState().Food)
	}
	s.Step(Noop) // tick 50: half-rate accumulation reaches the threshold
	if s.PlayerState().Food != 8 {
		t.Fatalf("food %d after 50 sleeping ticks", s.PlayerState().Food)
	}
}

func TestMissingNecessitiesDecayHealth(t *testing.T) {
	s := newScenario(t, nil)
	carve(t, s, 2)
	s.PlayerState().Food = 0

	for i := 0; i < 30; i++ {
		s.Step(Noop)
	}
	if s.PlayerState().Health != 9 {
		t.Fatalf("decayed early: %d", s.PlayerState().Health)
	}
	res := s.Step(Noop)
	if s.PlayerState().Health != 8 {
		t.Fatalf("health %d past the decay threshold", s.PlayerState().Health)
	}
	if s.PlayerState().LastDamage != "vitals" {
		t.Fatalf("damage source %q", s.PlayerState().LastDamage)
	}
	found := false
	for _, ev := range res.Events {
		if ev == "damage: 9 -> 8 (vitals)" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no damage event in %v", res.Events)
	}
}

func TestStarvationKillsEventually(t *testing.T) {
	s := newScenario(t, nil)
	carve(t, s, 2)
	st := s.PlayerState()
	st.Food = 0
	st.Drink = 0

	var last StepResult
	steps := 0
	for !last.Done {
		last = s.Step(Noop)
		steps++
		if steps > 1000 {
			t.Fatal("never starved")
		}
	}
	if last.DoneReason != DoneDeath {
		t.Fatalf("done reason %q", last.DoneReason)
	}
	// One health point every 31 ticks, nine points in all.
	if steps != 279 {
		t.Fatalf("died at step %d", steps)
	}
	found := false
	for _, ev := range last.Events {
		if ev == "death: vitals" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no death event in %v", last.Events)
	}
}

func TestVitalDecayEndsSleepWithoutWakeCredit(t *testing.T) {
	s := newScenario(t, nil)
	carve(t, s, 2)
	st := s.PlayerState()
	st.Food = 0
	st.Energy = 5

	act(t, s, "sleep")
	for i := 0; i < 30; i++ {
		s.Step(Noop)
	}
	if s.PlayerState().Sleeping {
		t.Fatal("still sleeping after the decay threshold")
	}
	if s.PlayerState().Health != 8 {
		t.Fatalf("health %d", s.PlayerState().Health)
	}
	if s.AchievementCount("wake_up") != 0 {
		t.Fatal("decay wake counted as wake_up")
	}
}

func TestLifeStatsDisabledMeansNoDrain(t *testing.T) {
	s := newScenario(t, nil)
	carve(t, s, 2)

	for i := 0; i < 200; i++ {
		s.Step(Noop)
	}
	p := s.PlayerState()
	if p.Food != 9 || p.Drink != 9 || p.Energy != 9 || p.Health != 9 {
		t.Fatalf("vitals drained with all systems off: %+v", p)
	}
}
