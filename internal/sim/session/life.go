package session

// Life stat accumulators run in hundredths of a point so that half-rate
// drains while sleeping stay exact in integer math.
const (
	centi = 100

	// Sleep halves hunger and thirst accumulation.
	sleepDrainDiv = 2

	// Fatigue: below the gain threshold while sleeping restores a point
	// of energy; above the loss threshold while awake costs one.
	fatigueGainAt = -10 * centi
	fatigueLossAt = 30 * centi

	// Recovery: counter above the heal threshold restores a point of
	// health; below the hurt threshold costs one.
	recoverHealAt  = 25 * centi
	recoverHurtAt  = -15 * centi
	recoverAsleep  = 2 * centi
	recoverAwake   = 1 * centi
	recoverPenalty = centi / 2

	cowFoodGain   = 6
	plantFoodGain = 4
	plantHealth   = 1
)

// updateLifeStats drains hunger, thirst and fatigue, then lets the body
// recover or decay depending on whether the necessities are met.
func (s *Session) updateLifeStats() {
	p := &s.player

	if s.cfg.HungerEnabled {
		gain := centi
		if p.Sleeping {
			gain = centi / sleepDrainDiv
		}
		p.HungerCounter += gain
		if p.HungerCounter >= s.cfg.HungerRate*centi {
			p.HungerCounter = 0
			if p.Food > 0 {
				before := p.Food
				p.Food--
				s.eventf("food (hunger): %d -> %d", before, p.Food)
			}
		}
	}

	if s.cfg.ThirstEnabled {
		gain := centi
		if p.Sleeping {
			gain = centi / sleepDrainDiv
		}
		p.ThirstCounter += gain
		if p.ThirstCounter >= s.cfg.ThirstRate*centi {
			p.ThirstCounter = 0
			if p.Drink > 0 {
				before := p.Drink
				p.Drink--
				s.eventf("drink (thirst): %d -> %d", before, p.Drink)
			}
		}
	}

	if s.cfg.FatigueEnabled {
		if p.Sleeping {
			p.FatigueCounter -= centi
			if p.FatigueCounter > 0 {
				p.FatigueCounter = 0
			}
		} else {
			p.FatigueCounter += centi
		}
		if p.FatigueCounter < fatigueGainAt {
			p.FatigueCounter = 0
			if p.Energy < p.cap {
				before := p.Energy
				p.AddEnergy(1)
				s.eventf("energy (sleeping): %d -> %d", before, p.Energy)
			}
		}
		if p.FatigueCounter > fatigueLossAt {
			p.FatigueCounter = 0
			if p.Energy > 0 {
				before := p.Energy
				p.Energy--
				s.eventf("energy (tired): %d -> %d", before, p.Energy)
			}
		}
	}

	necessities := p.Food > 0 && p.Drink > 0 && (p.Energy > 0 || p.Sleeping)
	if necessities {
		if p.Sleeping {
			p.RecoverCounter += recoverAsleep
		} else {
			p.RecoverCounter += recoverAwake
		}
	} else {
		p.RecoverCounter -= recoverPenalty
	}
	if p.RecoverCounter > recoverHealAt {
		p.RecoverCounter = 0
		p.AddHealth(1)
	}
	if p.RecoverCounter < recoverHurtAt {
		p.RecoverCounter = 0
		if p.Health > 0 {
			p.Health--
			p.LastDamage = "vitals"
		}
		// Decaying in bed ends the sleep without a wake_up credit.
		p.Sleeping = false
	}

	// A full night's rest ends on its own and does count as waking up.
	if p.Sleeping && p.Energy >= p.cap {
		s.wakeUp()
	}
}
