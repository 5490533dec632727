package session

// maxCatchUpTicks bounds how many ticks one Advance call may run. A long
// stall drops the backlog instead of fast-forwarding through it.
const maxCatchUpTicks = 10

type clock struct {
	accumulator float64
	paused      bool
}

// SetAction stores the action the clock replays on every scheduled tick.
// It sticks until replaced.
func (s *Session) SetAction(a Action) {
	if int(a) < 0 || int(a) >= s.rs.ActionCount() {
		return
	}
	s.lastAction = a
}

// LastAction returns the currently latched action.
func (s *Session) LastAction() Action { return s.lastAction }

// Paused reports whether the clock is held.
func (s *Session) Paused() bool { return s.clock.paused }

// SetPaused holds or releases the clock. Releasing drops any time that
// piled up while paused.
func (s *Session) SetPaused(p bool) {
	if s.clock.paused == p {
		return
	}
	s.clock.paused = p
	if !p {
		s.clock.accumulator = 0
	}
}

// ManualStepAllowed reports whether direct Step calls are part of the
// contract for this session's time mode. Real-time sessions opt in via
// the config flag.
func (s *Session) ManualStepAllowed() bool {
	switch s.cfg.Time.Kind {
	case TimeLogical, TimeHybrid:
		return true
	default:
		return s.cfg.Time.AllowManualStep
	}
}

// Advance feeds wall time to a real-time or hybrid session and runs the
// ticks that came due, replaying the latched action. Logical sessions
// ignore it. The results of the executed ticks come back in order.
func (s *Session) Advance(seconds float64) []StepResult {
	if s.cfg.Time.Kind == TimeLogical || seconds <= 0 {
		return nil
	}
	if s.clock.paused || s.done {
		return nil
	}
	tickDur := 1 / s.cfg.Time.TicksPerSecond
	s.clock.accumulator += seconds

	var results []StepResult
	for s.clock.accumulator >= tickDur && !s.done {
		if len(results) == maxCatchUpTicks {
			s.clock.accumulator = 0
			return results
		}
		s.clock.accumulator -= tickDur
		results = append(results, s.Step(s.lastAction))
	}
	return results
}
