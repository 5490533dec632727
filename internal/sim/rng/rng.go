// Package rng provides the deterministic random stream that world
// generation and every stochastic simulation subsystem draw from.
//
// The stream is a splitmix64 sequence. Each draw advances the state by
// exactly one step, so two streams seeded identically and asked the same
// questions in the same order return identical answers. The whole state
// is a single uint64 that can be exported and restored, which save files
// and recordings depend on.
package rng

// Stream is a deterministic pseudo random source. Not safe for
// concurrent use; the simulation owns exactly one per session.
type Stream struct {
	state uint64
}

// New returns a stream positioned at seed.
func New(seed uint64) *Stream {
	return &Stream{state: seed}
}

// Uint64 returns the next 64 random bits. One draw.
func (s *Stream) Uint64() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Float64 returns a uniform value in [0, 1). One draw.
func (s *Stream) Float64() float64 {
	return float64(s.Uint64()>>11) / (1 << 53)
}

// Intn returns a uniform value in [0, n). One draw. n must be positive.
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		panic("rng: Intn on non-positive n")
	}
	return int(s.Uint64() % uint64(n))
}

// Chance reports true with probability p. Always one draw, even for
// p <= 0 or p >= 1, so branch gating never desynchronizes the stream.
func (s *Stream) Chance(p float64) bool {
	return s.Float64() < p
}

// State exports the current stream position.
func (s *Stream) State() uint64 { return s.state }

// Restore moves the stream to a previously exported position.
func (s *Stream) Restore(state uint64) { s.state = state }
