// Package recording captures a session's action stream as a zstd
// compressed JSONL file: one header line, then one line per step.
// Because sessions are deterministic, the file plus the seed is a
// complete episode archive; Replay rebuilds the run and verifies the
// recorded state digests along the way.
package recording

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

// Version is the current recording layout version.
const Version = 1

// DefaultDigestEvery records a state digest on every step.
const DefaultDigestEvery = 1

// Header is the JSON first line of every recording.
type Header struct {
	Version       int            `json:"version"`
	Ruleset       string         `json:"ruleset"`
	RulesetDigest string         `json:"ruleset_digest"`
	Seed          uint64         `json:"seed"`
	Config        session.Config `json:"config"`
	DigestEvery   int            `json:"digest_every"`
	CreatedAt     time.Time      `json:"created_at"`
}

// StepLine is one recorded tick. Reset lines mark episode boundaries
// and carry no action.
type StepLine struct {
	Step       int     `json:"step"`
	Action     int     `json:"action"`
	Name       string  `json:"name,omitempty"`
	Reward     float64 `json:"reward,omitempty"`
	Done       bool    `json:"done,omitempty"`
	DoneReason string  `json:"done_reason,omitempty"`
	Digest     string  `json:"digest,omitempty"`
	Reset      bool    `json:"reset,omitempty"`
}

// Recorder steps a session and writes each step to the recording. All
// stepping of a recorded session must go through the recorder, or the
// file and the session drift apart.
type Recorder struct {
	mu     sync.Mutex
	s      *session.Session
	f      *os.File
	enc    *zstd.Encoder
	bw     *bufio.Writer
	every  int
	closed bool
}

// New opens a recording at path for a fresh session. digestEvery
// controls how often a state digest is written (1 = every step, 0 =
// DefaultDigestEvery); sparser digests make smaller files that replay
// with fewer checks.
func New(path string, s *session.Session, digestEvery int) (*Recorder, error) {
	if s.StepCount() != 0 || s.Episode() != 0 {
		return nil, fmt.Errorf("recording must start on a fresh session (step %d, episode %d)",
			s.StepCount(), s.Episode())
	}
	if digestEvery <= 0 {
		digestEvery = DefaultDigestEvery
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		return nil, err
	}
	r := &Recorder{
		s:     s,
		f:     f,
		enc:   enc,
		bw:    bufio.NewWriterSize(enc, 128*1024),
		every: digestEvery,
	}
	hdr := Header{
		Version:       Version,
		Ruleset:       s.Ruleset().Name,
		RulesetDigest: s.Ruleset().Digest,
		Seed:          s.Seed(),
		Config:        s.Config(),
		DigestEvery:   digestEvery,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.writeLine(hdr); err != nil {
		enc.Close()
		f.Close()
		return nil, err
	}
	return r, nil
}

// Session exposes the recorded session for observation building.
func (r *Recorder) Session() *session.Session { return r.s }

// Step advances the session by one action and appends it to the
// recording.
func (r *Recorder) Step(a session.Action) (session.StepResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return session.StepResult{}, fmt.Errorf("recorder is closed")
	}
	res := r.s.Step(a)
	line := StepLine{
		Step:       r.s.StepCount(),
		Action:     int(a),
		Name:       session.ActionName(r.s.Ruleset(), a),
		Reward:     res.Reward,
		Done:       res.Done,
		DoneReason: string(res.DoneReason),
	}
	if res.Done || r.s.StepCount()%r.every == 0 {
		line.Digest = r.s.StateDigest()
	}
	return res, r.writeLine(line)
}

// Reset starts the next episode and marks the boundary in the
// recording.
func (r *Recorder) Reset() (session.StepResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return session.StepResult{}, fmt.Errorf("recorder is closed")
	}
	res := r.s.Reset()
	line := StepLine{
		Step:   r.s.StepCount(),
		Reset:  true,
		Digest: r.s.StateDigest(),
	}
	return res, r.writeLine(line)
}

func (r *Recorder) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := r.bw.Write(b); err != nil {
		return err
	}
	if err := r.bw.WriteByte('\n'); err != nil {
		return err
	}
	// Flush per line so a crash loses at most the tick in flight.
	return r.bw.Flush()
}

// Close flushes and closes the recording file. The session stays
// usable.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.bw.Flush(); err != nil {
		r.enc.Close()
		r.f.Close()
		return err
	}
	if err := r.enc.Close(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}
