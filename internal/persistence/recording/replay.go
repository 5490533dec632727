package recording

import (
	"errors"
	"fmt"
	"io"

	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

// ReplayResult summarizes a verified replay.
type ReplayResult struct {
	Steps          int
	Episodes       int
	Reward         float64
	DigestsChecked int
	Done           bool
	DoneReason     session.DoneReason
	FinalDigest    string
}

// ReadHeader decodes just the header line of a recording.
func ReadHeader(path string) (Header, error) {
	r, err := Open(path)
	if err != nil {
		return Header{}, err
	}
	defer r.Close()
	return r.Header(), nil
}

// Replay rebuilds the recorded run under its embedded profile name and
// verifies every recorded digest.
func Replay(path string) (*ReplayResult, error) {
	h, err := ReadHeader(path)
	if err != nil {
		return nil, err
	}
	rs, err := ruleset.ByName(h.Ruleset)
	if err != nil {
		return nil, fmt.Errorf("recording %s: %w", path, err)
	}
	return ReplayWith(path, rs)
}

// ReplayWith rebuilds the recorded run under the given profile. The
// profile must hash to the digest the recording was taken under.
func ReplayWith(path string, rs *ruleset.Ruleset) (*ReplayResult, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	h := r.Header()
	if h.RulesetDigest != rs.Digest {
		return nil, fmt.Errorf("recording took ruleset %s (%.12s), have %s (%.12s)",
			h.Ruleset, h.RulesetDigest, rs.Name, rs.Digest)
	}

	s, err := session.NewSeeded(h.Config, rs, h.Seed)
	if err != nil {
		return nil, fmt.Errorf("recording config: %w", err)
	}

	out := &ReplayResult{}
	for {
		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if line.Reset {
			s.Reset()
		} else {
			out.Reward += s.Step(session.Action(line.Action)).Reward
		}
		if got := s.StepCount(); got != line.Step {
			return nil, fmt.Errorf("step mismatch: want=%d got=%d", line.Step, got)
		}
		if line.Digest != "" {
			out.DigestsChecked++
			if got := s.StateDigest(); got != line.Digest {
				return nil, fmt.Errorf("digest mismatch at step %d: got=%s want=%s", line.Step, got, line.Digest)
			}
		}
	}

	out.Steps = s.StepCount()
	out.Episodes = s.Episode()
	out.Done, out.DoneReason = s.Done()
	out.FinalDigest = s.StateDigest()
	return out, nil
}
