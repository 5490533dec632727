// Package savefile persists complete session snapshots, one file per
// save: a zstd stream holding a JSON header line followed by a gob
// body. Tools that only list saves read the header line and stop; the
// body carries the exact state, so a loaded session's future matches
// the saved session's tick for tick.
package savefile

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

// Version is the current save file layout version.
const Version = 1

// Header is the JSON first line of every save file.
type Header struct {
	Version       int       `json:"version"`
	Ruleset       string    `json:"ruleset"`
	RulesetDigest string    `json:"ruleset_digest"`
	Seed          uint64    `json:"seed"`
	Step          int       `json:"step"`
	Episode       int       `json:"episode"`
	Done          bool      `json:"done,omitempty"`
	SavedAt       time.Time `json:"saved_at"`
}

// Write snapshots the session into path, creating directories as
// needed and truncating any previous save.
func Write(path string, s *session.Session) error {
	return WriteSnapshot(path, s.Snapshot())
}

// WriteSnapshot persists an already captured snapshot.
func WriteSnapshot(path string, snap session.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, err := json.Marshal(Header{
		Version:       Version,
		Ruleset:       snap.RulesetName,
		RulesetDigest: snap.RulesetDigest,
		Seed:          snap.MasterSeed,
		Step:          snap.Step,
		Episode:       snap.Episode,
		Done:          snap.Done,
		SavedAt:       time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// ReadHeader decodes just the header line of a save file.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReaderSize(dec, 256*1024).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("save header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("save header: %w", err)
	}
	if h.Version > Version {
		return h, fmt.Errorf("save version %d is newer than this build (%d)", h.Version, Version)
	}
	return h, nil
}

// Read decodes the full snapshot and its header.
func Read(path string) (session.Snapshot, Header, error) {
	var snap session.Snapshot
	var h Header

	f, err := os.Open(path)
	if err != nil {
		return snap, h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, h, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, h, fmt.Errorf("save header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, h, fmt.Errorf("save header: %w", err)
	}
	if h.Version > Version {
		return snap, h, fmt.Errorf("save version %d is newer than this build (%d)", h.Version, Version)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, h, fmt.Errorf("gob decode: %w", err)
	}
	return snap, h, nil
}

// Load rebuilds a live session from a save written under one of the
// embedded profiles. Saves taken under external profiles go through
// LoadWith instead.
func Load(path string) (*session.Session, error) {
	snap, h, err := Read(path)
	if err != nil {
		return nil, err
	}
	rs, err := ruleset.ByName(h.Ruleset)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", path, err)
	}
	return session.Restore(snap, rs)
}

// LoadWith rebuilds a live session under the given profile.
func LoadWith(path string, rs *ruleset.Ruleset) (*session.Session, error) {
	snap, _, err := Read(path)
	if err != nil {
		return nil, err
	}
	return session.Restore(snap, rs)
}
