// Package archive promotes recordings into the long-term archives/
// tree. A recording is archived only after a full replay reproduces
// every stored digest, so everything under archives/ is known to be
// rebuildable from its header alone.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gridcraft.ai/internal/persistence/recording"
)

// Meta sits beside each archived recording as meta.json.
type Meta struct {
	Recording      string  `json:"recording"`
	Ruleset        string  `json:"ruleset"`
	RulesetDigest  string  `json:"ruleset_digest"`
	Seed           uint64  `json:"seed"`
	Steps          int     `json:"steps"`
	Episodes       int     `json:"episodes"`
	Reward         float64 `json:"reward"`
	DigestsChecked int     `json:"digests_checked"`
	FinalDigest    string  `json:"final_digest"`
	DoneReason     string  `json:"done_reason,omitempty"`
	RecordedAt     string  `json:"recorded_at"`
	ArchivedAt     string  `json:"archived_at"`
}

// ArchiveRecording verifies recPath by full replay and, when it checks
// out, copies it into dataDir/archives/<name>/ beside a meta.json that
// summarizes the verified run. The source recording stays in place.
func ArchiveRecording(dataDir, recPath string) (Meta, string, error) {
	h, err := recording.ReadHeader(recPath)
	if err != nil {
		return Meta{}, "", err
	}
	res, err := recording.Replay(recPath)
	if err != nil {
		return Meta{}, "", fmt.Errorf("verify %s: %w", filepath.Base(recPath), err)
	}

	name := strings.TrimSuffix(filepath.Base(recPath), ".zst")
	name = strings.TrimSuffix(name, ".rec")
	dir := filepath.Join(dataDir, "archives", name)
	metaPath := filepath.Join(dir, "meta.json")
	if _, err := os.Stat(metaPath); err == nil {
		return Meta{}, "", fmt.Errorf("%s is already archived", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Meta{}, "", err
	}

	dst := filepath.Join(dir, filepath.Base(recPath))
	if err := copyFile(recPath, dst); err != nil {
		return Meta{}, "", err
	}

	meta := Meta{
		Recording:      filepath.Base(dst),
		Ruleset:        h.Ruleset,
		RulesetDigest:  h.RulesetDigest,
		Seed:           h.Seed,
		Steps:          res.Steps,
		Episodes:       res.Episodes,
		Reward:         res.Reward,
		DigestsChecked: res.DigestsChecked,
		FinalDigest:    res.FinalDigest,
		RecordedAt:     h.CreatedAt.UTC().Format(time.RFC3339Nano),
		ArchivedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	if res.Done {
		meta.DoneReason = string(res.DoneReason)
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Meta{}, "", err
	}
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		return Meta{}, "", err
	}
	return meta, dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
