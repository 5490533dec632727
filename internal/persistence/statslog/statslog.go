// Package statslog appends compressed JSONL journals. Index rows in
// sqlite answer queries; the journal is the flat append-only record a
// run leaves behind, one line per finished episode, cheap enough to
// keep forever and to grep offline.
package statslog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"gridcraft.ai/internal/persistence/indexdb"
)

// Writer appends JSON lines to hourly zstd segments. Each line is
// flushed through the encoder immediately, so a crash loses at most
// the encoder's in-flight block.
type Writer struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(baseDir, prefix string) *Writer {
	return &Writer{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	// Append keeps restarts within the same hour in one segment.
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// episodeEntry is the journal line format. The index row stays an
// internal struct; the journal commits to snake_case keys.
type episodeEntry struct {
	TS            string         `json:"ts"`
	SessionID     string         `json:"session_id"`
	Episode       int            `json:"episode"`
	Seed          uint64         `json:"seed"`
	Ruleset       string         `json:"ruleset"`
	Steps         int            `json:"steps"`
	Reward        float64        `json:"reward"`
	DoneReason    string         `json:"done_reason"`
	Achievements  map[string]int `json:"achievements,omitempty"`
	RecordingPath string         `json:"recording_path,omitempty"`
}

// EpisodeJournal records one line per finished episode, mirroring what
// the index ingests.
type EpisodeJournal struct{ w *Writer }

func NewEpisodeJournal(dataDir string) *EpisodeJournal {
	return &EpisodeJournal{w: NewWriter(filepath.Join(dataDir, "episodes"), "episodes")}
}

func (j *EpisodeJournal) WriteEpisode(row indexdb.EpisodeRow) error {
	ts := row.FinishedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return j.w.Write(episodeEntry{
		TS:            ts.UTC().Format(time.RFC3339Nano),
		SessionID:     row.SessionID,
		Episode:       row.Episode,
		Seed:          row.Seed,
		Ruleset:       row.Ruleset,
		Steps:         row.Steps,
		Reward:        row.Reward,
		DoneReason:    row.DoneReason,
		Achievements:  row.Achievements,
		RecordingPath: row.RecordingPath,
	})
}

func (j *EpisodeJournal) Close() error { return j.w.Close() }
