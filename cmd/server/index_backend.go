package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gridcraft.ai/internal/persistence/indexdb"
	"gridcraft.ai/internal/persistence/savefile"
	"gridcraft.ai/internal/persistence/statslog"
	"gridcraft.ai/internal/sim/ruleset"
)

// runtimeIndex is the read-model surface the server writes to. Both
// backends queue internally and never block the serving path.
type runtimeIndex interface {
	RecordEpisode(e indexdb.EpisodeRow)
	RecordSave(sessionID, path string, h savefile.Header)
	UpsertProfile(rs *ruleset.Ruleset) error
	Close() error
}

func openRuntimeIndex(dataDir string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("GC_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(dataDir, "index", "episodes.sqlite")
		return indexdb.OpenSQLite(dbPath)
	case "remote":
		endpoint := strings.TrimSpace(os.Getenv("GC_INDEX_INGEST_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("GC_INDEX_BACKEND=remote but GC_INDEX_INGEST_URL is empty")
		}
		source := strings.TrimSpace(os.Getenv("GC_INDEX_SOURCE"))
		if source == "" {
			source, _ = os.Hostname()
		}
		idx, err := indexdb.OpenRemote(indexdb.RemoteConfig{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("GC_INDEX_TOKEN")),
			Source:        source,
			BatchSize:     envInt("GC_INDEX_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("GC_INDEX_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported GC_INDEX_BACKEND: %s", backend)
	}
}

// episodeFanout forwards finished episodes to every attached consumer:
// the queryable index and the flat journal.
type episodeFanout struct {
	index   runtimeIndex
	journal *statslog.EpisodeJournal
	logger  *log.Logger
}

func (f *episodeFanout) RecordEpisode(e indexdb.EpisodeRow) {
	if f.index != nil {
		f.index.RecordEpisode(e)
	}
	if f.journal != nil {
		if err := f.journal.WriteEpisode(e); err != nil {
			f.logger.Printf("episode journal: %v", err)
		}
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
