package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gridcraft.ai/internal/persistence/indexdb"
)

func openIndex(dataDir, dbPath string) *indexdb.SQLiteIndex {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = filepath.Join(dataDir, "index", "episodes.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fatal("index db", err)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fatal("open index", err)
	}
	return idx
}

type episodeOut struct {
	SessionID    string         `json:"session_id"`
	Episode      int            `json:"episode"`
	Seed         uint64         `json:"seed"`
	Ruleset      string         `json:"ruleset"`
	Steps        int            `json:"steps"`
	Reward       float64        `json:"reward"`
	DoneReason   string         `json:"done_reason"`
	Achievements map[string]int `json:"achievements,omitempty"`
	Recording    string         `json:"recording,omitempty"`
	FinishedAt   string         `json:"finished_at"`
}

func episodeJSON(e indexdb.EpisodeRow) episodeOut {
	return episodeOut{
		SessionID:    e.SessionID,
		Episode:      e.Episode,
		Seed:         e.Seed,
		Ruleset:      e.Ruleset,
		Steps:        e.Steps,
		Reward:       e.Reward,
		DoneReason:   e.DoneReason,
		Achievements: e.Achievements,
		Recording:    e.RecordingPath,
		FinishedAt:   e.FinishedAt.UTC().Format(time.RFC3339Nano),
	}
}

func episodesCmd(args []string) {
	fs := flag.NewFlagSet("episodes", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	sessionID := fs.String("session", "", "session id")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	if strings.TrimSpace(*sessionID) == "" {
		fmt.Fprintln(os.Stderr, "missing -session")
		os.Exit(2)
	}
	idx := openIndex(*dataDir, *dbPath)
	defer idx.Close()

	rows, err := idx.Episodes(context.Background(), strings.TrimSpace(*sessionID), *limit)
	if err != nil {
		fatal("query", err)
	}
	for _, e := range rows {
		printJSON(episodeJSON(e))
	}
}

func topCmd(args []string) {
	fs := flag.NewFlagSet("top", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir, *dbPath)
	defer idx.Close()

	rows, err := idx.TopEpisodes(context.Background(), *limit)
	if err != nil {
		fatal("query", err)
	}
	for _, e := range rows {
		printJSON(episodeJSON(e))
	}
}

func savesCmd(args []string) {
	fs := flag.NewFlagSet("saves", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	sessionID := fs.String("session", "", "session id")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	if strings.TrimSpace(*sessionID) == "" {
		fmt.Fprintln(os.Stderr, "missing -session")
		os.Exit(2)
	}
	idx := openIndex(*dataDir, *dbPath)
	defer idx.Close()

	rows, err := idx.Saves(context.Background(), strings.TrimSpace(*sessionID), *limit)
	if err != nil {
		fatal("query", err)
	}
	for _, s := range rows {
		printJSON(struct {
			Path      string `json:"path"`
			SessionID string `json:"session_id"`
			Seed      uint64 `json:"seed"`
			Ruleset   string `json:"ruleset"`
			Step      int    `json:"step"`
			Episode   int    `json:"episode"`
			SavedAt   string `json:"saved_at"`
		}{
			Path:      s.Path,
			SessionID: s.SessionID,
			Seed:      s.Seed,
			Ruleset:   s.Ruleset,
			Step:      s.Step,
			Episode:   s.Episode,
			SavedAt:   s.SavedAt.UTC().Format(time.RFC3339Nano),
		})
	}
}

func summaryCmd(args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir, *dbPath)
	defer idx.Close()

	sum, err := idx.Summarize(context.Background())
	if err != nil {
		fatal("query", err)
	}
	printJSON(struct {
		Episodes int            `json:"episodes"`
		Steps    int64          `json:"steps"`
		Reward   float64        `json:"reward"`
		ByReason map[string]int `json:"by_reason"`
		Unlocks  map[string]int `json:"unlocks"`
	}{
		Episodes: sum.Episodes,
		Steps:    sum.Steps,
		Reward:   sum.Reward,
		ByReason: sum.ByReason,
		Unlocks:  sum.Unlocks,
	})
}
