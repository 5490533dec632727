// Package indexdb keeps a queryable SQLite view of finished episodes
// and written save files. The index is derived data; recordings and
// saves stay canonical, so a dropped index write is lost statistics,
// never lost state.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gridcraft.ai/internal/persistence/savefile"
	"gridcraft.ai/internal/sim/ruleset"
)

// SQLiteIndex serializes all writes through one goroutine so the sim
// loop never waits on the database.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqEpisode reqKind = iota + 1
	reqSave
)

type req struct {
	kind    reqKind
	episode EpisodeRow
	save    SaveRow
}

// EpisodeRow is one finished episode.
type EpisodeRow struct {
	SessionID     string
	Episode       int
	Seed          uint64
	Ruleset       string
	Steps         int
	Reward        float64
	DoneReason    string
	Achievements  map[string]int
	RecordingPath string
	FinishedAt    time.Time
}

// SaveRow is one written save file.
type SaveRow struct {
	Path      string
	SessionID string
	Seed      uint64
	Ruleset   string
	Step      int
	Episode   int
	SavedAt   time.Time
}

// Summary aggregates the whole episodes table.
type Summary struct {
	Episodes int
	Steps    int64
	Reward   float64
	ByReason map[string]int
	// Unlocks counts episodes that earned each achievement at least
	// once.
	Unlocks map[string]int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Sized for end-of-run bursts from parallel training sessions.
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS profiles (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS episodes (
			session_id TEXT NOT NULL,
			episode INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			ruleset TEXT NOT NULL,
			steps INTEGER NOT NULL,
			reward REAL NOT NULL,
			done_reason TEXT NOT NULL,
			achievements_json TEXT NOT NULL,
			recording_path TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			PRIMARY KEY (session_id, episode)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_reward ON episodes(reward);`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_finished ON episodes(finished_at);`,
		`CREATE TABLE IF NOT EXISTS unlocks (
			session_id TEXT NOT NULL,
			episode INTEGER NOT NULL,
			name TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (session_id, episode, name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_unlocks_name ON unlocks(name);`,
		`CREATE TABLE IF NOT EXISTS saves (
			path TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			ruleset TEXT NOT NULL,
			step INTEGER NOT NULL,
			episode INTEGER NOT NULL,
			saved_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_saves_session ON saves(session_id, saved_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued writes, commits and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordEpisode queues one finished episode. Never blocks; when the
// queue is full the row is dropped.
func (s *SQLiteIndex) RecordEpisode(row EpisodeRow) {
	if s == nil || s.closed.Load() {
		return
	}
	if row.FinishedAt.IsZero() {
		row.FinishedAt = time.Now().UTC()
	}
	select {
	case s.ch <- req{kind: reqEpisode, episode: row}:
	default:
	}
}

// RecordSave queues the header of a written save file.
func (s *SQLiteIndex) RecordSave(sessionID, path string, h savefile.Header) {
	if s == nil || s.closed.Load() {
		return
	}
	row := SaveRow{
		Path:      path,
		SessionID: sessionID,
		Seed:      h.Seed,
		Ruleset:   h.Ruleset,
		Step:      h.Step,
		Episode:   h.Episode,
		SavedAt:   h.SavedAt,
	}
	if row.SavedAt.IsZero() {
		row.SavedAt = time.Now().UTC()
	}
	select {
	case s.ch <- req{kind: reqSave, save: row}:
	default:
	}
}

// UpsertProfile stores the profile under its name with a canonical
// JSON rendering, keyed for digest lookups.
func (s *SQLiteIndex) UpsertProfile(rs *ruleset.Ruleset) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(rs)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO profiles(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		rs.Name, rs.Digest, string(b), now,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEpisode, _ := s.db.Prepare(`INSERT OR REPLACE INTO episodes(
		session_id,episode,seed,ruleset,steps,reward,done_reason,achievements_json,recording_path,finished_at
	) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertUnlock, _ := s.db.Prepare(`INSERT OR REPLACE INTO unlocks(session_id,episode,name,count) VALUES(?,?,?,?)`)
	insertSave, _ := s.db.Prepare(`INSERT OR REPLACE INTO saves(path,session_id,seed,ruleset,step,episode,saved_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertEpisode != nil {
			_ = insertEpisode.Close()
		}
		if insertUnlock != nil {
			_ = insertUnlock.Close()
		}
		if insertSave != nil {
			_ = insertSave.Close()
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		commitEvery = 256
	)
	// Reads share the single connection with the writer tx, so any
	// open tx commits within one idle interval.
	idle := time.NewTicker(500 * time.Millisecond)
	defer idle.Stop()

	begin := func() bool {
		if tx != nil {
			return true
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return false
		}
		tx = txx
		opCount = 0
		return true
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
	}

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			if !begin() {
				continue
			}
			switch r.kind {
			case reqEpisode:
				e := r.episode
				ach, _ := json.Marshal(e.Achievements)
				if insertEpisode != nil {
					if _, err := tx.Stmt(insertEpisode).Exec(
						e.SessionID,
						e.Episode,
						int64(e.Seed),
						e.Ruleset,
						e.Steps,
						e.Reward,
						e.DoneReason,
						string(ach),
						e.RecordingPath,
						e.FinishedAt.Format(time.RFC3339Nano),
					); err != nil {
						rollback()
						continue
					}
					opCount++
				}
				for name, count := range e.Achievements {
					if insertUnlock == nil || count <= 0 {
						continue
					}
					if _, err := tx.Stmt(insertUnlock).Exec(e.SessionID, e.Episode, name, count); err != nil {
						rollback()
						break
					}
					opCount++
				}

			case reqSave:
				sv := r.save
				if insertSave != nil {
					if _, err := tx.Stmt(insertSave).Exec(
						sv.Path,
						sv.SessionID,
						int64(sv.Seed),
						sv.Ruleset,
						sv.Step,
						sv.Episode,
						sv.SavedAt.Format(time.RFC3339Nano),
					); err != nil {
						rollback()
						continue
					}
					opCount++
				}
			}
			if opCount >= commitEvery {
				commit()
			}

		case <-idle.C:
			commit()
		}
	}
}
