package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

const defaultLimit = 50

// Episodes lists a session's episodes, most recent first.
func (s *SQLiteIndex) Episodes(ctx context.Context, sessionID string, limit int) ([]EpisodeRow, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id,episode,seed,ruleset,steps,reward,done_reason,achievements_json,recording_path,finished_at
		FROM episodes WHERE session_id=? ORDER BY episode DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	return scanEpisodes(rows)
}

// TopEpisodes lists the highest reward episodes across all sessions.
func (s *SQLiteIndex) TopEpisodes(ctx context.Context, limit int) ([]EpisodeRow, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id,episode,seed,ruleset,steps,reward,done_reason,achievements_json,recording_path,finished_at
		FROM episodes ORDER BY reward DESC, finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanEpisodes(rows)
}

// Saves lists a session's save files, most recent first.
func (s *SQLiteIndex) Saves(ctx context.Context, sessionID string, limit int) ([]SaveRow, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT path,session_id,seed,ruleset,step,episode,saved_at
		FROM saves WHERE session_id=? ORDER BY saved_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SaveRow
	for rows.Next() {
		var (
			r     SaveRow
			seed  int64
			saved string
		)
		if err := rows.Scan(&r.Path, &r.SessionID, &seed, &r.Ruleset, &r.Step, &r.Episode, &saved); err != nil {
			return nil, err
		}
		r.Seed = uint64(seed)
		if t, err := time.Parse(time.RFC3339Nano, saved); err == nil {
			r.SavedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summarize aggregates every recorded episode.
func (s *SQLiteIndex) Summarize(ctx context.Context) (*Summary, error) {
	sum := &Summary{
		ByReason: map[string]int{},
		Unlocks:  map[string]int{},
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(steps),0), COALESCE(SUM(reward),0) FROM episodes`)
	if err := row.Scan(&sum.Episodes, &sum.Steps, &sum.Reward); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT done_reason, COUNT(*) FROM episodes GROUP BY done_reason`)
	if err != nil {
		return nil, err
	}
	if err := scanCounts(rows, sum.ByReason); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT name, COUNT(*) FROM unlocks GROUP BY name`)
	if err != nil {
		return nil, err
	}
	if err := scanCounts(rows, sum.Unlocks); err != nil {
		return nil, err
	}
	return sum, nil
}

// ProfileDigest looks up the stored digest for a profile name.
func (s *SQLiteIndex) ProfileDigest(ctx context.Context, name string) (string, error) {
	var digest string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM profiles WHERE name=?`, name).Scan(&digest)
	return digest, err
}

func scanEpisodes(rows *sql.Rows) ([]EpisodeRow, error) {
	defer rows.Close()
	var out []EpisodeRow
	for rows.Next() {
		var (
			e        EpisodeRow
			seed     int64
			achJSON  string
			finished string
		)
		if err := rows.Scan(&e.SessionID, &e.Episode, &seed, &e.Ruleset, &e.Steps, &e.Reward,
			&e.DoneReason, &achJSON, &e.RecordingPath, &finished); err != nil {
			return nil, err
		}
		e.Seed = uint64(seed)
		if achJSON != "" && achJSON != "null" {
			if err := json.Unmarshal([]byte(achJSON), &e.Achievements); err != nil {
				return nil, err
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, finished); err == nil {
			e.FinishedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanCounts(rows *sql.Rows, into map[string]int) error {
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}
