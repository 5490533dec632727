package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gridcraft.ai/internal/persistence/savefile"
	"gridcraft.ai/internal/sim/ruleset"
)

// RemoteConfig points the remote index at an HTTP ingest endpoint.
type RemoteConfig struct {
	Endpoint      string
	Token         string
	Source        string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	Logger        *log.Logger
}

// RemoteIndex ships the same rows as SQLiteIndex to a central
// collector. Delivery is best effort: batches that fail three sends
// are dropped.
type RemoteIndex struct {
	cfg        RemoteConfig
	httpClient *http.Client

	ch   chan remoteEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type remoteEvent struct {
	Kind    string `json:"kind"`
	Source  string `json:"source"`
	Payload any    `json:"payload"`
}

type episodePayload struct {
	SessionID     string         `json:"session_id"`
	Episode       int            `json:"episode"`
	Seed          uint64         `json:"seed"`
	Ruleset       string         `json:"ruleset"`
	Steps         int            `json:"steps"`
	Reward        float64        `json:"reward"`
	DoneReason    string         `json:"done_reason"`
	Achievements  map[string]int `json:"achievements,omitempty"`
	RecordingPath string         `json:"recording_path,omitempty"`
	FinishedAt    string         `json:"finished_at"`
}

type savePayload struct {
	Path      string `json:"path"`
	SessionID string `json:"session_id"`
	Seed      uint64 `json:"seed"`
	Ruleset   string `json:"ruleset"`
	Step      int    `json:"step"`
	Episode   int    `json:"episode"`
	SavedAt   string `json:"saved_at"`
}

type profilePayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func OpenRemote(cfg RemoteConfig) (*RemoteIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Source = strings.TrimSpace(cfg.Source)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty ingest endpoint")
	}
	if cfg.Source == "" {
		return nil, fmt.Errorf("empty source label")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	r := &RemoteIndex{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan remoteEvent, 32768),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop()
	}()

	return r, nil
}

func (r *RemoteIndex) Close() error {
	if r == nil {
		return nil
	}
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.ch)
		r.wg.Wait()
	})
	return nil
}

// RecordEpisode queues one finished episode for the collector.
func (r *RemoteIndex) RecordEpisode(row EpisodeRow) {
	if r == nil || r.closed.Load() {
		return
	}
	if row.FinishedAt.IsZero() {
		row.FinishedAt = time.Now().UTC()
	}
	p := episodePayload{
		SessionID:     row.SessionID,
		Episode:       row.Episode,
		Seed:          row.Seed,
		Ruleset:       row.Ruleset,
		Steps:         row.Steps,
		Reward:        row.Reward,
		DoneReason:    row.DoneReason,
		Achievements:  row.Achievements,
		RecordingPath: row.RecordingPath,
		FinishedAt:    row.FinishedAt.Format(time.RFC3339Nano),
	}
	r.enqueue(remoteEvent{Kind: "episode", Source: r.cfg.Source, Payload: p})
}

// RecordSave queues the header of a written save file.
func (r *RemoteIndex) RecordSave(sessionID, path string, h savefile.Header) {
	if r == nil || r.closed.Load() {
		return
	}
	savedAt := h.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}
	p := savePayload{
		Path:      path,
		SessionID: sessionID,
		Seed:      h.Seed,
		Ruleset:   h.Ruleset,
		Step:      h.Step,
		Episode:   h.Episode,
		SavedAt:   savedAt.Format(time.RFC3339Nano),
	}
	r.enqueue(remoteEvent{Kind: "save", Source: r.cfg.Source, Payload: p})
}

// UpsertProfile queues the profile under its name and digest.
func (r *RemoteIndex) UpsertProfile(rs *ruleset.Ruleset) error {
	if r == nil || r.closed.Load() || rs == nil {
		return nil
	}
	b, err := json.Marshal(rs)
	if err != nil {
		return err
	}
	p := profilePayload{
		Name:      rs.Name,
		Digest:    rs.Digest,
		JSON:      string(b),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	r.enqueue(remoteEvent{Kind: "profile", Source: r.cfg.Source, Payload: p})
	return nil
}

func (r *RemoteIndex) enqueue(ev remoteEvent) {
	if r == nil || r.closed.Load() {
		return
	}
	select {
	case r.ch <- ev:
	default:
		r.printf("remote index queue full; drop kind=%s source=%s", ev.Kind, ev.Source)
	}
}

func (r *RemoteIndex) loop() {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]remoteEvent, 0, r.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.sendBatch(batch); err != nil {
			r.printf("remote index flush failed batch=%d err=%v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-r.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= r.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (r *RemoteIndex) sendBatch(events []remoteEvent) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []remoteEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, r.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if r.cfg.Token != "" {
			req.Header.Set("x-gc-index-token", r.cfg.Token)
		}

		resp, err := r.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (r *RemoteIndex) printf(format string, args ...any) {
	if r != nil && r.cfg.Logger != nil {
		r.cfg.Logger.Printf(format, args...)
	}
}
