package bridge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// persistedSession is what survives a bridge restart: enough to tell
// an operator which gateway session an agent key last held. The live
// websocket itself cannot be resumed; reconnects start fresh.
type persistedSession struct {
	SessionID       string    `json:"session_id"`
	Ruleset         string    `json:"ruleset,omitempty"`
	LastConnectedAt time.Time `json:"last_connected_at"`
}

// loadStateFile reads the session map. A missing file is an empty map,
// not an error; anything else unreadable is.
func loadStateFile(path string) (map[string]persistedSession, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]persistedSession{}, nil
		}
		return nil, err
	}
	out := map[string]persistedSession{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

// writeFileAtomic writes via a temp file in the same directory plus
// rename, so a crash never leaves a torn state file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
