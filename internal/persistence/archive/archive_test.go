package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gridcraft.ai/internal/persistence/recording"
	"gridcraft.ai/internal/sim/ruleset"
	"gridcraft.ai/internal/sim/session"
)

func recordRun(t *testing.T, path string, seed uint64, steps int) {
	t.Helper()
	cfg := session.DefaultConfig()
	cfg.Seed = &seed
	s, err := session.New(cfg, ruleset.Classic())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec, err := recording.New(path, s, 1)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	for i := 0; i < steps; i++ {
		if _, err := rec.Step(session.Noop); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestArchiveRecordingVerifiesAndCopies(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "recordings", "run.rec.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatal(err)
	}
	recordRun(t, src, 123, 30)

	meta, archived, err := ArchiveRecording(dir, src)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if want := filepath.Join(dir, "archives", "run", "run.rec.zst"); archived != want {
		t.Fatalf("archived to %s, want %s", archived, want)
	}
	if meta.Ruleset != "classic" || meta.Seed != 123 {
		t.Fatalf("meta %+v", meta)
	}
	if meta.Steps != 30 || meta.DigestsChecked != 30 {
		t.Fatalf("steps=%d digests=%d, want 30 and 30", meta.Steps, meta.DigestsChecked)
	}
	if meta.FinalDigest == "" || meta.RecordedAt == "" || meta.ArchivedAt == "" {
		t.Fatalf("meta missing fields: %+v", meta)
	}

	want, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(archived)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Fatal("archived bytes differ from source")
	}

	b, err := os.ReadFile(filepath.Join(filepath.Dir(archived), "meta.json"))
	if err != nil {
		t.Fatalf("meta.json: %v", err)
	}
	var onDisk Meta
	if err := json.Unmarshal(b, &onDisk); err != nil {
		t.Fatalf("meta.json parse: %v", err)
	}
	if onDisk != meta {
		t.Fatalf("meta.json %+v differs from returned %+v", onDisk, meta)
	}
}

func TestArchiveRecordingRefusesDuplicate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "run.rec.zst")
	recordRun(t, src, 7, 10)

	if _, _, err := ArchiveRecording(dir, src); err != nil {
		t.Fatalf("first archive: %v", err)
	}
	if _, _, err := ArchiveRecording(dir, src); err == nil {
		t.Fatal("second archive of the same recording succeeded")
	}
}

func TestArchiveRecordingRejectsUnreadable(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.rec.zst")
	if err := os.WriteFile(bad, []byte("not a recording"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := ArchiveRecording(dir, bad); err == nil {
		t.Fatal("archived an unreadable file")
	}
	if _, err := os.Stat(filepath.Join(dir, "archives")); !os.IsNotExist(err) {
		t.Fatal("failed archive left an archives/ tree behind")
	}
}
