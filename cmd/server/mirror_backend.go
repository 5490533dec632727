package main

import (
	"log"
	"os"
	"strings"
	"time"

	"gridcraft.ai/internal/persistence/r2s3"
)

// openMirror builds the artifact mirror when the environment carries
// bucket credentials. An unset endpoint means no mirroring.
func openMirror(dataDir string, logger *log.Logger) (*r2s3.Mirror, error) {
	endpoint := strings.TrimSpace(os.Getenv("GC_MIRROR_ENDPOINT"))
	if endpoint == "" {
		return nil, nil
	}
	client, err := r2s3.New(
		endpoint,
		os.Getenv("GC_MIRROR_BUCKET"),
		os.Getenv("GC_MIRROR_ACCESS_KEY_ID"),
		os.Getenv("GC_MIRROR_SECRET_ACCESS_KEY"),
	)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimSpace(os.Getenv("GC_MIRROR_PREFIX"))
	if prefix == "" {
		prefix = "gridcraft"
	}
	return r2s3.NewMirror(
		client,
		dataDir,
		prefix,
		envInt("GC_MIRROR_WORKERS", 2),
		envInt("GC_MIRROR_QUEUE", 256),
		time.Duration(envInt("GC_MIRROR_ENQUEUE_WAIT_MS", 25))*time.Millisecond,
		logger,
	), nil
}

// mirrorRecordings adapts the mirror to the gateway's recording sink.
type mirrorRecordings struct{ m *r2s3.Mirror }

func (s mirrorRecordings) RecordingClosed(path string) { s.m.Enqueue(path) }
