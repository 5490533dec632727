package recording

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Reader streams a recording line by line. Callers that only need the
// verified outcome use Replay instead.
type Reader struct {
	f   *os.File
	dec *zstd.Decoder
	sc  *bufio.Scanner
	h   Header
}

// Open decodes the header and positions the reader at the first step.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	if !sc.Scan() {
		err := sc.Err()
		dec.Close()
		f.Close()
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("recording %s is empty", path)
	}
	r := &Reader{f: f, dec: dec, sc: sc}
	if err := decodeHeader(sc.Bytes(), &r.h); err != nil {
		dec.Close()
		f.Close()
		return nil, err
	}
	return r, nil
}

func decodeHeader(line []byte, h *Header) error {
	if err := json.Unmarshal(line, h); err != nil {
		return fmt.Errorf("recording header: %w", err)
	}
	if h.Version > Version {
		return fmt.Errorf("recording version %d is newer than this build (%d)", h.Version, Version)
	}
	return nil
}

// Header returns the recording header.
func (r *Reader) Header() Header { return r.h }

// Next returns the next step line, or io.EOF past the last one.
func (r *Reader) Next() (StepLine, error) {
	var line StepLine
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return line, err
		}
		return line, io.EOF
	}
	if err := json.Unmarshal(r.sc.Bytes(), &line); err != nil {
		return line, fmt.Errorf("recording line: %w", err)
	}
	return line, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	r.dec.Close()
	return r.f.Close()
}
