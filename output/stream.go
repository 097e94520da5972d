package output

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/justapithecus/sieve/policy"
	"github.com/justapithecus/sieve/types"
)

// ErrSinkClosed is returned by Write after Close.
var ErrSinkClosed = errors.New("sink is closed")

// StreamSink writes entries as JSON lines to a byte stream.
// Each Write is flushed before it returns, so the stream holds every
// acknowledged batch.
type StreamSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	closed bool
}

var _ policy.Sink = (*StreamSink)(nil)

// NewStreamSink creates a sink writing to w. w is not closed by Close.
func NewStreamSink(w io.Writer) *StreamSink {
	return &StreamSink{w: bufio.NewWriter(w)}
}

// OpenFileSink creates (or truncates) path and returns a sink writing to it.
// The path "-" selects stdout.
func OpenFileSink(path string) (*StreamSink, error) {
	if path == "" {
		return nil, errors.New("output path must not be empty")
	}
	if path == "-" {
		return NewStreamSink(os.Stdout), nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	s := NewStreamSink(f)
	s.closer = f
	return s, nil
}

// Write appends one line per entry.
func (s *StreamSink) Write(_ context.Context, entries []*types.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	for _, e := range entries {
		data, err := json.Marshal(NewLine(e))
		if err != nil {
			return fmt.Errorf("failed to encode entry at %s: %w", e.Pos, err)
		}
		data = append(data, '\n')
		if _, err := s.w.Write(data); err != nil {
			return fmt.Errorf("failed to write entry at %s: %w", e.Pos, err)
		}
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}

// Close flushes buffered output and closes the file if the sink owns it.
func (s *StreamSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	err := s.w.Flush()
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
	}
	return err
}

// ReadLines decodes a JSON-lines stream written by StreamSink.
func ReadLines(r io.Reader) ([]*types.Entry, error) {
	var out []*types.Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var l Line
		if err := json.Unmarshal(line, &l); err != nil {
			return out, fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, l.Entry())
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("failed to read lines: %w", err)
	}
	return out, nil
}
