package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/justapithecus/sieve/iox"
	"github.com/justapithecus/sieve/types"
)

// ErrWriterClosed is returned by Append after Close.
var ErrWriterClosed = errors.New("container writer is closed")

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithBlockRecords enables block compression with n records per block.
// n <= 0 writes an uncompressed container.
func WithBlockRecords(n int) WriterOption {
	return func(w *Writer) { w.blockRecords = n }
}

// WithCompressionLevel sets the gzip level used for blocks.
func WithCompressionLevel(level int) WriterOption {
	return func(w *Writer) { w.level = level }
}

// Writer appends records to a container stream.
// Writer is not safe for concurrent use.
type Writer struct {
	out          *iox.CountingWriter
	blockRecords int
	level        int

	pending      bytes.Buffer
	pendingCount int
	closed       bool
}

// NewWriter creates a container writer over w.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	cw := &Writer{
		out:   iox.NewCountingWriter(w),
		level: gzip.DefaultCompression,
	}
	for _, opt := range opts {
		opt(cw)
	}
	return cw
}

// Compressed reports whether the writer emits blocks.
func (w *Writer) Compressed() bool {
	return w.blockRecords > 0
}

// Offset returns the number of bytes written to the underlying stream.
// Records buffered in an open block are not counted until it is flushed.
func (w *Writer) Offset() int64 {
	return w.out.Count()
}

// Append writes rec and returns the position it will be read back at.
func (w *Writer) Append(rec *types.Record) (types.Position, error) {
	if w.closed {
		return types.Position{}, ErrWriterClosed
	}

	payload, err := EncodeRecord(rec)
	if err != nil {
		return types.Position{}, err
	}

	if !w.Compressed() {
		pos := types.Position{Offset: w.out.Count()}
		if _, err := WriteFrame(w.out, payload); err != nil {
			return types.Position{}, fmt.Errorf("failed to write frame: %w", err)
		}
		return pos, nil
	}

	pos := types.Position{Offset: w.out.Count(), Index: w.pendingCount}
	if _, err := WriteFrame(&w.pending, payload); err != nil {
		return types.Position{}, err
	}
	w.pendingCount++
	if w.pendingCount >= w.blockRecords {
		if err := w.Flush(); err != nil {
			return types.Position{}, err
		}
	}
	return pos, nil
}

// Flush closes the open block, if any. No-op for uncompressed containers.
func (w *Writer) Flush() error {
	if !w.Compressed() || w.pendingCount == 0 {
		return nil
	}

	block, err := encodeBlock(w.pending.Bytes(), w.level)
	if err != nil {
		return err
	}
	if _, err := w.out.Write(block); err != nil {
		return fmt.Errorf("failed to write block: %w", err)
	}
	w.pending.Reset()
	w.pendingCount = 0
	return nil
}

// Close flushes pending records. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.Flush()
}
