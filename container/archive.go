package container

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/justapithecus/sieve/iox"
	"github.com/justapithecus/sieve/types"
)

// SegmentOpenError reports that a segment could not be opened for reading.
type SegmentOpenError struct {
	Segment types.Segment
	Msg     string
	Err     error
}

func (e *SegmentOpenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to open %s: %s: %v", e.Segment, e.Msg, e.Err)
	}
	return fmt.Sprintf("failed to open %s: %s", e.Segment, e.Msg)
}

func (e *SegmentOpenError) Unwrap() error {
	return e.Err
}

// IsSegmentOpen returns true if err is or wraps a *SegmentOpenError.
func IsSegmentOpen(err error) bool {
	var serr *SegmentOpenError
	return errors.As(err, &serr)
}

const defaultReadBuffer = 64 * 1024

// Option configures an Archive.
type Option func(*Archive)

// WithReadBuffer sets the read buffer size used by cursors.
func WithReadBuffer(n int) Option {
	return func(a *Archive) {
		if n > 0 {
			a.readBuffer = n
		}
	}
}

// Archive is an opened container file.
//
// Next reads the whole container sequentially. Segments and OpenAt support
// independent concurrent readers; each Cursor holds its own file handle.
type Archive struct {
	path       string
	file       *os.File
	size       int64
	compressed bool
	readBuffer int

	indexOnce sync.Once
	index     *boundaryIndex
	indexErr  error

	seq *Cursor
}

// Open opens a container file and detects its layout.
func Open(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open container: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		iox.DiscardClose(f)
		return nil, fmt.Errorf("failed to stat container: %w", err)
	}

	a := &Archive{path: path, file: f, size: info.Size(), readBuffer: defaultReadBuffer}
	for _, opt := range opts {
		opt(a)
	}
	if a.size >= 2 {
		var magic [2]byte
		if _, err := f.ReadAt(magic[:], 0); err != nil {
			iox.DiscardClose(f)
			return nil, fmt.Errorf("failed to read container: %w", err)
		}
		a.compressed = isBlockMagic(magic[:])
	}
	return a, nil
}

// Path returns the container path.
func (a *Archive) Path() string { return a.path }

// Size returns the container size in bytes at open time.
func (a *Archive) Size() int64 { return a.size }

// Compressed reports whether the container is block-compressed.
func (a *Archive) Compressed() bool { return a.compressed }

// Next returns the next record in container order.
// It returns io.EOF once every record has been read.
func (a *Archive) Next() (*types.Record, error) {
	if a.seq == nil {
		a.seq = a.newCursor(a.file, types.Segment{Start: 0, End: a.size}, false)
	}
	return a.seq.Next()
}

// Boundaries returns every offset at which an independent reader may start.
// The result is computed once and cached.
func (a *Archive) Boundaries() ([]int64, error) {
	idx, err := a.loadIndex()
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(idx.offsets))
	copy(out, idx.offsets)
	return out, nil
}

// Segments partitions the container into at most n segments of roughly equal
// size. Segments start on record boundaries and never split a record.
// n < 1 is treated as 1; an empty container has no segments.
func (a *Archive) Segments(n int) ([]types.Segment, error) {
	idx, err := a.loadIndex()
	if err != nil {
		return nil, err
	}
	return idx.segments(n), nil
}

// OpenAt opens an independent cursor over seg.
func (a *Archive) OpenAt(seg types.Segment) (*Cursor, error) {
	idx, err := a.loadIndex()
	if err != nil {
		return nil, &SegmentOpenError{Segment: seg, Msg: "boundary scan failed", Err: err}
	}
	if seg.Start < 0 || seg.End > a.size || seg.Start > seg.End {
		return nil, &SegmentOpenError{Segment: seg, Msg: fmt.Sprintf("outside container of %d bytes", a.size)}
	}
	if seg.Start < seg.End && !idx.contains(seg.Start) {
		return nil, &SegmentOpenError{Segment: seg, Msg: "start is not a record boundary"}
	}

	f, err := os.Open(a.path)
	if err != nil {
		return nil, &SegmentOpenError{Segment: seg, Msg: "open failed", Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		iox.DiscardClose(f)
		return nil, &SegmentOpenError{Segment: seg, Msg: "stat failed", Err: err}
	}
	if info.Size() < seg.End {
		iox.DiscardClose(f)
		return nil, &SegmentOpenError{
			Segment: seg,
			Msg:     fmt.Sprintf("container shrank to %d bytes", info.Size()),
		}
	}
	return a.newCursor(f, seg, true), nil
}

// Close releases the archive file handle.
func (a *Archive) Close() error {
	return a.file.Close()
}

func (a *Archive) loadIndex() (*boundaryIndex, error) {
	a.indexOnce.Do(func() {
		a.index, a.indexErr = scanBoundaries(a.file, a.size, a.compressed)
	})
	return a.index, a.indexErr
}

func (a *Archive) newCursor(f *os.File, seg types.Segment, owned bool) *Cursor {
	c := &Cursor{
		seg:        seg,
		file:       f,
		owned:      owned,
		compressed: a.compressed,
		bufSize:    a.readBuffer,
		section:    io.NewSectionReader(f, seg.Start, seg.Len()),
		offset:     seg.Start,
	}
	if !c.compressed {
		c.frames = NewFrameDecoder(bufio.NewReaderSize(c.section, a.readBuffer))
	}
	return c
}

// Cursor reads the records of one segment in order.
// A Cursor is not safe for concurrent use; distinct cursors are independent.
type Cursor struct {
	seg        types.Segment
	file       *os.File
	owned      bool
	compressed bool
	bufSize    int
	section    *io.SectionReader
	offset     int64

	frames *FrameDecoder

	block    []*types.Record
	blockErr error

	err error
}

// Segment returns the segment this cursor reads.
func (c *Cursor) Segment() types.Segment { return c.seg }

// Next returns the next record, io.EOF at the end of the segment, or a
// *CorruptionError. Errors are sticky.
func (c *Cursor) Next() (*types.Record, error) {
	if c.err != nil {
		return nil, c.err
	}
	var rec *types.Record
	var err error
	if c.compressed {
		rec, err = c.nextCompressed()
	} else {
		rec, err = c.nextFrame()
	}
	if err != nil {
		c.err = err
	}
	return rec, err
}

func (c *Cursor) nextFrame() (*types.Record, error) {
	if c.offset >= c.seg.End {
		return nil, io.EOF
	}
	pos := types.Position{Offset: c.offset}
	payload, err := c.frames.ReadFrame()
	if err != nil {
		if err == io.EOF {
			err = &CorruptionError{Kind: CorruptionPartial, Msg: "container ended before segment end", Err: io.ErrUnexpectedEOF}
		}
		var cerr *CorruptionError
		if errors.As(err, &cerr) {
			cerr.Pos = pos
		}
		return nil, err
	}
	c.offset += FrameHeaderSize + int64(len(payload))
	return DecodeRecord(payload, pos)
}

func (c *Cursor) nextCompressed() (*types.Record, error) {
	for len(c.block) == 0 {
		if c.blockErr != nil {
			return nil, c.blockErr
		}
		if c.offset >= c.seg.End {
			return nil, io.EOF
		}
		if err := c.loadBlock(); err != nil {
			return nil, err
		}
	}
	rec := c.block[0]
	c.block = c.block[1:]
	return rec, nil
}

// loadBlock decodes the block at the cursor offset. Records decoded before a
// corruption are still returned ahead of the error.
func (c *Cursor) loadBlock() error {
	pos := types.Position{Offset: c.offset}
	next, ok, err := nextBoundary(c.file, c.offset, c.seg.End, true)
	if err != nil {
		return &CorruptionError{Pos: pos, Kind: CorruptionBlock, Msg: "failed to read block header", Err: err}
	}
	if !ok {
		return &CorruptionError{Pos: pos, Kind: CorruptionBlock, Msg: "invalid block header"}
	}

	r := io.NewSectionReader(c.file, c.offset, next-c.offset)
	records, err := decodeBlock(bufio.NewReaderSize(r, c.bufSize), c.offset)
	c.block = records
	c.blockErr = err
	c.offset = next
	if len(records) == 0 && err != nil {
		return err
	}
	return nil
}

// Close releases the cursor's file handle.
func (c *Cursor) Close() error {
	if !c.owned {
		return nil
	}
	return c.file.Close()
}
