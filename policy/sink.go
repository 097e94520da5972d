package policy

import (
	"context"
	"sync"

	"github.com/justapithecus/sieve/types"
)

// Sink is an ordered, append-only destination for entries. Order must hold
// within a batch and across calls. A Write error aborts the run.
type Sink interface {
	Write(ctx context.Context, entries []*types.Entry) error
	Close() error
}

// StubSink keeps entries in memory for tests.
type StubSink struct {
	mu sync.Mutex

	EntriesWritten int64
	Batches        int64
	Closed         bool
	Written        []*types.Entry
	BatchSizes     []int

	// ErrorOnWrite fails every Write.
	ErrorOnWrite error
	// FailAfter > 0 fails every Write with ErrorOnFail once that many
	// batches have been accepted.
	FailAfter   int
	ErrorOnFail error
}

var _ Sink = (*StubSink)(nil)

func NewStubSink() *StubSink {
	return &StubSink{Written: []*types.Entry{}}
}

func (s *StubSink) Write(_ context.Context, entries []*types.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.ErrorOnWrite != nil:
		return s.ErrorOnWrite
	case s.FailAfter > 0 && s.Batches >= int64(s.FailAfter):
		return s.ErrorOnFail
	}
	s.Batches++
	s.EntriesWritten += int64(len(entries))
	s.Written = append(s.Written, entries...)
	s.BatchSizes = append(s.BatchSizes, len(entries))
	return nil
}

func (s *StubSink) Close() error {
	s.mu.Lock()
	s.Closed = true
	s.mu.Unlock()
	return nil
}

// Entries returns a copy of everything written so far.
func (s *StubSink) Entries() []*types.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Entry(nil), s.Written...)
}

// StubSinkStats is a point-in-time copy of StubSink counters.
type StubSinkStats struct {
	EntriesWritten int64
	Batches        int64
	Closed         bool
}

func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StubSinkStats{EntriesWritten: s.EntriesWritten, Batches: s.Batches, Closed: s.Closed}
}
