// Package policy defines how drained output entries reach the sink.
package policy

import (
	"context"
	"sync"

	"github.com/justapithecus/sieve/types"
)

// Policy controls batching of entries on their way to a Sink.
//
// Policies never drop or reorder entries: the sink receives exactly the
// entries passed to Ingest, in call order. Ingest is called by a single
// goroutine (the runner's drain loop), so sink writes are totally ordered.
// A policy error terminates the run.
type Policy interface {
	// Ingest accepts entries drained for one record or one segment.
	Ingest(ctx context.Context, entries []*types.Entry) error

	// Flush writes any buffered entries.
	// Called once the run reaches a terminal state.
	Flush(ctx context.Context) error

	// Close releases the underlying sink.
	Close() error

	// Stats returns a consistent snapshot of policy metrics.
	Stats() Stats
}

// Stats represents policy observability metrics.
type Stats struct {
	// TotalEntries is the total number of entries received.
	TotalEntries int64 `json:"total_entries"`
	// EntriesPersisted is the number of entries written to the sink.
	EntriesPersisted int64 `json:"entries_persisted"`
	// WriteCalls is the number of sink Write calls.
	WriteCalls int64 `json:"write_calls"`
	// BufferSize is the current buffer size in bytes (if buffered).
	BufferSize int64 `json:"buffer_size"`
	// BufferedEntries is the current number of buffered entries (if buffered).
	BufferedEntries int64 `json:"buffered_entries"`
	// FlushCount is the number of flush operations.
	FlushCount int64 `json:"flush_count"`
	// Errors is the count of sink errors encountered.
	Errors int64 `json:"errors"`
}

// statsRecorder is an internal helper for thread-safe stats management.
// Policies call explicit methods to record mutations.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{}
}

func (r *statsRecorder) incTotal(n int64) {
	r.mu.Lock()
	r.stats.TotalEntries += n
	r.mu.Unlock()
}

func (r *statsRecorder) incPersisted(n int64) {
	r.mu.Lock()
	r.stats.EntriesPersisted += n
	r.stats.WriteCalls++
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) setBuffer(entries, bytes int64) {
	r.mu.Lock()
	r.stats.BufferedEntries = entries
	r.stats.BufferSize = bytes
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// entriesSize returns the estimated in-memory size of entries.
func entriesSize(entries []*types.Entry) int64 {
	var n int64
	for _, e := range entries {
		n += e.Size()
	}
	return n
}
