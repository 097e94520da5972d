// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single run. It is a leaf package
// with no internal dependencies. Drain policy metrics are absorbed from
// policy.Stats at run completion rather than recorded live, avoiding double-counting.
//
// Live record counters count work done by every worker, including records in
// segments that were never drained after an abort; the run report counts
// drained records only.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64 `json:"runs_started"`
	RunsCompleted int64 `json:"runs_completed"`
	RunsPartial   int64 `json:"runs_partial"`
	RunsAborted   int64 `json:"runs_aborted"`

	// Source
	RecordsRead         int64 `json:"records_read"`
	SegmentsStarted     int64 `json:"segments_started"`
	SegmentsDrained     int64 `json:"segments_drained"`
	SegmentOpenFailures int64 `json:"segment_open_failures"`
	CorruptionErrors    int64 `json:"corruption_errors"`
	WorkerPanics        int64 `json:"worker_panics"`

	// Stages
	StageFailures int64 `json:"stage_failures"`

	// Resolution
	LookupSuccess   int64 `json:"lookup_success"`
	LookupTemporary int64 `json:"lookup_temporary"`
	LookupPermanent int64 `json:"lookup_permanent"`

	// Drain (absorbed from policy.Stats at run completion)
	EntriesReceived  int64 `json:"entries_received"`
	EntriesPersisted int64 `json:"entries_persisted"`

	// Sink
	SinkWriteSuccess int64 `json:"sink_write_success"`
	SinkWriteFailure int64 `json:"sink_write_failure"`

	// Dimensions (informational, set at construction)
	Policy      string `json:"policy"`
	Mode        string `json:"mode"`
	SinkBackend string `json:"sink_backend"`
	RunID       string `json:"run_id"`
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(policy, mode, sinkBackend, runID string) *Collector {
	return &Collector{
		s: Snapshot{
			Policy:      policy,
			Mode:        mode,
			SinkBackend: sinkBackend,
			RunID:       runID,
		},
	}
}

// update applies fn under the lock. No-op on a nil collector.
func (c *Collector) update(fn func(s *Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	fn(&c.s)
	c.mu.Unlock()
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() { c.update(func(s *Snapshot) { s.RunsStarted++ }) }

// IncRunCompleted records a run that completed without record failures.
func (c *Collector) IncRunCompleted() { c.update(func(s *Snapshot) { s.RunsCompleted++ }) }

// IncRunPartial records a run that completed with record failures.
func (c *Collector) IncRunPartial() { c.update(func(s *Snapshot) { s.RunsPartial++ }) }

// IncRunAborted records an aborted run.
func (c *Collector) IncRunAborted() { c.update(func(s *Snapshot) { s.RunsAborted++ }) }

// --- Source ---

// IncRecordsRead records one decoded record.
func (c *Collector) IncRecordsRead() { c.update(func(s *Snapshot) { s.RecordsRead++ }) }

// IncSegmentStarted records a worker opening a segment.
func (c *Collector) IncSegmentStarted() { c.update(func(s *Snapshot) { s.SegmentsStarted++ }) }

// IncSegmentDrained records a segment buffer drained to the sink.
func (c *Collector) IncSegmentDrained() { c.update(func(s *Snapshot) { s.SegmentsDrained++ }) }

// IncSegmentOpenFailure records a segment that could not be opened.
func (c *Collector) IncSegmentOpenFailure() { c.update(func(s *Snapshot) { s.SegmentOpenFailures++ }) }

// IncCorruption records a corruption error from the source.
func (c *Collector) IncCorruption() { c.update(func(s *Snapshot) { s.CorruptionErrors++ }) }

// IncWorkerPanic records a recovered worker panic outside stage code.
func (c *Collector) IncWorkerPanic() { c.update(func(s *Snapshot) { s.WorkerPanics++ }) }

// --- Stages ---

// IncStageFailure records a processor or writer failure.
func (c *Collector) IncStageFailure() { c.update(func(s *Snapshot) { s.StageFailures++ }) }

// --- Resolution ---

// IncLookupSuccess records a successful name resolution.
func (c *Collector) IncLookupSuccess() { c.update(func(s *Snapshot) { s.LookupSuccess++ }) }

// IncLookupTemporary records a temporary resolution failure.
func (c *Collector) IncLookupTemporary() { c.update(func(s *Snapshot) { s.LookupTemporary++ }) }

// IncLookupPermanent records a permanent resolution failure.
func (c *Collector) IncLookupPermanent() { c.update(func(s *Snapshot) { s.LookupPermanent++ }) }

// --- Sink ---
// Sink counters are per-call, not per-entry. A single Write call with N
// entries counts as 1 success. Per-entry granularity is tracked by policy.Stats.

// IncSinkWriteSuccess records a successful sink write (per-call).
func (c *Collector) IncSinkWriteSuccess() { c.update(func(s *Snapshot) { s.SinkWriteSuccess++ }) }

// IncSinkWriteFailure records a failed sink write (per-call).
func (c *Collector) IncSinkWriteFailure() { c.update(func(s *Snapshot) { s.SinkWriteFailure++ }) }

// --- Drain (absorbed from policy.Stats) ---

// AbsorbPolicyStats copies drain counters from policy.Stats into the collector.
// Called once after the run with the final policy stats snapshot.
func (c *Collector) AbsorbPolicyStats(received, persisted int64) {
	c.update(func(s *Snapshot) {
		s.EntriesReceived = received
		s.EntriesPersisted = persisted
	})
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
