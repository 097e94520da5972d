package pipeline

import (
	"cmp"
	"maps"
	"slices"

	"github.com/justapithecus/sieve/stage"
	"github.com/justapithecus/sieve/types"
)

// Failure describes one failed stage invocation on one record.
type Failure struct {
	Pos     types.Position `json:"pos"`
	Stage   string         `json:"stage"`
	Phase   stage.Phase    `json:"phase"`
	Panic   bool           `json:"panic,omitempty"`
	Message string         `json:"message"`
}

// StageCounts holds per-stage outcome counters.
type StageCounts struct {
	Processed int64 `json:"processed"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
	Entries   int64 `json:"entries"`
}

// Report accumulates per-record outcomes for one run.
//
// A Report is owned by a single goroutine while a run is in progress and is
// read-only once the run returns it. Merge combines reports without
// modifying either operand.
type Report struct {
	processed int64
	dropped   int64
	failed    int64
	entries   int64
	stages    map[string]StageCounts
	failures  []Failure
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{stages: make(map[string]StageCounts)}
}

// RecordOutcome records the chain result for one record.
// The record counts as failed if any stage failed, dropped if every stage
// dropped it, and processed otherwise.
func (r *Report) RecordOutcome(res *stage.Result) {
	switch res.Status() {
	case stage.StatusFailed:
		r.failed++
	case stage.StatusDropped:
		r.dropped++
	default:
		r.processed++
	}

	for _, sr := range res.Stages {
		c := r.stages[sr.Stage]
		switch sr.Status {
		case stage.StatusFailed:
			c.Failed++
		case stage.StatusDropped:
			c.Dropped++
		default:
			c.Processed++
		}
		r.stages[sr.Stage] = c
	}
	for _, e := range res.Entries {
		c := r.stages[e.Stage]
		c.Entries++
		r.stages[e.Stage] = c
	}
	r.entries += int64(len(res.Entries))

	for _, perr := range res.Failures() {
		r.failures = append(r.failures, Failure{
			Pos:     perr.Pos,
			Stage:   perr.Stage,
			Phase:   perr.Phase,
			Panic:   perr.Panic,
			Message: perr.Err.Error(),
		})
	}
}

// Merge returns a report combining r and other. Counts are summed and
// failure descriptors are unioned.
func (r *Report) Merge(other *Report) *Report {
	out := r.clone()
	out.absorb(other)
	return out
}

func (r *Report) clone() *Report {
	if r == nil {
		return NewReport()
	}
	out := *r
	out.stages = maps.Clone(r.stages)
	if out.stages == nil {
		out.stages = make(map[string]StageCounts)
	}
	out.failures = slices.Clone(r.failures)
	return &out
}

// absorb adds other into r in place.
func (r *Report) absorb(other *Report) {
	if other == nil {
		return
	}
	r.processed += other.processed
	r.dropped += other.dropped
	r.failed += other.failed
	r.entries += other.entries
	for name, oc := range other.stages {
		c := r.stages[name]
		c.Processed += oc.Processed
		c.Dropped += oc.Dropped
		c.Failed += oc.Failed
		c.Entries += oc.Entries
		r.stages[name] = c
	}
	r.failures = append(r.failures, other.failures...)
}

// Processed returns the number of records with at least one processed stage and no failures.
func (r *Report) Processed() int64 { return r.processed }

// Dropped returns the number of records every stage dropped.
func (r *Report) Dropped() int64 { return r.dropped }

// Failed returns the number of records on which at least one stage failed.
func (r *Report) Failed() int64 { return r.failed }

// Records returns the number of records attempted.
func (r *Report) Records() int64 { return r.processed + r.dropped + r.failed }

// Entries returns the number of entries emitted.
func (r *Report) Entries() int64 { return r.entries }

// Stages returns a copy of the per-stage counters.
func (r *Report) Stages() map[string]StageCounts {
	return maps.Clone(r.stages)
}

// Failures returns the failure descriptors sorted by position, then stage.
func (r *Report) Failures() []Failure {
	out := slices.Clone(r.failures)
	slices.SortStableFunc(out, func(a, b Failure) int {
		if c := cmp.Compare(a.Pos.Offset, b.Pos.Offset); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Pos.Index, b.Pos.Index); c != 0 {
			return c
		}
		return cmp.Compare(a.Stage, b.Stage)
	})
	return out
}
