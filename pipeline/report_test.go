package pipeline_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/justapithecus/sieve/pipeline"
	"github.com/justapithecus/sieve/stage"
	"github.com/justapithecus/sieve/types"
)

func result(offset int64, statuses ...stage.Status) *stage.Result {
	res := &stage.Result{Pos: types.Position{Offset: offset}}
	for i, s := range statuses {
		name := string(rune('a' + i))
		sr := stage.StageResult{Stage: name, Status: s}
		switch s {
		case stage.StatusFailed:
			sr.Err = &stage.ProcessingError{Stage: name, Phase: stage.PhaseProcess, Pos: res.Pos, Err: errors.New("bad input")}
		case stage.StatusProcessed:
			res.Entries = append(res.Entries, &types.Entry{Stage: name, Pos: res.Pos, Data: []byte("{}")})
		}
		res.Stages = append(res.Stages, sr)
	}
	return res
}

func reportOf(results ...*stage.Result) *pipeline.Report {
	r := pipeline.NewReport()
	for _, res := range results {
		r.RecordOutcome(res)
	}
	return r
}

func TestReport_RecordOutcome(t *testing.T) {
	r := reportOf(
		result(10, stage.StatusProcessed, stage.StatusDropped),
		result(20, stage.StatusDropped, stage.StatusDropped),
		result(30, stage.StatusFailed, stage.StatusProcessed),
		result(40, stage.StatusFailed, stage.StatusFailed),
	)

	if r.Processed() != 1 || r.Dropped() != 1 || r.Failed() != 2 || r.Records() != 4 {
		t.Errorf("got %d/%d/%d, want 1/1/2", r.Processed(), r.Dropped(), r.Failed())
	}
	if r.Entries() != 2 {
		t.Errorf("Entries() = %d, want 2", r.Entries())
	}

	want := map[string]pipeline.StageCounts{
		"a": {Processed: 1, Dropped: 1, Failed: 2, Entries: 1},
		"b": {Processed: 1, Dropped: 2, Failed: 1, Entries: 1},
	}
	if !reflect.DeepEqual(r.Stages(), want) {
		t.Errorf("Stages() = %+v, want %+v", r.Stages(), want)
	}

	failures := r.Failures()
	if len(failures) != 3 {
		t.Fatalf("got %d failures, want 3", len(failures))
	}
	if failures[0].Message != "bad input" || failures[0].Pos.Offset != 30 {
		t.Errorf("unexpected failure %+v", failures[0])
	}
}

func TestReport_MergeIsAssociativeAndCommutative(t *testing.T) {
	a := reportOf(result(50, stage.StatusFailed), result(10, stage.StatusProcessed))
	b := reportOf(result(30, stage.StatusDropped), result(20, stage.StatusFailed))
	c := reportOf(result(40, stage.StatusProcessed, stage.StatusFailed))

	left := a.Merge(b).Merge(c)
	right := a.Merge(b.Merge(c))
	swapped := c.Merge(a).Merge(b)

	for name, got := range map[string]*pipeline.Report{"right": right, "swapped": swapped} {
		if got.Processed() != left.Processed() || got.Dropped() != left.Dropped() || got.Failed() != left.Failed() {
			t.Errorf("%s: counters differ", name)
		}
		if !reflect.DeepEqual(got.Stages(), left.Stages()) {
			t.Errorf("%s: stages differ", name)
		}
		if !reflect.DeepEqual(got.Failures(), left.Failures()) {
			t.Errorf("%s: failures differ", name)
		}
	}

	var offsets []int64
	for _, f := range left.Failures() {
		offsets = append(offsets, f.Pos.Offset)
	}
	if !reflect.DeepEqual(offsets, []int64{20, 40, 50}) {
		t.Errorf("failures not sorted by position: %v", offsets)
	}

	// Operands are unchanged.
	if a.Records() != 2 || b.Records() != 2 || c.Records() != 1 {
		t.Error("Merge modified its operands")
	}
}

func TestReport_MergeNil(t *testing.T) {
	var empty *pipeline.Report
	got := empty.Merge(reportOf(result(1, stage.StatusProcessed)))
	if got.Processed() != 1 {
		t.Errorf("Processed() = %d, want 1", got.Processed())
	}
	if got := reportOf(result(1, stage.StatusDropped)).Merge(nil); got.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", got.Dropped())
	}
}
