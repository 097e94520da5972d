package policy_test

import (
	"errors"
	"testing"

	"github.com/justapithecus/sieve/metrics"
	"github.com/justapithecus/sieve/policy"
)

func TestInstrument(t *testing.T) {
	inner := policy.NewStubSink()
	collector := metrics.NewCollector("strict", "parallel", "stub", "run-001")
	sink := policy.Instrument(inner, collector)

	if err := sink.Write(t.Context(), makeEntries(0, 2)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	inner.ErrorOnWrite = errors.New("disk full")
	if err := sink.Write(t.Context(), makeEntries(2, 1)); err == nil {
		t.Fatal("expected write error")
	}

	snap := collector.Snapshot()
	if snap.SinkWriteSuccess != 1 || snap.SinkWriteFailure != 1 {
		t.Errorf("success/failure = %d/%d, want 1/1", snap.SinkWriteSuccess, snap.SinkWriteFailure)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !inner.Stats().Closed {
		t.Error("inner sink was not closed")
	}
}

func TestInstrument_NilCollector(t *testing.T) {
	sink := policy.Instrument(policy.NewStubSink(), nil)
	if err := sink.Write(t.Context(), makeEntries(0, 1)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}
