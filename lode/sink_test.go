package lode

import (
	"context"
	"testing"
	"time"

	"github.com/justapithecus/sieve/pipeline"
	"github.com/justapithecus/sieve/types"
)

func TestSink_Write(t *testing.T) {
	client := newStubClient()
	sink := NewSink(testConfig("run-123"), client)

	entries := []*types.Entry{
		entry("status", 0, 0, `{"status":200}`),
		entry("status", 0, 1, `{"status":301}`),
	}
	if err := sink.Write(t.Context(), entries); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := sink.Write(t.Context(), nil); err != nil {
		t.Fatalf("Write(nil) failed: %v", err)
	}

	if len(client.Batches) != 1 {
		t.Fatalf("batches = %d, want 1 (empty batches are skipped)", len(client.Batches))
	}
	if len(client.Batches[0]) != 2 {
		t.Errorf("len(batch) = %d, want 2", len(client.Batches[0]))
	}
}

func TestSink_WriteRunAndClose(t *testing.T) {
	client := newStubClient()
	sink := NewSink(testConfig("run-123"), client)

	rf := &pipeline.RunFile{RunID: "run-123"}
	if err := sink.WriteRun(t.Context(), rf, time.Now()); err != nil {
		t.Fatalf("WriteRun failed: %v", err)
	}
	if len(client.Runs) != 1 || client.Runs[0] != rf {
		t.Errorf("runs = %v, want the written run file", client.Runs)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !client.Closed {
		t.Error("client was not closed")
	}
}

func TestDeriveDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	start := time.Date(2026, 10, 18, 3, 0, 0, 0, loc)
	if got := DeriveDay(start); got != "2026-10-17" {
		t.Errorf("DeriveDay = %q, want 2026-10-17", got)
	}
}

type stubClient struct {
	Batches [][]*types.Entry
	Runs    []*pipeline.RunFile
	Closed  bool
}

func newStubClient() *stubClient { return &stubClient{} }

func (c *stubClient) WriteEntries(_ context.Context, entries []*types.Entry) error {
	c.Batches = append(c.Batches, entries)
	return nil
}

func (c *stubClient) WriteRun(_ context.Context, rf *pipeline.RunFile, _ time.Time) error {
	c.Runs = append(c.Runs, rf)
	return nil
}

func (c *stubClient) Close() error {
	c.Closed = true
	return nil
}
