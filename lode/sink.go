// Package lode persists run output to a Lode dataset.
//
// Entries and run records share one Hive-partitioned dataset keyed by
// day, run_id and record_kind. The filesystem and S3 backends use the same
// layout, so a dataset written by `sieve run` can be read back by `sieve
// report` from either.
package lode

import (
	"context"
	"time"

	"github.com/justapithecus/sieve/pipeline"
	"github.com/justapithecus/sieve/policy"
	"github.com/justapithecus/sieve/types"
)

// DefaultDataset is used when no dataset is configured.
const DefaultDataset = "sieve"

// DeriveDay returns the UTC day partition for a run started at t.
func DeriveDay(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// Config names the partition a run writes to.
type Config struct {
	Dataset string
	// Archive is recorded on run rows; it is not a partition key.
	Archive string
	Day     string
	RunID   string
}

// Client is the storage half of Sink.
type Client interface {
	// WriteEntries appends one batch, preserving order.
	WriteEntries(ctx context.Context, entries []*types.Entry) error
	WriteRun(ctx context.Context, rf *pipeline.RunFile, completedAt time.Time) error
	Close() error
}

// Sink adapts a Client to policy.Sink and adds run record storage.
type Sink struct {
	config Config
	client Client
}

var _ policy.Sink = (*Sink)(nil)

func NewSink(config Config, client Client) *Sink {
	return &Sink{config: config, client: client}
}

// Write skips empty batches so no empty snapshot is committed.
func (s *Sink) Write(ctx context.Context, entries []*types.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.client.WriteEntries(ctx, entries)
}

// WriteRun stores rf in the run's record_kind=run partition.
func (s *Sink) WriteRun(ctx context.Context, rf *pipeline.RunFile, completedAt time.Time) error {
	return s.client.WriteRun(ctx, rf, completedAt)
}

func (s *Sink) Close() error {
	return s.client.Close()
}
