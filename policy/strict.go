package policy

import (
	"context"

	"github.com/justapithecus/sieve/types"
)

// StrictPolicy implements synchronous, unbuffered persistence.
//
//   - No buffering: each Ingest call is written immediately as one batch
//   - Backpressure: caller blocks on sink latency
//   - Sink errors fail the run
type StrictPolicy struct {
	sink  Sink
	stats *statsRecorder
}

var _ Policy = (*StrictPolicy)(nil)

// NewStrictPolicy creates a new strict policy writing to the given sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{
		sink:  sink,
		stats: newStatsRecorder(),
	}
}

// Ingest writes the entries immediately to the sink.
// Empty batches are not forwarded.
func (p *StrictPolicy) Ingest(ctx context.Context, entries []*types.Entry) error {
	p.stats.incTotal(int64(len(entries)))
	if len(entries) == 0 {
		return nil
	}

	if err := p.sink.Write(ctx, entries); err != nil {
		p.stats.incErrors()
		return err
	}
	p.stats.incPersisted(int64(len(entries)))
	return nil
}

// Flush is a no-op for strict policy (nothing is buffered).
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close closes the underlying sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}
