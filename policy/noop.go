package policy

import (
	"context"

	"github.com/justapithecus/sieve/types"
)

// NoopPolicy counts entries without persisting them.
// Used for dry runs; entries are reported as persisted so stats stay comparable.
type NoopPolicy struct {
	stats *statsRecorder
}

var _ Policy = (*NoopPolicy)(nil)

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{stats: newStatsRecorder()}
}

// Ingest accepts the entries but does not persist them.
func (p *NoopPolicy) Ingest(_ context.Context, entries []*types.Entry) error {
	p.stats.incTotal(int64(len(entries)))
	if len(entries) > 0 {
		p.stats.incPersisted(int64(len(entries)))
	}
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error {
	return nil
}

// Stats returns the policy statistics.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}
