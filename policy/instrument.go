package policy

import (
	"context"

	"github.com/justapithecus/sieve/metrics"
	"github.com/justapithecus/sieve/types"
)

// Instrument counts successful and failed writes to inner on c. A nil
// collector counts nothing.
func Instrument(inner Sink, c *metrics.Collector) Sink {
	return &instrumentedSink{Sink: inner, metrics: c}
}

type instrumentedSink struct {
	Sink
	metrics *metrics.Collector
}

func (s *instrumentedSink) Write(ctx context.Context, entries []*types.Entry) error {
	if err := s.Sink.Write(ctx, entries); err != nil {
		s.metrics.IncSinkWriteFailure()
		return err
	}
	s.metrics.IncSinkWriteSuccess()
	return nil
}
