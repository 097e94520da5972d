package policy

import (
	"context"
	"errors"
	"sync"

	"github.com/justapithecus/sieve/log"
	"github.com/justapithecus/sieve/types"
)

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferEntries flushes once this many entries are buffered.
	// Zero means no count limit (use MaxBufferBytes instead).
	MaxBufferEntries int

	// MaxBufferBytes flushes once the estimated buffer size reaches this many bytes.
	// Zero means no byte limit (use MaxBufferEntries instead).
	// At least one limit must be set.
	MaxBufferBytes int64

	// Logger is an optional logger for policy observability.
	// If nil, no logging is emitted.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{
		MaxBufferEntries: 1000,
		MaxBufferBytes:   10 * 1024 * 1024, // 10 MB
	}
}

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: at least one of MaxBufferEntries or MaxBufferBytes must be set")

// BufferedPolicy batches entries into fewer, larger sink writes.
//
//   - Bounded buffer with explicit limits
//   - No drops: a full buffer triggers a flush instead
//   - Order preserved: batches are written in ingest order
//   - On flush failure the buffer is kept so nothing is lost
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu          sync.Mutex // guards buffer state
	buffer      []*types.Entry
	bufferBytes int64
	stats       *statsRecorder
}

var _ Policy = (*BufferedPolicy)(nil)

// NewBufferedPolicy creates a new buffered policy.
// Returns error if config is invalid.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferEntries <= 0 && config.MaxBufferBytes <= 0 {
		return nil, ErrInvalidConfig
	}

	return &BufferedPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]*types.Entry, 0, max(config.MaxBufferEntries, 100)),
		stats:  newStatsRecorder(),
	}, nil
}

// Ingest buffers entries and flushes when a limit is reached.
func (p *BufferedPolicy) Ingest(ctx context.Context, entries []*types.Entry) error {
	p.stats.incTotal(int64(len(entries)))
	if len(entries) == 0 {
		return nil
	}

	p.mu.Lock()
	p.buffer = append(p.buffer, entries...)
	p.bufferBytes += entriesSize(entries)
	full := p.isFull()
	p.stats.setBuffer(int64(len(p.buffer)), p.bufferBytes)
	p.mu.Unlock()

	if !full {
		return nil
	}
	return p.flush(ctx, "limit")
}

// isFull reports whether a limit is reached. Caller must hold mu.
func (p *BufferedPolicy) isFull() bool {
	if p.config.MaxBufferEntries > 0 && len(p.buffer) >= p.config.MaxBufferEntries {
		return true
	}
	return p.config.MaxBufferBytes > 0 && p.bufferBytes >= p.config.MaxBufferBytes
}

// Flush writes all buffered entries to the sink.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	return p.flush(ctx, "termination")
}

func (p *BufferedPolicy) flush(ctx context.Context, trigger string) error {
	p.stats.incFlush()

	p.mu.Lock()
	batch := p.buffer
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := p.sink.Write(ctx, batch); err != nil {
		p.stats.incErrors()
		p.logFlushFailure(trigger, len(batch), err)
		// Keep the buffer intact; a retry writes the same batch.
		return err
	}
	p.stats.incPersisted(int64(len(batch)))

	p.mu.Lock()
	p.buffer = make([]*types.Entry, 0, max(p.config.MaxBufferEntries, 100))
	p.bufferBytes = 0
	p.stats.setBuffer(0, 0)
	p.mu.Unlock()

	p.logger.Debug("buffer flushed", map[string]any{
		"trigger": trigger,
		"entries": len(batch),
	})
	return nil
}

// Close closes the underlying sink.
// Close does not flush; call Flush first.
func (p *BufferedPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *BufferedPolicy) Stats() Stats {
	return p.stats.snapshot()
}

func (p *BufferedPolicy) logFlushFailure(trigger string, entries int, err error) {
	p.logger.Error("buffer flush failed", map[string]any{
		"trigger": trigger,
		"entries": entries,
		"error":   err.Error(),
	})
}
