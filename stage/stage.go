// Package stage defines record-processing stages and the chain that applies them.
//
// A Stage pairs a Processor, which filters or transforms a record, with a
// Writer, which serializes the processor's value into output entries. A Chain
// applies every stage to every record (fan-out): each stage sees the same
// source record, and a Dropped outcome only skips that stage's Writer.
//
// Processors and Writers are called concurrently from many workers and must be
// safe for concurrent use.
package stage

import (
	"context"

	"github.com/justapithecus/sieve/types"
)

// Outcome is the result of processing one record.
type Outcome struct {
	value   any
	dropped bool
}

// Transformed returns an outcome carrying v to the stage's Writer.
func Transformed(v any) Outcome {
	return Outcome{value: v}
}

// Dropped returns an outcome that skips the stage's Writer.
func Dropped() Outcome {
	return Outcome{dropped: true}
}

// IsDropped reports whether the record was dropped.
func (o Outcome) IsDropped() bool { return o.dropped }

// Value returns the transformed value, or nil if dropped.
func (o Outcome) Value() any { return o.value }

// Processor filters or transforms a record.
type Processor interface {
	Process(ctx context.Context, rec *types.Record) (Outcome, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, rec *types.Record) (Outcome, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, rec *types.Record) (Outcome, error) {
	return f(ctx, rec)
}

// Writer serializes a processed value into zero or more entries.
type Writer interface {
	Write(ctx context.Context, value any, out *Output) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, value any, out *Output) error

// Write calls f.
func (f WriterFunc) Write(ctx context.Context, value any, out *Output) error {
	return f(ctx, value, out)
}

// Output collects the entries one stage emits for one record.
type Output struct {
	stage   string
	pos     types.Position
	entries []*types.Entry
}

// Append emits one entry holding data.
func (o *Output) Append(data []byte) {
	o.entries = append(o.entries, &types.Entry{Stage: o.stage, Pos: o.pos, Data: data})
}

// Len returns the number of entries emitted so far.
func (o *Output) Len() int { return len(o.entries) }

// Stage is a named Processor and Writer pair.
type Stage struct {
	Name      string
	Processor Processor
	Writer    Writer
}
