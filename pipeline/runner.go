// Package pipeline runs a stage chain over a container archive.
//
// A Runner reads records either sequentially (RunSequentially) or from
// independently decodable segments on a bounded worker pool (Run). Both
// modes produce the same sink contents and the same Report: parallel workers
// buffer their output and a single drain loop appends it to the sink in
// segment order.
//
// Per-record stage failures are recorded in the Report and never stop a run.
// Structural failures (container corruption, segment-open failure, worker
// crash, sink failure, cancellation) abort it with a *RunError; the partial
// Report is returned alongside the error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/justapithecus/sieve/container"
	"github.com/justapithecus/sieve/log"
	"github.com/justapithecus/sieve/metrics"
	"github.com/justapithecus/sieve/policy"
	"github.com/justapithecus/sieve/stage"
	"github.com/justapithecus/sieve/types"
)

// DefaultBatchRecords is the number of records a worker buffers before
// handing its output to the drain loop.
const DefaultBatchRecords = 256

// flushTimeout bounds the terminal policy flush.
const flushTimeout = 30 * time.Second

// State is the lifecycle state of a Runner.
type State int32

const (
	StateIdle State = iota
	StatePartitioning
	StateRunning
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePartitioning:
		return "partitioning"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Source is the record source a Runner consumes.
// *container.Archive implements it.
type Source interface {
	Next() (*types.Record, error)
	Segments(n int) ([]types.Segment, error)
	OpenAt(seg types.Segment) (*container.Cursor, error)
}

var _ Source = (*container.Archive)(nil)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the run logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics sets the metrics collector. A nil collector records nothing.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

// WithPolicy replaces the default strict drain policy.
// The policy must write to the sink passed to NewRunner, or discard entries
// entirely (policy.NoopPolicy).
func WithPolicy(p policy.Policy) Option {
	return func(r *Runner) { r.policy = p }
}

// WithBatchRecords sets how many records a parallel worker buffers per
// hand-off to the drain loop. Values below 1 select DefaultBatchRecords.
func WithBatchRecords(n int) Option {
	return func(r *Runner) { r.batchRecords = n }
}

// Runner applies a stage chain to every record of a source.
// A Runner performs a single run; create a new one per run.
type Runner struct {
	src          Source
	chain        *stage.Chain
	sink         policy.Sink
	policy       policy.Policy
	logger       *log.Logger
	metrics      *metrics.Collector
	batchRecords int

	state   atomic.Int32
	started atomic.Bool
}

// NewRunner creates a runner over src, chain and sink.
// The runner never closes the sink; the caller owns it.
func NewRunner(src Source, chain *stage.Chain, sink policy.Sink, opts ...Option) *Runner {
	r := &Runner{
		src:   src,
		chain: chain,
		sink:  sink,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.policy == nil {
		r.policy = policy.NewStrictPolicy(sink)
	}
	if r.logger == nil {
		r.logger = log.NewNop()
	}
	if r.batchRecords < 1 {
		r.batchRecords = DefaultBatchRecords
	}
	return r
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Policy returns the drain policy in use.
func (r *Runner) Policy() policy.Policy {
	return r.policy
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
}

// begin claims the runner and freezes the chain.
func (r *Runner) begin(mode types.Mode, workers int) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrRunnerUsed
	}
	if r.src == nil || r.chain == nil {
		return errors.New("runner requires a source and a chain")
	}
	r.chain.Freeze()
	r.metrics.IncRunStarted()
	r.logger.Info("starting run", map[string]any{
		"mode":    string(mode),
		"workers": workers,
		"stages":  r.chain.Names(),
	})
	return nil
}

// RunSequentially processes every record in container order on the calling
// goroutine. It is the reference behavior Run must reproduce.
//
// Cancellation is checked at each record boundary. On corruption the run
// aborts with a *RunError of kind ErrorCorruption and the report covers
// exactly the records read before the corrupt one.
func (r *Runner) RunSequentially(ctx context.Context) (*Report, error) {
	if err := r.begin(types.ModeSequential, 1); err != nil {
		return nil, err
	}
	start := time.Now()
	report := NewReport()
	r.setState(StateRunning)

	for {
		if err := ctx.Err(); err != nil {
			return r.finish(ctx, report, &RunError{Kind: ErrorCanceled, Err: err}, start)
		}

		rec, err := r.src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.finish(ctx, report, r.readError(err), start)
		}
		r.metrics.IncRecordsRead()

		res := r.apply(ctx, rec)
		if err := r.policy.Ingest(ctx, res.Entries); err != nil {
			return r.finish(ctx, report, &RunError{Kind: ErrorSink, Err: err}, start)
		}
		report.RecordOutcome(&res)
	}

	return r.finish(ctx, report, nil, start)
}

// apply runs the chain on one record and records live metrics.
func (r *Runner) apply(ctx context.Context, rec *types.Record) stage.Result {
	res := r.chain.Apply(ctx, rec)
	for _, perr := range res.Failures() {
		r.metrics.IncStageFailure()
		r.logger.Debug("stage failed", map[string]any{
			"stage":    perr.Stage,
			"phase":    string(perr.Phase),
			"position": perr.Pos.String(),
			"panic":    perr.Panic,
			"error":    perr.Err.Error(),
		})
	}
	return res
}

// readError classifies a source read failure.
func (r *Runner) readError(err error) error {
	if container.IsCorruption(err) {
		r.metrics.IncCorruption()
		return &RunError{Kind: ErrorCorruption, Err: err}
	}
	return &RunError{Kind: ErrorWorker, Err: fmt.Errorf("read records: %w", err)}
}

// finish flushes the policy and moves the runner to its terminal state.
// The flush runs on every path; a flush failure fails an otherwise
// completed run.
func (r *Runner) finish(ctx context.Context, report *Report, runErr error, start time.Time) (*Report, error) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	flushErr := r.policy.Flush(flushCtx)
	cancel()
	if flushErr != nil {
		if runErr == nil {
			runErr = &RunError{Kind: ErrorSink, Err: fmt.Errorf("flush: %w", flushErr)}
		} else {
			r.logger.Warn("policy flush failed (best effort)", map[string]any{
				"error": flushErr.Error(),
			})
		}
	}

	stats := r.policy.Stats()
	r.metrics.AbsorbPolicyStats(stats.TotalEntries, stats.EntriesPersisted)

	fields := map[string]any{
		"processed": report.Processed(),
		"dropped":   report.Dropped(),
		"failed":    report.Failed(),
		"entries":   report.Entries(),
		"duration":  time.Since(start).String(),
	}

	if runErr != nil {
		r.setState(StateAborted)
		r.metrics.IncRunAborted()
		kind, _ := KindOf(runErr)
		fields["kind"] = string(kind)
		fields["error"] = runErr.Error()
		r.logger.Error("run aborted", fields)
		return report, runErr
	}

	r.setState(StateCompleted)
	if report.Failed() > 0 {
		r.metrics.IncRunPartial()
	} else {
		r.metrics.IncRunCompleted()
	}
	r.logger.Info("run completed", fields)
	return report, nil
}
