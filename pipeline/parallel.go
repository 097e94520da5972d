package pipeline

import (
	"context"
	"errors"
	"io"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justapithecus/sieve/iox"
	"github.com/justapithecus/sieve/stage"
	"github.com/justapithecus/sieve/types"
)

// errSuperseded stops a worker whose segment will never be drained.
var errSuperseded = errors.New("segment superseded by abort")

// batch is a run of consecutive records from one segment, handed from a
// worker to the drain loop.
// SegmentWindow is the number of batches a segment may have handed off but
// not yet drained. A worker ahead of the drain blocks once its segment's
// window is full, so buffered output stays within
// workers × (SegmentWindow+1) × batch size records.
const SegmentWindow = 4

type batch struct {
	segment int
	entries []*types.Entry
	report  *Report
	// final marks the last batch of the segment.
	final bool
	// err is the structural failure that ended the segment, if any.
	err error
}

// abortMark holds the lowest segment index that failed structurally.
// Segments after it are never drained, so their workers stop early.
type abortMark struct {
	at atomic.Int64
}

func newAbortMark() *abortMark {
	m := &abortMark{}
	m.at.Store(math.MaxInt64)
	return m
}

func (m *abortMark) mark(segment int) {
	for {
		cur := m.at.Load()
		if int64(segment) >= cur || m.at.CompareAndSwap(cur, int64(segment)) {
			return
		}
	}
}

func (m *abortMark) after(segment int) bool {
	return int64(segment) > m.at.Load()
}

// Run processes the source on a pool of workers. workers ≤ 0 selects
// runtime.GOMAXPROCS(0).
//
// The source is partitioned with Segments(workers). Workers pull segments in
// order, process them exactly as RunSequentially would, and hand buffered
// output to a drain loop that appends it to the sink strictly in segment
// order. Sink contents and report therefore equal the sequential run's.
//
// On a structural failure in segment k, earlier segments still finish and
// drain, then the records of segment k read before the failure drain, and
// workers on later segments stop at their next record boundary. Sink
// failures and caller cancellation stop every worker immediately.
func (r *Runner) Run(ctx context.Context, workers int) (*Report, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if err := r.begin(types.ModeParallel, workers); err != nil {
		return nil, err
	}
	start := time.Now()
	report := NewReport()

	r.setState(StatePartitioning)
	segments, err := r.src.Segments(workers)
	if err != nil {
		return r.finish(ctx, report, &RunError{Kind: ErrorSegmentOpen, Err: err}, start)
	}
	r.logger.Debug("partitioned source", map[string]any{
		"segments": len(segments),
		"workers":  workers,
	})

	r.setState(StateRunning)
	if len(segments) == 0 {
		return r.finish(ctx, report, nil, start)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan types.Segment, len(segments))
	for _, seg := range segments {
		queue <- seg
	}
	close(queue)

	poolSize := min(workers, len(segments))
	results := make(chan *batch, poolSize)
	abort := newAbortMark()
	windows := make([]chan struct{}, len(segments))
	for i := range windows {
		windows[i] = make(chan struct{}, SegmentWindow)
	}

	var wg sync.WaitGroup
	for range poolSize {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seg := range queue {
				if runCtx.Err() != nil || abort.after(seg.Index) {
					continue
				}
				r.runSegment(runCtx, seg, abort, windows[seg.Index], results)
			}
		}()
	}

	seq := newSequencer(r, windows, report)
	runErr := seq.run(runCtx, results)

	// Unblock workers still sending or reading, then wait for them.
	cancel()
	wg.Wait()

	return r.finish(ctx, seq.report, runErr, start)
}

// runSegment processes one segment and sends its batches to results. Each
// send first takes a slot in window; the sequencer frees it on drain.
func (r *Runner) runSegment(ctx context.Context, seg types.Segment, abort *abortMark, window chan<- struct{}, results chan<- *batch) {
	r.metrics.IncSegmentStarted()
	r.logger.Debug("segment started", map[string]any{
		"segment": seg.Index,
		"start":   seg.Start,
		"end":     seg.End,
	})

	send := func(b *batch) bool {
		select {
		case window <- struct{}{}:
		case <-ctx.Done():
			return false
		}
		select {
		case results <- b:
			return true
		case <-ctx.Done():
			return false
		}
	}

	cur := &batch{segment: seg.Index, report: NewReport()}
	var err error
	defer func() {
		if p := recover(); p != nil {
			r.metrics.IncWorkerPanic()
			err = &RunError{Kind: ErrorWorker, Err: &PanicError{Segment: seg.Index, Value: p, Stack: debug.Stack()}}
		}
		if errors.Is(err, errSuperseded) {
			return
		}
		if err != nil {
			abort.mark(seg.Index)
		}
		cur.final = true
		cur.err = err
		send(cur)
	}()

	err = r.processSegment(ctx, seg, abort, func() bool {
		if !send(cur) {
			return false
		}
		cur = &batch{segment: seg.Index, report: NewReport()}
		return true
	}, func(res *stage.Result) int {
		cur.entries = append(cur.entries, res.Entries...)
		cur.report.RecordOutcome(res)
		return int(cur.report.Records())
	})
}

// processSegment reads seg to its end. add buffers one record's result and
// returns the number buffered so far; handOff sends the current batch.
func (r *Runner) processSegment(
	ctx context.Context,
	seg types.Segment,
	abort *abortMark,
	handOff func() bool,
	add func(res *stage.Result) int,
) error {
	cursor, err := r.src.OpenAt(seg)
	if err != nil {
		r.metrics.IncSegmentOpenFailure()
		return &RunError{Kind: ErrorSegmentOpen, Err: err}
	}
	defer iox.DiscardClose(cursor)

	for {
		if ctx.Err() != nil || abort.after(seg.Index) {
			return errSuperseded
		}

		rec, err := cursor.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return r.readError(err)
		}
		r.metrics.IncRecordsRead()

		res := r.apply(ctx, rec)
		if add(&res) >= r.batchRecords {
			if !handOff() {
				return errSuperseded
			}
		}
	}
}

// sequencer is the single drain loop of a parallel run. It appends batches
// to the policy in ascending segment order, holding early arrivals until
// every earlier segment has drained.
type sequencer struct {
	r       *Runner
	total   int
	next    int
	pending map[int][]*batch
	windows []chan struct{}
	report  *Report
}

func newSequencer(r *Runner, windows []chan struct{}, report *Report) *sequencer {
	return &sequencer{
		r:       r,
		total:   len(windows),
		pending: make(map[int][]*batch),
		windows: windows,
		report:  report,
	}
}

// run drains batches until every segment has drained or the run aborts.
func (s *sequencer) run(ctx context.Context, results <-chan *batch) error {
	for s.next < s.total {
		select {
		case <-ctx.Done():
			return &RunError{Kind: ErrorCanceled, Err: ctx.Err()}
		case b := <-results:
			s.pending[b.segment] = append(s.pending[b.segment], b)
			if err := s.drain(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// drain writes every batch that is next in order.
func (s *sequencer) drain(ctx context.Context) error {
	for s.next < s.total {
		queued := s.pending[s.next]
		if len(queued) == 0 {
			return nil
		}
		b := queued[0]
		s.pending[s.next] = queued[1:]
		<-s.windows[s.next]

		if err := s.r.policy.Ingest(ctx, b.entries); err != nil {
			return &RunError{Kind: ErrorSink, Err: err}
		}
		s.report.absorb(b.report)

		if b.err != nil {
			return b.err
		}
		if b.final {
			delete(s.pending, s.next)
			s.r.metrics.IncSegmentDrained()
			s.r.logger.Debug("segment drained", map[string]any{"segment": s.next})
			s.next++
		}
	}
	return nil
}
