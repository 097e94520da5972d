package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/justapithecus/sieve/types"
)

// Status is a stage's result for one record.
type Status int

const (
	StatusProcessed Status = iota
	StatusDropped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusProcessed:
		return "processed"
	case StatusDropped:
		return "dropped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// StageResult is one stage's result for one record.
type StageResult struct {
	Stage  string
	Status Status
	// Err is a *ProcessingError when Status is StatusFailed.
	Err error
}

// Result is the outcome of applying a chain to one record.
type Result struct {
	Pos     types.Position
	Stages  []StageResult
	Entries []*types.Entry
}

// Status collapses per-stage results into a record outcome: failed if any
// stage failed, dropped if every stage dropped, processed otherwise.
func (r *Result) Status() Status {
	dropped := 0
	for _, s := range r.Stages {
		switch s.Status {
		case StatusFailed:
			return StatusFailed
		case StatusDropped:
			dropped++
		}
	}
	if len(r.Stages) > 0 && dropped == len(r.Stages) {
		return StatusDropped
	}
	return StatusProcessed
}

// Failures returns the processing errors of failed stages.
func (r *Result) Failures() []*ProcessingError {
	var out []*ProcessingError
	for _, s := range r.Stages {
		var perr *ProcessingError
		if s.Status == StatusFailed && errors.As(s.Err, &perr) {
			out = append(out, perr)
		}
	}
	return out
}

// Chain is an ordered list of stages.
// Stages may be appended until Freeze is called; afterwards the chain is
// read-only and safe for concurrent Apply calls.
type Chain struct {
	mu     sync.RWMutex
	stages []Stage
	names  map[string]bool
	frozen bool
}

// NewChain creates a chain with the given stages.
func NewChain(stages ...Stage) (*Chain, error) {
	c := &Chain{names: make(map[string]bool)}
	for _, s := range stages {
		if err := c.Append(s); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Append adds a stage to the end of the chain.
func (c *Chain) Append(s Stage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return ErrChainFrozen
	}
	if s.Name == "" {
		return errors.New("stage name must not be empty")
	}
	if c.names[s.Name] {
		return fmt.Errorf("duplicate stage name %q", s.Name)
	}
	if s.Processor == nil {
		return fmt.Errorf("stage %q has no processor", s.Name)
	}
	if s.Writer == nil {
		return fmt.Errorf("stage %q has no writer", s.Name)
	}

	c.stages = append(c.stages, s)
	c.names[s.Name] = true
	return nil
}

// Freeze makes the chain read-only. Idempotent.
func (c *Chain) Freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (c *Chain) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}

// Len returns the number of stages.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stages)
}

// Names returns stage names in registration order.
func (c *Chain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.stages))
	for i, s := range c.stages {
		out[i] = s.Name
	}
	return out
}

// Apply runs every stage against rec in registration order.
// Stage failures, including panics, are captured in the result; Apply
// itself never fails. Entries are ordered by stage, then emission order.
func (c *Chain) Apply(ctx context.Context, rec *types.Record) Result {
	c.mu.RLock()
	stages := c.stages
	c.mu.RUnlock()

	res := Result{Pos: rec.Pos, Stages: make([]StageResult, 0, len(stages))}
	for _, s := range stages {
		sr, entries := applyStage(ctx, s, rec)
		res.Stages = append(res.Stages, sr)
		res.Entries = append(res.Entries, entries...)
	}
	return res
}

func applyStage(ctx context.Context, s Stage, rec *types.Record) (StageResult, []*types.Entry) {
	outcome, err := safeProcess(ctx, s, rec)
	if err != nil {
		return StageResult{Stage: s.Name, Status: StatusFailed, Err: err}, nil
	}
	if outcome.IsDropped() {
		return StageResult{Stage: s.Name, Status: StatusDropped}, nil
	}

	out := &Output{stage: s.Name, pos: rec.Pos}
	if err := safeWrite(ctx, s, rec.Pos, outcome.Value(), out); err != nil {
		// Partial output of a failed writer is discarded.
		return StageResult{Stage: s.Name, Status: StatusFailed, Err: err}, nil
	}
	return StageResult{Stage: s.Name, Status: StatusProcessed}, out.entries
}

func safeProcess(ctx context.Context, s Stage, rec *types.Record) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ProcessingError{Stage: s.Name, Phase: PhaseProcess, Pos: rec.Pos, Panic: true, Err: fmt.Errorf("%v", r)}
		}
	}()

	outcome, err = s.Processor.Process(ctx, rec)
	if err != nil {
		return Outcome{}, &ProcessingError{Stage: s.Name, Phase: PhaseProcess, Pos: rec.Pos, Err: err}
	}
	return outcome, nil
}

func safeWrite(ctx context.Context, s Stage, pos types.Position, value any, out *Output) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ProcessingError{Stage: s.Name, Phase: PhaseWrite, Pos: pos, Panic: true, Err: fmt.Errorf("%v", r)}
		}
	}()

	if err := s.Writer.Write(ctx, value, out); err != nil {
		return &ProcessingError{Stage: s.Name, Phase: PhaseWrite, Pos: pos, Err: err}
	}
	return nil
}
