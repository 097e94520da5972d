package stage

import (
	"errors"
	"fmt"

	"github.com/justapithecus/sieve/types"
)

// Phase identifies where in a stage a failure occurred.
type Phase string

const (
	PhaseProcess Phase = "process"
	PhaseWrite   Phase = "write"
)

// ErrChainFrozen is returned by Append once a run has started.
var ErrChainFrozen = errors.New("stage chain is frozen")

// ProcessingError reports a Processor or Writer failure on a well-formed record.
// Processing errors are recorded per record; they never abort a run.
type ProcessingError struct {
	Stage string
	Phase Phase
	Pos   types.Position
	// Panic is true if the failure was a recovered panic.
	Panic bool
	Err   error
}

func (e *ProcessingError) Error() string {
	what := "failed"
	if e.Panic {
		what = "panicked"
	}
	return fmt.Sprintf("stage %q %s %s at %s: %v", e.Stage, e.Phase, what, e.Pos, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// IsProcessing returns true if err is or wraps a *ProcessingError.
func IsProcessing(err error) bool {
	var perr *ProcessingError
	return errors.As(err, &perr)
}
