//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
)

// Mode selects the runner used for a run.
type Mode string

const (
	// ModeSequential processes records in order on a single goroutine.
	ModeSequential Mode = "sequential"
	// ModeParallel processes segments concurrently.
	ModeParallel Mode = "parallel"
)

// RunMeta contains run identity.
type RunMeta struct {
	// RunID is the run identifier. Must be unique per run.
	RunID string
	// Archive is the path of the container being processed.
	Archive string
	// Mode is the runner mode.
	Mode Mode
	// Workers is the requested worker count (parallel mode only).
	Workers int
}

// Validate validates run identity:
//   - run_id non-empty
//   - mode sequential or parallel
//   - workers >= 0 (0 selects the default)
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}

	switch r.Mode {
	case ModeSequential, ModeParallel:
	default:
		return fmt.Errorf("invalid mode %q: must be sequential or parallel", r.Mode)
	}

	if r.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", r.Workers)
	}

	return nil
}

// OutcomeStatus represents the final status of a run.
type OutcomeStatus string

const (
	// OutcomeCompleted indicates every record was attempted and none failed.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomePartial indicates the run completed but some records failed.
	OutcomePartial OutcomeStatus = "completed_with_failures"
	// OutcomeAborted indicates a structural failure stopped the run.
	OutcomeAborted OutcomeStatus = "aborted"
)

// RunOutcome represents the final outcome of a run.
type RunOutcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus
	// Message is a human-readable description.
	Message string
	// ErrorKind is populated for aborted runs.
	ErrorKind *string
}
