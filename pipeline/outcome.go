package pipeline

import (
	"fmt"

	"github.com/justapithecus/sieve/types"
)

// Process exit codes for a run.
const (
	ExitCodeCompleted    = 0 // every record attempted, none failed
	ExitCodeFailures     = 1 // completed with record failures (strict exit only)
	ExitCodeAborted      = 2 // structural failure
	ExitCodeInvalidInput = 3 // invalid arguments or configuration
)

// DetermineOutcome classifies a finished run from its report and error.
func DetermineOutcome(report *Report, runErr error) *types.RunOutcome {
	if runErr != nil {
		kind, ok := KindOf(runErr)
		if !ok {
			kind = ErrorWorker
		}
		k := string(kind)
		return &types.RunOutcome{
			Status:    types.OutcomeAborted,
			Message:   runErr.Error(),
			ErrorKind: &k,
		}
	}

	if report != nil && report.Failed() > 0 {
		return &types.RunOutcome{
			Status:  types.OutcomePartial,
			Message: fmt.Sprintf("run completed with %d failed records", report.Failed()),
		}
	}
	return &types.RunOutcome{
		Status:  types.OutcomeCompleted,
		Message: "run completed successfully",
	}
}

// ExitCode maps an outcome to a process exit code. Record failures only
// produce a non-zero code when strict is set.
func ExitCode(outcome *types.RunOutcome, strict bool) int {
	switch outcome.Status {
	case types.OutcomeCompleted:
		return ExitCodeCompleted
	case types.OutcomePartial:
		if strict {
			return ExitCodeFailures
		}
		return ExitCodeCompleted
	default:
		return ExitCodeAborted
	}
}
