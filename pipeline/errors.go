package pipeline

import (
	"errors"
	"fmt"
)

// ErrorKind classifies structural failures that abort a run.
type ErrorKind string

const (
	// ErrorCorruption indicates unreadable framing in the container.
	ErrorCorruption ErrorKind = "corruption"
	// ErrorSegmentOpen indicates a segment cursor could not be opened.
	ErrorSegmentOpen ErrorKind = "segment_open"
	// ErrorWorker indicates a worker crashed or hit a non-record I/O error.
	ErrorWorker ErrorKind = "worker"
	// ErrorSink indicates the drain policy or sink failed.
	ErrorSink ErrorKind = "sink"
	// ErrorCanceled indicates the caller canceled the run.
	ErrorCanceled ErrorKind = "canceled"
)

// ErrRunnerUsed is returned when a Runner is started a second time.
var ErrRunnerUsed = errors.New("runner already used")

// RunError reports why a run was aborted.
// errors.As reaches the underlying typed error (for example
// *container.CorruptionError).
type RunError struct {
	Kind ErrorKind
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run aborted (%s): %v", e.Kind, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a *RunError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Kind, true
	}
	return "", false
}

// IsCorruptionError returns true if err aborted the run on container corruption.
func IsCorruptionError(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == ErrorCorruption
}

// IsSegmentOpenError returns true if err aborted the run on a segment-open failure.
func IsSegmentOpenError(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == ErrorSegmentOpen
}

// IsWorkerError returns true if err aborted the run on a worker failure.
func IsWorkerError(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == ErrorWorker
}

// IsSinkError returns true if err aborted the run on a sink failure.
func IsSinkError(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == ErrorSink
}

// IsCanceledError returns true if the run was canceled by the caller.
func IsCanceledError(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == ErrorCanceled
}

// PanicError is a recovered worker panic outside any stage.
type PanicError struct {
	Segment int
	Value   any
	Stack   []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panicked in segment %d: %v", e.Segment, e.Value)
}
