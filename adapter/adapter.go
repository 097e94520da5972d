// Package adapter defines the notification boundary for finished runs.
//
// Adapters publish a run completion event to a downstream system once the
// run file has been built. Publishing is best effort: a failed publish is
// logged and never changes the run outcome or exit code.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justapithecus/sieve/pipeline"
)

// EventTypeRunCompleted is the event_type of every published event.
const EventTypeRunCompleted = "run_completed"

// DefaultBackoff is the delay before the first retry; it doubles per retry.
const DefaultBackoff = 500 * time.Millisecond

// RunCompletedEvent is the payload published when a run finishes.
type RunCompletedEvent struct {
	EventType   string `json:"event_type"` // always "run_completed"
	RunID       string `json:"run_id"`
	Archive     string `json:"archive"`
	Mode        string `json:"mode"`
	Workers     int    `json:"workers,omitempty"`
	Outcome     string `json:"outcome"`
	ErrorKind   string `json:"error_kind,omitempty"`
	ExitCode    int    `json:"exit_code"`
	StoragePath string `json:"storage_path,omitempty"`
	Timestamp   string `json:"timestamp"` // RFC 3339
	Processed   int64  `json:"processed"`
	Dropped     int64  `json:"dropped"`
	Failed      int64  `json:"failed"`
	Entries     int64  `json:"entries"`
	DurationMs  int64  `json:"duration_ms"`
}

// NewRunCompletedEvent builds the event for a finished run.
// storagePath locates the run's output and may be empty.
func NewRunCompletedEvent(rf *pipeline.RunFile, storagePath string, at time.Time) *RunCompletedEvent {
	return &RunCompletedEvent{
		EventType:   EventTypeRunCompleted,
		RunID:       rf.RunID,
		Archive:     rf.Archive,
		Mode:        string(rf.Mode),
		Workers:     rf.Workers,
		Outcome:     string(rf.Outcome),
		ErrorKind:   rf.ErrorKind,
		ExitCode:    rf.ExitCode,
		StoragePath: storagePath,
		Timestamp:   at.UTC().Format(time.RFC3339),
		Processed:   rf.Records.Processed,
		Dropped:     rf.Records.Dropped,
		Failed:      rf.Records.Failed,
		Entries:     rf.Records.Entries,
		DurationMs:  rf.DurationMs,
	}
}

// Adapter publishes run completion events to a downstream system.
type Adapter interface {
	// Publish sends a run completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so Retry gives up instead of trying again.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls attempt once, then up to retries more times while it fails,
// waiting Backoff(base, i) before retry i. It stops when ctx is done or when
// attempt returns an error wrapped with Permanent.
func Retry(ctx context.Context, retries int, base time.Duration, attempt func(context.Context) error) error {
	var lastErr error
	for i := range retries + 1 {
		if i > 0 {
			if err := Sleep(ctx, Backoff(base, i)); err != nil {
				return fmt.Errorf("canceled during backoff: %w", err)
			}
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("canceled: %w", err)
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		var p *permanentError
		if errors.As(lastErr, &p) {
			return fmt.Errorf("non-retriable error: %w", p.err)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", retries+1, lastErr)
}

// Backoff returns the wait before retry attempt i (i ≥ 1).
func Backoff(base time.Duration, i int) time.Duration {
	if base <= 0 {
		base = DefaultBackoff
	}
	return time.Duration(1<<uint(i-1)) * base
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
