package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/justapithecus/sieve/metrics"
	"github.com/justapithecus/sieve/policy"
	"github.com/justapithecus/sieve/types"
)

// RunFile is the structured JSON document written by --report and read
// back by the report command.
type RunFile struct {
	RunID      string              `json:"run_id"`
	Archive    string              `json:"archive"`
	Mode       types.Mode          `json:"mode"`
	Workers    int                 `json:"workers,omitempty"`
	Outcome    types.OutcomeStatus `json:"outcome"`
	Message    string              `json:"message"`
	ErrorKind  string              `json:"error_kind,omitempty"`
	ExitCode   int                 `json:"exit_code"`
	StartedAt  time.Time           `json:"started_at"`
	DurationMs int64               `json:"duration_ms"`

	Records  RunFileRecords         `json:"records"`
	Stages   map[string]StageCounts `json:"stages"`
	Failures []Failure              `json:"failures"`

	Policy  *RunFilePolicy    `json:"policy"`
	Metrics *metrics.Snapshot `json:"metrics"`
}

// RunFileRecords holds record counters in the run file.
type RunFileRecords struct {
	Processed int64 `json:"processed"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
	Entries   int64 `json:"entries"`
}

// RunFilePolicy holds drain policy stats in the run file.
type RunFilePolicy struct {
	Name             string `json:"name"`
	EntriesReceived  int64  `json:"entries_received"`
	EntriesPersisted int64  `json:"entries_persisted"`
	WriteCalls       int64  `json:"write_calls"`
	FlushCount       int64  `json:"flush_count"`
	Errors           int64  `json:"errors"`
}

// RunSummary gathers what BuildRunFile needs from a finished run.
type RunSummary struct {
	Meta        *types.RunMeta
	Report      *Report
	Outcome     *types.RunOutcome
	StartedAt   time.Time
	Duration    time.Duration
	PolicyName  string
	PolicyStats policy.Stats
}

// BuildRunFile composes a RunFile from a run summary and metrics snapshot.
// exitCode is the process exit code that will be returned to the caller.
func BuildRunFile(sum *RunSummary, snap metrics.Snapshot, exitCode int) *RunFile {
	report := sum.Report
	if report == nil {
		report = NewReport()
	}

	rf := &RunFile{
		Outcome:    sum.Outcome.Status,
		Message:    sum.Outcome.Message,
		ExitCode:   exitCode,
		StartedAt:  sum.StartedAt.UTC(),
		DurationMs: sum.Duration.Milliseconds(),
		Records: RunFileRecords{
			Processed: report.Processed(),
			Dropped:   report.Dropped(),
			Failed:    report.Failed(),
			Entries:   report.Entries(),
		},
		Stages:   report.Stages(),
		Failures: report.Failures(),
		Policy: &RunFilePolicy{
			Name:             sum.PolicyName,
			EntriesReceived:  sum.PolicyStats.TotalEntries,
			EntriesPersisted: sum.PolicyStats.EntriesPersisted,
			WriteCalls:       sum.PolicyStats.WriteCalls,
			FlushCount:       sum.PolicyStats.FlushCount,
			Errors:           sum.PolicyStats.Errors,
		},
		Metrics: &snap,
	}
	if rf.Failures == nil {
		rf.Failures = []Failure{}
	}
	if sum.Meta != nil {
		rf.RunID = sum.Meta.RunID
		rf.Archive = sum.Meta.Archive
		rf.Mode = sum.Meta.Mode
		if sum.Meta.Mode == types.ModeParallel {
			rf.Workers = sum.Meta.Workers
		}
	}
	if sum.Outcome.ErrorKind != nil {
		rf.ErrorKind = *sum.Outcome.ErrorKind
	}
	return rf
}

// WriteRunFile writes the run file as JSON to path.
// If path is "-", writes to stderr.
func WriteRunFile(rf *RunFile, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		if err := writeRunFileTo(rf, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	data, err := marshalRunFile(rf)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// ReadRunFile loads a run file written by WriteRunFile.
func ReadRunFile(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	var rf RunFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &rf, nil
}

func marshalRunFile(rf *RunFile) ([]byte, error) {
	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// writeRunFileTo writes run file JSON to any writer.
func writeRunFileTo(rf *RunFile, w io.Writer) error {
	data, err := marshalRunFile(rf)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
