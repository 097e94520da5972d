package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	lodelib "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/sieve/cli/render"
	"github.com/justapithecus/sieve/cli/tui"
	"github.com/justapithecus/sieve/lode"
	"github.com/justapithecus/sieve/pipeline"
)

// ReportSummary is the flat table view of a run file.
type ReportSummary struct {
	RunID      string `json:"run_id"`
	Archive    string `json:"archive"`
	Mode       string `json:"mode"`
	Workers    int    `json:"workers"`
	Outcome    string `json:"outcome"`
	ErrorKind  string `json:"error_kind"`
	ExitCode   int    `json:"exit_code"`
	StartedAt  string `json:"started_at"`
	Duration   string `json:"duration"`
	Processed  int64  `json:"processed"`
	Dropped    int64  `json:"dropped"`
	Failed     int64  `json:"failed"`
	Entries    int64  `json:"entries"`
	Stages     int    `json:"stages"`
	FailureLog int    `json:"failures"`
}

// NewReportSummary flattens rf.
func NewReportSummary(rf *pipeline.RunFile) ReportSummary {
	return ReportSummary{
		RunID:      rf.RunID,
		Archive:    rf.Archive,
		Mode:       string(rf.Mode),
		Workers:    rf.Workers,
		Outcome:    string(rf.Outcome),
		ErrorKind:  rf.ErrorKind,
		ExitCode:   rf.ExitCode,
		StartedAt:  rf.StartedAt.Format(time.RFC3339),
		Duration:   (time.Duration(rf.DurationMs) * time.Millisecond).String(),
		Processed:  rf.Records.Processed,
		Dropped:    rf.Records.Dropped,
		Failed:     rf.Records.Failed,
		Entries:    rf.Records.Entries,
		Stages:     len(rf.Stages),
		FailureLog: len(rf.Failures),
	}
}

// EntryView is a thin view of one stored entry.
type EntryView struct {
	Stage     string `json:"stage"`
	Pos       string `json:"pos"`
	DataBytes int    `json:"data_bytes"`
}

// ReportCommand returns the report command.
// Report reads a run file, or the latest run record of a run stored in a
// Lode dataset.
func ReportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Show the report of a finished run",
		ArgsUsage: "[report.json]",
		Flags: outputFlags(
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run ID to look up in a Lode dataset",
			},
			&cli.StringFlag{
				Name:  "lode-path",
				Usage: "Lode storage path (fs: directory, s3: bucket/prefix)",
			},
			&cli.StringFlag{
				Name:  "lode-backend",
				Usage: "Lode storage backend: fs or s3",
				Value: "fs",
			},
			&cli.StringFlag{
				Name:  "dataset",
				Usage: "Lode dataset ID",
				Value: lode.DefaultDataset,
			},
			&cli.StringFlag{
				Name:  "lode-s3-region",
				Usage: "AWS region for the S3 backend",
			},
			&cli.StringFlag{
				Name:  "lode-s3-endpoint",
				Usage: "Custom S3 endpoint for S3-compatible stores",
			},
			&cli.BoolFlag{
				Name:  "lode-s3-path-style",
				Usage: "Use path-style S3 addressing",
			},
			&cli.BoolFlag{
				Name:  "entries",
				Usage: "List the run's stored entries instead of the report (Lode only)",
			},
		),
		Action: reportAction,
	}
}

func reportAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	fromFile := c.NArg() > 0
	fromLode := c.String("run-id") != ""
	switch {
	case fromFile && fromLode:
		return cli.Exit("pass either a report file or --run-id, not both", exitInvalidInput)
	case !fromFile && !fromLode:
		return cli.Exit("report file or --run-id required", exitInvalidInput)
	case fromLode && c.String("lode-path") == "":
		return cli.Exit("--lode-path is required with --run-id", exitInvalidInput)
	case c.Bool("entries") && !fromLode:
		return cli.Exit("--entries requires --run-id", exitInvalidInput)
	}

	if fromFile {
		rf, err := pipeline.ReadRunFile(c.Args().First())
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		return renderReport(c, r, rf)
	}

	ds, err := openReportDataset(c.Context, c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	runID := c.String("run-id")

	if c.Bool("entries") {
		if err := rejectTUI(c, "report --entries"); err != nil {
			return err
		}
		entries, err := lode.ReadEntries(c.Context, ds, runID)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		views := make([]EntryView, len(entries))
		for i, e := range entries {
			views[i] = EntryView{Stage: e.Stage, Pos: e.Pos.String(), DataBytes: len(e.Data)}
		}
		return r.Render(views)
	}

	rf, err := lode.QueryLatestRun(c.Context, ds, runID)
	if errors.Is(err, lode.ErrNoRunFound) {
		return cli.Exit(fmt.Sprintf("no run record found for run %s", runID), 1)
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return renderReport(c, r, rf)
}

func renderReport(c *cli.Context, r *render.Renderer, rf *pipeline.RunFile) error {
	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewReport, rf)
	}
	if r.Format() == render.FormatTable {
		return r.Render(NewReportSummary(rf))
	}
	return r.Render(rf)
}

func openReportDataset(ctx context.Context, c *cli.Context) (lodelib.Dataset, error) {
	dataset := c.String("dataset")
	switch c.String("lode-backend") {
	case "fs", "":
		return lode.NewReadDatasetFS(dataset, c.String("lode-path"))
	case "s3":
		return lode.NewReadDatasetS3(ctx, dataset, lode.NewS3Config(
			c.String("lode-path"),
			c.String("lode-s3-region"),
			c.String("lode-s3-endpoint"),
			c.Bool("lode-s3-path-style"),
		))
	default:
		return nil, fmt.Errorf("unknown lode backend %q (must be fs or s3)", c.String("lode-backend"))
	}
}
