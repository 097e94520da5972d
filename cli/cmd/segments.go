package cmd

import (
	"fmt"
	goruntime "runtime"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/sieve/cli/render"
	"github.com/justapithecus/sieve/container"
	"github.com/justapithecus/sieve/iox"
)

// SegmentView is one row of the segments command.
type SegmentView struct {
	Index int   `json:"index"`
	Start int64 `json:"start"`
	End   int64 `json:"end"`
	Bytes int64 `json:"bytes"`
}

// SegmentsCommand returns the segments command.
// It prints the partition a parallel run would use for the worker count.
func SegmentsCommand() *cli.Command {
	return &cli.Command{
		Name:      "segments",
		Usage:     "Show how an archive is partitioned for parallel runs",
		ArgsUsage: "<archive>",
		Flags: outputFlags(
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Worker count (default: number of CPUs)",
			},
		),
		Action: segmentsAction,
	}
}

func segmentsAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("archive required", exitInvalidInput)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if err := rejectTUI(c, "segments"); err != nil {
		return err
	}

	workers := c.Int("workers")
	if workers < 0 {
		return cli.Exit(fmt.Sprintf("--workers must be >= 0, got %d", workers), exitInvalidInput)
	}
	if workers == 0 {
		workers = goruntime.NumCPU()
	}

	views, err := listSegments(c.Args().First(), workers)
	if err != nil {
		return cli.Exit(err.Error(), exitAborted)
	}
	return r.Render(views)
}

// listSegments opens path and partitions it into at most workers segments.
func listSegments(path string, workers int) ([]SegmentView, error) {
	archive, err := container.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer iox.DiscardClose(archive)

	segs, err := archive.Segments(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to partition archive: %w", err)
	}
	views := make([]SegmentView, len(segs))
	for i, s := range segs {
		views[i] = SegmentView{Index: s.Index, Start: s.Start, End: s.End, Bytes: s.Len()}
	}
	return views, nil
}
