package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/sieve/cli/render"
	"github.com/justapithecus/sieve/container"
	"github.com/justapithecus/sieve/iox"
	"github.com/justapithecus/sieve/types"
)

// inspectWarningThreshold is the number of records above which we warn about using --limit.
const inspectWarningThreshold = 100

// RecordView is a thin view of one archived record.
type RecordView struct {
	Pos       string `json:"pos"`
	Kind      string `json:"kind"`
	TargetURI string `json:"target_uri"`
	Headers   int    `json:"headers"`
	BodyBytes int    `json:"body_bytes"`
}

// inspectOptions selects the records to show.
type inspectOptions struct {
	// Segment is the segment index to read, or -1 for the whole archive.
	Segment int
	Workers int
	Limit   int
	Kinds   []string
}

// InspectCommand returns the inspect command.
// Inspect lists records of an archive without running any stage.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "List the records of an archive",
		ArgsUsage: "<archive>",
		Flags: outputFlags(
			&cli.IntFlag{
				Name:  "segment",
				Usage: "Only read this segment index (see sieve segments)",
				Value: -1,
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Worker count used to partition the archive with --segment",
				Value: 1,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of records to show (0 for all)",
			},
			&cli.StringSliceFlag{
				Name:  "kind",
				Usage: "Only show records of this kind, repeatable",
			},
		),
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("archive required", exitInvalidInput)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if err := rejectTUI(c, "inspect"); err != nil {
		return err
	}

	opts := inspectOptions{
		Segment: c.Int("segment"),
		Workers: c.Int("workers"),
		Limit:   c.Int("limit"),
		Kinds:   c.StringSlice("kind"),
	}
	if opts.Limit < 0 {
		return cli.Exit(fmt.Sprintf("--limit must be >= 0, got %d", opts.Limit), exitInvalidInput)
	}

	views, err := inspectRecords(c.Args().First(), opts)
	if err != nil {
		// Records read before a corruption are still shown.
		if len(views) > 0 {
			_ = r.Render(views)
		}
		return cli.Exit(err.Error(), exitAborted)
	}

	if len(views) > inspectWarningThreshold && opts.Limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: %d records listed, use --limit to narrow output\n", len(views))
	}
	return r.Render(views)
}

// recordReader is satisfied by *container.Archive and *container.Cursor.
type recordReader interface {
	Next() (*types.Record, error)
}

// inspectRecords reads records of path, filtered and limited by opts.
// On a read error the records read so far are returned with the error.
func inspectRecords(path string, opts inspectOptions) ([]RecordView, error) {
	archive, err := container.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer iox.DiscardClose(archive)

	var src recordReader = archive
	if opts.Segment >= 0 {
		segs, err := archive.Segments(max(opts.Workers, 1))
		if err != nil {
			return nil, fmt.Errorf("failed to partition archive: %w", err)
		}
		if opts.Segment >= len(segs) {
			return nil, fmt.Errorf("segment %d out of range (archive has %d segments)", opts.Segment, len(segs))
		}
		cur, err := archive.OpenAt(segs[opts.Segment])
		if err != nil {
			return nil, err
		}
		defer iox.DiscardClose(cur)
		src = cur
	}

	kinds := make(map[types.Kind]bool, len(opts.Kinds))
	for _, k := range opts.Kinds {
		kinds[types.Kind(k)] = true
	}

	views := []RecordView{}
	for opts.Limit == 0 || len(views) < opts.Limit {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return views, err
		}
		if len(kinds) > 0 && !kinds[rec.Kind] {
			continue
		}
		views = append(views, RecordView{
			Pos:       rec.Pos.String(),
			Kind:      string(rec.Kind),
			TargetURI: rec.TargetURI(),
			Headers:   len(rec.Headers),
			BodyBytes: len(rec.Body),
		})
	}
	return views, nil
}
