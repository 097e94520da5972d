// Package cmd provides CLI commands for the sieve binary.
package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// outputFlags returns the rendering flags shared by every command that
// prints a result, followed by extra. --tui is registered everywhere so
// commands without a TUI view can refuse it by name.
func outputFlags(extra ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: json, jsonl, table or yaml",
		},
		&cli.BoolFlag{
			Name:  "no-color",
			Usage: "Disable colored output",
		},
		&cli.BoolFlag{
			Name:  "tui",
			Usage: "Interactive view (report only)",
		},
	}, extra...)
}

func rejectTUI(c *cli.Context, command string) error {
	if !c.Bool("tui") {
		return nil
	}
	return cli.Exit(fmt.Sprintf("--tui is not supported for %s", command), 1)
}
