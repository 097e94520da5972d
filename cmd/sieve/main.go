// Command sieve runs filtered record pipelines over capture archives.
//
// Exit codes for `sieve run`:
//   - 0: completed; record failures are reported, not fatal
//   - 1: completed with record failures under --strict-exit
//   - 2: aborted by corruption, segment open failure, worker crash, sink failure or cancellation
//   - 3: invalid arguments or configuration
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/sieve/cli/cmd"
	"github.com/justapithecus/sieve/types"
)

// commit is stamped with -ldflags "-X main.commit=...".
var commit = "unknown"

func newApp() *cli.App {
	return &cli.App{
		Name:    "sieve",
		Usage:   "Filtered record processing over capture archives",
		Version: types.Version + " (" + commit + ")",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Load environment variables from `FILE` before running (repeatable)",
				Value: cli.NewStringSlice(".env"),
			},
		},
		Before:         loadEnvFiles,
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.SegmentsCommand(),
			cmd.InspectCommand(),
			cmd.PackCommand(),
			cmd.ReportCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// loadEnvFiles loads each --env-file without overriding variables already
// set. The default .env may be absent; an explicit file may not.
func loadEnvFiles(c *cli.Context) error {
	for _, f := range c.StringSlice("env-file") {
		err := godotenv.Load(f)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist) && !c.IsSet("env-file"):
		default:
			return cli.Exit(fmt.Sprintf("load env file %s: %v", f, err), 3)
		}
	}
	return nil
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus maps err to a process exit code and the line to print.
// cli.Exit("", N) prints nothing.
func exitStatus(err error) (int, string) {
	var coder cli.ExitCoder
	if !errors.As(err, &coder) {
		return 1, "Error: " + err.Error()
	}
	code, msg := coder.ExitCode(), coder.Error()
	if msg == fmt.Sprintf("exit status %d", code) {
		msg = ""
	}
	return code, msg
}
