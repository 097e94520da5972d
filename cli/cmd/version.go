package cmd

import (
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/sieve/cli/render"
	"github.com/justapithecus/sieve/stage"
	"github.com/justapithecus/sieve/types"
)

// VersionInfo describes the binary and the stages it can build.
type VersionInfo struct {
	Version       string   `json:"version"`
	ReportVersion string   `json:"report_version"`
	Commit        string   `json:"commit"`
	GoVersion     string   `json:"go_version"`
	Processors    []string `json:"processors"`
	Writers       []string `json:"writers"`
}

func newVersionInfo(commit string) VersionInfo {
	reg := stage.NewRegistry()
	return VersionInfo{
		Version:       types.Version,
		ReportVersion: types.ReportVersion,
		Commit:        commit,
		GoVersion:     runtime.Version(),
		Processors:    reg.Processors(),
		Writers:       reg.Writers(),
	}
}

// VersionCommand returns the version command. commit is stamped at link time.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version, build and stage information",
		Flags: outputFlags(),
		Action: func(c *cli.Context) error {
			if err := rejectTUI(c, "version"); err != nil {
				return err
			}
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			return r.Render(newVersionInfo(commit))
		},
	}
}
