package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/sieve/cli/config"
	"github.com/justapithecus/sieve/stage"
)

// Flag values win over config values, and config values win over flag defaults.

// resolveString returns the flag value when set, else the config value when
// non-empty, else the flag default.
func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

// resolveInt returns the flag value when set, else the config value when
// non-zero, else the flag default.
func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

func resolveInt64(c *cli.Context, name string, cfgVal int64) int64 {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int64(name)
	}
	return cfgVal
}

// resolveBool returns true if either the flag or the config value is true.
// An explicit --flag=false overrides the config.
func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}

// resolveStrings returns the flag values when set, else the config values.
func resolveStrings(c *cli.Context, name string, cfgVal []string) []string {
	if c.IsSet(name) {
		return c.StringSlice(name)
	}
	return cfgVal
}

// loadConfig loads the --config file, or returns an empty config when the
// flag is unset. A sieve.yaml in the working directory is not picked up
// implicitly.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// parseStageFlags parses --stage values of the form [name=]processor[:writer].
// Stages built from flags carry no options; use sieve.yaml for those.
func parseStageFlags(values []string) ([]stage.Spec, error) {
	specs := make([]stage.Spec, 0, len(values))
	for _, v := range values {
		var spec stage.Spec
		rest := v
		if name, after, ok := strings.Cut(rest, "="); ok {
			spec.Name = strings.TrimSpace(name)
			rest = after
		}
		proc, writer, _ := strings.Cut(rest, ":")
		spec.Processor = strings.TrimSpace(proc)
		spec.Writer = strings.TrimSpace(writer)
		if spec.Processor == "" {
			return nil, fmt.Errorf("invalid --stage %q: expected [name=]processor[:writer]", v)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// parseHeaders parses Key=Value pairs into base, overriding existing keys.
func parseHeaders(base map[string]string, values []string) (map[string]string, error) {
	if len(values) == 0 {
		return base, nil
	}
	out := make(map[string]string, len(base)+len(values))
	for k, v := range base {
		out[k] = v
	}
	for _, h := range values {
		k, v, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q: expected Key=Value", h)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
