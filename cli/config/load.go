package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads a sieve.yaml file, expands environment references and decodes
// it. Unknown keys are rejected. Relative local paths are resolved against
// the directory of the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded, err := ExpandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("unresolved variables in %s: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	cfg.resolvePaths(filepath.Dir(path))
	return &cfg, nil
}

// resolvePaths anchors relative local paths at base. Object store paths
// and "-" are left alone.
func (c *Config) resolvePaths(base string) {
	c.Archive = anchor(base, c.Archive)
	c.Report = anchor(base, c.Report)
	if c.Sink.Type == SinkLode && c.Sink.Backend == "s3" {
		return
	}
	c.Sink.Path = anchor(base, c.Sink.Path)
}

func anchor(base, p string) string {
	if p == "" || p == "-" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
