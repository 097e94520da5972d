package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/justapithecus/sieve/adapter/redis"
	"github.com/justapithecus/sieve/adapter/webhook"
	"github.com/justapithecus/sieve/policy"
	"github.com/justapithecus/sieve/resolve"
	"github.com/justapithecus/sieve/stage"
	"github.com/justapithecus/sieve/types"
)

// Config represents a sieve.yaml configuration file.
// All values are optional and act as defaults for sieve run flags.
// CLI flags always override config values.
type Config struct {
	Archive      string         `yaml:"archive"`
	Workers      int            `yaml:"workers"`
	Mode         types.Mode     `yaml:"mode"`
	BatchRecords int            `yaml:"batch_records"`
	Report       string         `yaml:"report"`
	Stages       []stage.Spec   `yaml:"stages"`
	Resolver     ResolverConfig `yaml:"resolver"`
	Sink         SinkConfig     `yaml:"sink"`
	Policy       PolicyConfig   `yaml:"policy"`
	Adapter      AdapterConfig  `yaml:"adapter"`
}

// ResolverConfig selects the name resolution backend used by resolve stages.
type ResolverConfig struct {
	Backend   string   `yaml:"backend"`
	Servers   []string `yaml:"servers"`
	Strategy  string   `yaml:"strategy"`
	StickyTTL Duration `yaml:"sticky_ttl"`
	Timeout   Duration `yaml:"timeout"`
	Attempts  int      `yaml:"attempts"`
	CacheTTL  Duration `yaml:"cache_ttl"`
	CacheSize int      `yaml:"cache_size"`
	Width     int      `yaml:"width"`
}

// SinkConfig selects where entries are written.
type SinkConfig struct {
	// Type is stream, sqlite or lode.
	Type        string `yaml:"type"`
	Path        string `yaml:"path"`
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// PolicyConfig holds drain policy defaults.
type PolicyConfig struct {
	Name       string `yaml:"name"`
	MaxEntries int    `yaml:"max_entries"`
	MaxBytes   int64  `yaml:"max_bytes"`
}

// AdapterConfig holds run notification defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
	Backoff Duration          `yaml:"backoff,omitempty"`

	// Secret signs webhook bodies.
	Secret string `yaml:"secret,omitempty"`

	// Channel and Stream pick the redis delivery; Stream wins when both are set.
	Channel      string `yaml:"channel,omitempty"`
	Stream       string `yaml:"stream,omitempty"`
	StreamMaxLen int64  `yaml:"stream_max_len,omitempty"`
}

// Sink types.
const (
	SinkStream = "stream"
	SinkSQLite = "sqlite"
	SinkLode   = "lode"
)

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks values that can be rejected without touching the
// filesystem or network. Errors are joined so every problem is reported.
func (c *Config) Validate() error {
	var errs []error

	switch c.Mode {
	case "", types.ModeParallel, types.ModeSequential:
	default:
		errs = append(errs, fmt.Errorf("mode must be parallel or sequential, got %q", c.Mode))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	if c.BatchRecords < 0 {
		errs = append(errs, fmt.Errorf("batch_records must be >= 0, got %d", c.BatchRecords))
	}

	switch c.Sink.Type {
	case "", SinkStream, SinkSQLite:
	case SinkLode:
		switch c.Sink.Backend {
		case "", "fs", "s3":
		default:
			errs = append(errs, fmt.Errorf("sink.backend must be fs or s3, got %q", c.Sink.Backend))
		}
		if c.Sink.Path == "" {
			errs = append(errs, errors.New("sink.path is required for the lode sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("sink.type must be stream, sqlite or lode, got %q", c.Sink.Type))
	}
	if c.Sink.Type == SinkSQLite && c.Sink.Path == "" {
		errs = append(errs, errors.New("sink.path is required for the sqlite sink"))
	}

	switch c.Policy.Name {
	case "", "strict", "buffered", "noop":
	default:
		errs = append(errs, fmt.Errorf("policy.name must be strict, buffered or noop, got %q", c.Policy.Name))
	}

	switch c.Adapter.Type {
	case "":
	case "webhook", "redis":
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for the %s adapter", c.Adapter.Type))
		}
		if c.Adapter.StreamMaxLen < 0 {
			errs = append(errs, fmt.Errorf("adapter.stream_max_len must be >= 0, got %d", c.Adapter.StreamMaxLen))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.type must be webhook or redis, got %q", c.Adapter.Type))
	}

	if c.Resolver.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("resolver.cache_size must be >= 0, got %d", c.Resolver.CacheSize))
	}
	if c.Resolver.Strategy != "" && !resolve.Strategy(c.Resolver.Strategy).Valid() {
		errs = append(errs, fmt.Errorf("resolver.strategy %q is not valid", c.Resolver.Strategy))
	}

	return errors.Join(errs...)
}

// ResolveConfig converts the resolver section to a resolve.Config.
func (r ResolverConfig) ResolveConfig() resolve.Config {
	return resolve.Config{
		Backend:   resolve.Backend(r.Backend),
		Servers:   r.Servers,
		Strategy:  resolve.Strategy(r.Strategy),
		StickyTTL: r.StickyTTL.Duration,
		Timeout:   r.Timeout.Duration,
		Attempts:  r.Attempts,
		CacheTTL:  r.CacheTTL.Duration,
		CacheSize: r.CacheSize,
		Width:     r.Width,
	}
}

// BufferedConfig converts the policy section to a policy.BufferedConfig.
// Unset limits fall back to policy.DefaultBufferedConfig.
func (p PolicyConfig) BufferedConfig() policy.BufferedConfig {
	cfg := policy.DefaultBufferedConfig()
	if p.MaxEntries > 0 {
		cfg.MaxBufferEntries = p.MaxEntries
	}
	if p.MaxBytes > 0 {
		cfg.MaxBufferBytes = p.MaxBytes
	}
	return cfg
}

// WebhookConfig converts the adapter section to a webhook.Config.
func (a AdapterConfig) WebhookConfig() webhook.Config {
	cfg := webhook.Config{
		URL:     a.URL,
		Headers: a.Headers,
		Secret:  a.Secret,
		Timeout: a.Timeout.Duration,
		Retries: webhook.DefaultRetries,
		Backoff: a.Backoff.Duration,
	}
	if a.Retries != nil {
		cfg.Retries = *a.Retries
	}
	return cfg
}

// RedisConfig converts the adapter section to a redis.Config.
func (a AdapterConfig) RedisConfig() redis.Config {
	cfg := redis.Config{
		URL:          a.URL,
		Channel:      a.Channel,
		Stream:       a.Stream,
		StreamMaxLen: a.StreamMaxLen,
		Timeout:      a.Timeout.Duration,
		Retries:      redis.DefaultRetries,
		Backoff:      a.Backoff.Duration,
	}
	if a.Retries != nil {
		cfg.Retries = *a.Retries
	}
	return cfg
}
