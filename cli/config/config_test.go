package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/sieve/resolve"
	"github.com/justapithecus/sieve/stage"
	"github.com/justapithecus/sieve/types"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `archive: captures/crawl-01.sar
workers: 8
mode: parallel
batch_records: 64
report: out/run.json

stages:
  - name: responses
    processor: kind
    options:
      kinds: [response]
  - name: ok
    processor: status
    writer: msgpack
    options:
      codes: [200, 204]
  - processor: resolve

resolver:
  backend: protocol
  servers: ["127.0.0.1:53", "10.0.0.2:53"]
  strategy: sticky
  sticky_ttl: 1m
  timeout: 2s
  attempts: 2
  cache_ttl: 5m
  cache_size: 2048

sink:
  type: lode
  dataset: captures
  backend: s3
  path: my-bucket/prefix
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true

policy:
  name: buffered
  max_entries: 1000
  max_bytes: 10485760

adapter:
  type: webhook
  url: https://hooks.example.com/sieve
  headers:
    Authorization: Bearer token123
  secret: ${SIEVE_TEST_HOOK_SECRET:-s3cr3t}
  timeout: 10s
  retries: 3
  backoff: 250ms
`
	path := writeTemp(t, yaml)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	assertEqual(t, "archive", cfg.Archive, filepath.Join(dir, "captures/crawl-01.sar"))
	assertEqual(t, "mode", string(cfg.Mode), "parallel")
	assertEqual(t, "report", cfg.Report, filepath.Join(dir, "out/run.json"))
	if cfg.Workers != 8 || cfg.BatchRecords != 64 {
		t.Errorf("workers/batch_records = %d/%d, want 8/64", cfg.Workers, cfg.BatchRecords)
	}

	if len(cfg.Stages) != 3 {
		t.Fatalf("len(stages) = %d, want 3", len(cfg.Stages))
	}
	assertEqual(t, "stages[0].name", cfg.Stages[0].Name, "responses")
	assertEqual(t, "stages[1].writer", cfg.Stages[1].Writer, "msgpack")
	assertEqual(t, "stages[2].processor", cfg.Stages[2].Processor, "resolve")

	rc := cfg.Resolver.ResolveConfig()
	if rc.Backend != resolve.BackendProtocol || rc.Strategy != resolve.StrategySticky {
		t.Errorf("resolver backend/strategy = %s/%s", rc.Backend, rc.Strategy)
	}
	if len(rc.Servers) != 2 || rc.Timeout != 2*time.Second || rc.StickyTTL != time.Minute || rc.CacheTTL != 5*time.Minute || rc.CacheSize != 2048 {
		t.Errorf("resolver config = %+v", rc)
	}

	assertEqual(t, "sink.type", cfg.Sink.Type, SinkLode)
	assertEqual(t, "sink.backend", cfg.Sink.Backend, "s3")
	assertEqual(t, "sink.path", cfg.Sink.Path, "my-bucket/prefix")
	assertEqual(t, "sink.region", cfg.Sink.Region, "us-east-1")
	if !cfg.Sink.S3PathStyle {
		t.Error("expected sink.s3_path_style=true")
	}

	bc := cfg.Policy.BufferedConfig()
	if bc.MaxBufferEntries != 1000 || bc.MaxBufferBytes != 10485760 {
		t.Errorf("buffered config = %+v", bc)
	}

	wc := cfg.Adapter.WebhookConfig()
	assertEqual(t, "adapter.url", wc.URL, "https://hooks.example.com/sieve")
	assertEqual(t, "adapter.headers", wc.Headers["Authorization"], "Bearer token123")
	assertEqual(t, "adapter.secret", wc.Secret, "s3cr3t")
	if wc.Timeout != 10*time.Second || wc.Retries != 3 || wc.Backoff != 250*time.Millisecond {
		t.Errorf("webhook timeout/retries/backoff = %v/%d/%v", wc.Timeout, wc.Retries, wc.Backoff)
	}
}

func TestLoad_StageOptions(t *testing.T) {
	yaml := `stages:
  - processor: status
    options:
      codes: [200, 301]
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	codes, err := stage.Options(cfg.Stages[0].Options).Ints("codes")
	if err != nil {
		t.Fatalf("Ints failed: %v", err)
	}
	if len(codes) != 2 || codes[0] != 200 || codes[1] != 301 {
		t.Errorf("codes = %v, want [200 301]", codes)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("SIEVE_TEST_ARCHIVE", "/data/a.sar")
	yaml := `archive: ${SIEVE_TEST_ARCHIVE}
sink:
  type: sqlite
  path: ${SIEVE_TEST_DB:-out/entries.db}
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "archive", cfg.Archive, "/data/a.sar")
	assertEqual(t, "sink.path", cfg.Sink.Path, filepath.Join(filepath.Dir(path), "out/entries.db"))
}

func TestLoad_RelativePaths(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		want     string
		anchored bool
	}{
		{"stdout stays", "sink:\n  type: stream\n  path: \"-\"\n", "-", false},
		{"absolute stays", "sink:\n  type: sqlite\n  path: /var/lib/sieve.db\n", "/var/lib/sieve.db", false},
		{"s3 prefix stays", "sink:\n  type: lode\n  backend: s3\n  path: bucket/prefix\n", "bucket/prefix", false},
		{"lode fs anchored", "sink:\n  type: lode\n  path: store\n", "store", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, tt.yaml)
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			want := tt.want
			if tt.anchored {
				want = filepath.Join(filepath.Dir(path), tt.want)
			}
			assertEqual(t, "sink.path", cfg.Sink.Path, want)
		})
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeTemp(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Archive != "" || len(cfg.Stages) != 0 {
		t.Errorf("empty file config = %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load("/nonexistent/sieve.yaml"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing file error = %v", err)
	}
	if _, err := Load(writeTemp(t, "workers: [unclosed")); err == nil || !strings.Contains(err.Error(), "invalid YAML") {
		t.Errorf("bad YAML error = %v", err)
	}
	_, err := Load(writeTemp(t, "resolver:\n  timeout: not-a-duration\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("bad duration error = %v", err)
	}
	_, err = Load(writeTemp(t, "wokers: 4\n"))
	if err == nil || !strings.Contains(err.Error(), "wokers") {
		t.Errorf("unknown key error = %v", err)
	}
	_, err = Load(writeTemp(t, "archive: ${SIEVE_TEST_UNSET_ARCHIVE:?set the archive}\n"))
	if err == nil || !strings.Contains(err.Error(), "set the archive") {
		t.Errorf("required variable error = %v", err)
	}
}

func TestLoad_EmptyDurationIsZero(t *testing.T) {
	cfg, err := Load(writeTemp(t, "adapter:\n  type: webhook\n  url: https://example.com\n  timeout: \"\"\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Timeout.Duration != 0 {
		t.Errorf("expected zero duration, got %v", cfg.Adapter.Timeout.Duration)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"empty config is valid", Config{}, ""},
		{"sequential", Config{Mode: types.ModeSequential}, ""},
		{"noop policy", Config{Policy: PolicyConfig{Name: "noop"}}, ""},
		{"bad mode", Config{Mode: "turbo"}, "mode must be"},
		{"negative workers", Config{Workers: -1}, "workers must be"},
		{"negative batch", Config{BatchRecords: -5}, "batch_records"},
		{"unknown sink", Config{Sink: SinkConfig{Type: "kafka"}}, "sink.type"},
		{"sqlite without path", Config{Sink: SinkConfig{Type: SinkSQLite}}, "sink.path is required for the sqlite"},
		{"lode without path", Config{Sink: SinkConfig{Type: SinkLode}}, "sink.path is required for the lode"},
		{"lode bad backend", Config{Sink: SinkConfig{Type: SinkLode, Path: "x", Backend: "gcs"}}, "sink.backend"},
		{"unknown policy", Config{Policy: PolicyConfig{Name: "streaming"}}, "policy.name"},
		{"adapter without url", Config{Adapter: AdapterConfig{Type: "redis"}}, "adapter.url"},
		{"unknown adapter", Config{Adapter: AdapterConfig{Type: "sns", URL: "x"}}, "adapter.type"},
		{"negative stream cap", Config{Adapter: AdapterConfig{Type: "redis", URL: "x", StreamMaxLen: -1}}, "stream_max_len"},
		{"negative cache size", Config{Resolver: ResolverConfig{CacheSize: -1}}, "resolver.cache_size"},
		{"bad strategy", Config{Resolver: ResolverConfig{Strategy: "fastest"}}, "resolver.strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	err := (&Config{Workers: -1, Policy: PolicyConfig{Name: "x"}}).Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"workers", "policy.name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestAdapterDefaults(t *testing.T) {
	a := AdapterConfig{Type: "redis", URL: "redis://localhost:6379/0"}
	rc := a.RedisConfig()
	if rc.Retries != 3 || rc.Channel != "" {
		t.Errorf("redis config = %+v, want default retries and channel", rc)
	}

	zero := 0
	a.Retries = &zero
	if got := a.RedisConfig().Retries; got != 0 {
		t.Errorf("explicit retries = %d, want 0", got)
	}
}

func TestAdapterConfig_RedisStream(t *testing.T) {
	yaml := `adapter:
  type: redis
  url: redis://localhost:6379/0
  stream: sieve:runs
  stream_max_len: 500
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	rc := cfg.Adapter.RedisConfig()
	if rc.Stream != "sieve:runs" || rc.StreamMaxLen != 500 {
		t.Errorf("redis config = %+v", rc)
	}
}

func TestBufferedConfig_Defaults(t *testing.T) {
	bc := PolicyConfig{Name: "buffered"}.BufferedConfig()
	if bc.MaxBufferEntries != 1000 || bc.MaxBufferBytes != 10*1024*1024 {
		t.Errorf("defaults = %+v", bc)
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sieve.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
