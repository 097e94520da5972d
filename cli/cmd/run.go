package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	goruntime "runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/sieve/adapter"
	"github.com/justapithecus/sieve/adapter/redis"
	"github.com/justapithecus/sieve/adapter/webhook"
	"github.com/justapithecus/sieve/cli/config"
	"github.com/justapithecus/sieve/container"
	"github.com/justapithecus/sieve/lode"
	"github.com/justapithecus/sieve/log"
	"github.com/justapithecus/sieve/metrics"
	"github.com/justapithecus/sieve/output"
	"github.com/justapithecus/sieve/pipeline"
	"github.com/justapithecus/sieve/policy"
	"github.com/justapithecus/sieve/resolve"
	"github.com/justapithecus/sieve/stage"
	"github.com/justapithecus/sieve/types"
)

// Exit codes for sieve run.
const (
	exitCompleted    = pipeline.ExitCodeCompleted
	exitFailures     = pipeline.ExitCodeFailures
	exitAborted      = pipeline.ExitCodeAborted
	exitInvalidInput = pipeline.ExitCodeInvalidInput
)

// adapterPublishTimeout bounds the best-effort completion notification.
const adapterPublishTimeout = 30 * time.Second

// RunCommand returns the run command.
// This is the only command that writes output.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Apply a stage chain to every record of an archive",
		ArgsUsage: "[archive]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to sieve.yaml (flags override config values)",
			},
			&cli.StringFlag{
				Name:  "archive",
				Usage: "Path to the container archive",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run ID (default: random UUID)",
			},
			// Execution flags
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Runner mode: parallel or sequential",
				Value: string(types.ModeParallel),
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Worker count for parallel mode (default: number of CPUs)",
			},
			&cli.IntFlag{
				Name:  "batch-records",
				Usage: "Records a worker buffers per hand-off to the drain loop",
			},
			&cli.StringSliceFlag{
				Name:  "stage",
				Usage: "Stage as [name=]processor[:writer], repeatable, in chain order",
			},
			// Resolver flags
			&cli.StringFlag{
				Name:  "resolver",
				Usage: "Resolver backend: system, protocol or synthetic",
			},
			&cli.StringSliceFlag{
				Name:  "nameserver",
				Usage: "Nameserver host:port for the protocol resolver, repeatable",
			},
			&cli.StringFlag{
				Name:  "resolver-strategy",
				Usage: "Nameserver selection: round_robin, random or sticky",
			},
			&cli.DurationFlag{
				Name:  "resolver-timeout",
				Usage: "Per-query timeout for the protocol resolver",
			},
			// Sink flags
			&cli.StringFlag{
				Name:  "sink",
				Usage: "Sink type: stream, sqlite or lode",
				Value: config.SinkStream,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Sink path (stream: file or -, sqlite: database file, lode: directory or bucket/prefix)",
			},
			&cli.StringFlag{
				Name:  "dataset",
				Usage: "Lode dataset ID",
			},
			&cli.StringFlag{
				Name:  "lode-backend",
				Usage: "Lode storage backend: fs or s3",
			},
			&cli.StringFlag{
				Name:  "lode-s3-region",
				Usage: "AWS region for the S3 backend (optional, uses default chain)",
			},
			&cli.StringFlag{
				Name:  "lode-s3-endpoint",
				Usage: "Custom S3 endpoint for S3-compatible stores",
			},
			&cli.BoolFlag{
				Name:  "lode-s3-path-style",
				Usage: "Use path-style S3 addressing",
			},
			// Policy flags
			&cli.StringFlag{
				Name:  "policy",
				Usage: "Drain policy: strict, buffered or noop (dry run, nothing is written)",
				Value: "strict",
			},
			&cli.IntFlag{
				Name:  "buffer-entries",
				Usage: "Max buffered entries (buffered policy)",
			},
			&cli.Int64Flag{
				Name:  "buffer-bytes",
				Usage: "Max buffer size in bytes (buffered policy)",
			},
			// Report flags
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write the JSON run report to this path (- for stderr)",
			},
			&cli.BoolFlag{
				Name:  "strict-exit",
				Usage: "Exit 1 when the run completed with record failures",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the run summary",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn or error",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log encoding on stderr: json or console",
				Value: "json",
			},
			// Adapter flags
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Run completion adapter: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Webhook URL or redis URL",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis pub/sub channel",
			},
			&cli.StringFlag{
				Name:  "adapter-stream",
				Usage: "Redis stream key; events are appended with XADD instead of published",
			},
			&cli.StringFlag{
				Name:    "adapter-secret",
				Usage:   "Webhook HMAC-SHA256 signing secret",
				EnvVars: []string{"SIEVE_ADAPTER_SECRET"},
			},
			&cli.StringSliceFlag{
				Name:  "adapter-header",
				Usage: "Webhook header as Key=Value, repeatable",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Adapter request timeout",
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Adapter retry count",
			},
		},
		Action: runAction,
	}
}

// runConfig merges run flags over the --config file and validates the result.
func runConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	cfg.Archive = resolveString(c, "archive", cfg.Archive)
	if !c.IsSet("archive") && c.NArg() > 0 {
		cfg.Archive = c.Args().First()
	}
	cfg.Mode = types.Mode(resolveString(c, "mode", string(cfg.Mode)))
	cfg.Workers = resolveInt(c, "workers", cfg.Workers)
	cfg.BatchRecords = resolveInt(c, "batch-records", cfg.BatchRecords)
	cfg.Report = resolveString(c, "report", cfg.Report)
	if c.IsSet("stage") {
		specs, err := parseStageFlags(c.StringSlice("stage"))
		if err != nil {
			return nil, err
		}
		cfg.Stages = specs
	}

	cfg.Resolver.Backend = resolveString(c, "resolver", cfg.Resolver.Backend)
	cfg.Resolver.Servers = resolveStrings(c, "nameserver", cfg.Resolver.Servers)
	cfg.Resolver.Strategy = resolveString(c, "resolver-strategy", cfg.Resolver.Strategy)
	cfg.Resolver.Timeout.Duration = resolveDuration(c, "resolver-timeout", cfg.Resolver.Timeout.Duration)

	cfg.Sink.Type = resolveString(c, "sink", cfg.Sink.Type)
	cfg.Sink.Path = resolveString(c, "output", cfg.Sink.Path)
	cfg.Sink.Dataset = resolveString(c, "dataset", cfg.Sink.Dataset)
	cfg.Sink.Backend = resolveString(c, "lode-backend", cfg.Sink.Backend)
	cfg.Sink.Region = resolveString(c, "lode-s3-region", cfg.Sink.Region)
	cfg.Sink.Endpoint = resolveString(c, "lode-s3-endpoint", cfg.Sink.Endpoint)
	cfg.Sink.S3PathStyle = resolveBool(c, "lode-s3-path-style", cfg.Sink.S3PathStyle)

	cfg.Policy.Name = resolveString(c, "policy", cfg.Policy.Name)
	cfg.Policy.MaxEntries = resolveInt(c, "buffer-entries", cfg.Policy.MaxEntries)
	cfg.Policy.MaxBytes = resolveInt64(c, "buffer-bytes", cfg.Policy.MaxBytes)

	cfg.Adapter.Type = resolveString(c, "adapter", cfg.Adapter.Type)
	cfg.Adapter.URL = resolveString(c, "adapter-url", cfg.Adapter.URL)
	cfg.Adapter.Channel = resolveString(c, "adapter-channel", cfg.Adapter.Channel)
	cfg.Adapter.Stream = resolveString(c, "adapter-stream", cfg.Adapter.Stream)
	cfg.Adapter.Secret = resolveString(c, "adapter-secret", cfg.Adapter.Secret)
	cfg.Adapter.Timeout.Duration = resolveDuration(c, "adapter-timeout", cfg.Adapter.Timeout.Duration)
	if c.IsSet("adapter-retries") {
		retries := c.Int("adapter-retries")
		cfg.Adapter.Retries = &retries
	}
	headers, err := parseHeaders(cfg.Adapter.Headers, c.StringSlice("adapter-header"))
	if err != nil {
		return nil, err
	}
	cfg.Adapter.Headers = headers

	var errs []error
	if cfg.Archive == "" {
		errs = append(errs, errors.New("archive is required (--archive, first argument, or archive in sieve.yaml)"))
	}
	if len(cfg.Stages) == 0 {
		errs = append(errs, errors.New("at least one stage is required (--stage or stages in sieve.yaml)"))
	}
	if cfg.Adapter.Retries != nil && *cfg.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter retries must be >= 0, got %d", *cfg.Adapter.Retries))
	}
	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// openedSink is the output destination of a run.
type openedSink struct {
	sink policy.Sink
	// lode is set for the lode sink so the run file can be stored with the entries.
	lode *lode.Sink
	// backend labels metrics: stream, sqlite, lode-fs or lode-s3.
	backend string
	// storagePath locates the output for the completion event.
	storagePath string
}

// openSink opens the configured sink. The stream sink defaults to stdout.
func openSink(ctx context.Context, cfg config.SinkConfig, runID, archive string, startTime time.Time) (*openedSink, error) {
	switch cfg.Type {
	case config.SinkStream, "":
		path := cfg.Path
		if path == "" {
			path = "-"
		}
		s, err := output.OpenFileSink(path)
		if err != nil {
			return nil, err
		}
		return &openedSink{sink: s, backend: config.SinkStream, storagePath: path}, nil

	case config.SinkSQLite:
		s, err := output.OpenSQLiteSink(ctx, cfg.Path, runID)
		if err != nil {
			return nil, err
		}
		return &openedSink{sink: s, backend: config.SinkSQLite, storagePath: cfg.Path}, nil

	case config.SinkLode:
		lcfg := lode.Config{
			Dataset: cfg.Dataset,
			Archive: archive,
			Day:     lode.DeriveDay(startTime),
			RunID:   runID,
		}
		if lcfg.Dataset == "" {
			lcfg.Dataset = lode.DefaultDataset
		}

		var (
			client  *lode.LodeClient
			err     error
			backend string
		)
		switch cfg.Backend {
		case "fs", "":
			backend = "lode-fs"
			client, err = lode.NewLodeClient(lcfg, cfg.Path)
		case "s3":
			backend = "lode-s3"
			client, err = lode.NewLodeS3Client(ctx, lcfg, s3ConfigFor(cfg))
		default:
			return nil, fmt.Errorf("unknown lode backend %q (must be fs or s3)", cfg.Backend)
		}
		if err != nil {
			return nil, err
		}
		s := lode.NewSink(lcfg, client)
		return &openedSink{
			sink:        s,
			lode:        s,
			backend:     backend,
			storagePath: buildStoragePath(cfg, lcfg),
		}, nil

	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}

func s3ConfigFor(cfg config.SinkConfig) lode.S3Config {
	return lode.NewS3Config(cfg.Path, cfg.Region, cfg.Endpoint, cfg.S3PathStyle)
}

// buildStoragePath returns the URI of the partition holding a run's records.
// Unknown backends get the bare partition path.
func buildStoragePath(cfg config.SinkConfig, lcfg lode.Config) string {
	partition := fmt.Sprintf("datasets/%s/partitions/day=%s/run_id=%s", lcfg.Dataset, lcfg.Day, lcfg.RunID)
	switch cfg.Backend {
	case "fs", "":
		root, err := filepath.Abs(cfg.Path)
		if err != nil {
			root = cfg.Path
		}
		return "file://" + filepath.ToSlash(filepath.Join(root, partition))
	case "s3":
		s3cfg := s3ConfigFor(cfg)
		return s3cfg.URI(partition)
	default:
		return partition
	}
}

// buildPolicy wraps sink in the configured drain policy.
func buildPolicy(cfg config.PolicyConfig, sink policy.Sink) (policy.Policy, string, error) {
	switch cfg.Name {
	case "strict", "":
		return policy.NewStrictPolicy(sink), "strict", nil
	case "buffered":
		p, err := policy.NewBufferedPolicy(sink, cfg.BufferedConfig())
		if err != nil {
			return nil, "", err
		}
		return p, "buffered", nil
	case "noop":
		return policy.NewNoopPolicy(), "noop", nil
	default:
		return nil, "", fmt.Errorf("invalid --policy %q (must be strict, buffered or noop)", cfg.Name)
	}
}

// buildAdapter constructs the configured completion adapter, or nil.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		return webhook.New(cfg.WebhookConfig())
	case "redis":
		return redis.New(cfg.RedisConfig())
	default:
		return nil, fmt.Errorf("unknown adapter %q (must be webhook or redis)", cfg.Type)
	}
}

func runAction(c *cli.Context) error {
	cfg, err := runConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitInvalidInput)
	}

	runID := c.String("run-id")
	if runID == "" {
		runID = uuid.NewString()
	}
	mode := cfg.Mode
	if mode == "" {
		mode = types.ModeParallel
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = goruntime.NumCPU()
	}
	meta := &types.RunMeta{RunID: runID, Archive: cfg.Archive, Mode: mode, Workers: workers}
	if err := meta.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitInvalidInput)
	}

	level, err := log.ParseLevel(c.String("log-level"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid --log-level: %v", err), exitInvalidInput)
	}
	logger, err := log.New(meta, log.Options{
		Level:  level,
		Format: log.Format(c.String("log-format")),
		Output: os.Stderr,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid --log-format: %v", err), exitInvalidInput)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()

	out, err := openSink(ctx, cfg.Sink, runID, cfg.Archive, startTime)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open sink: %v", err), exitAborted)
	}
	collector := metrics.NewCollector(policyLabel(cfg.Policy.Name), string(mode), out.backend, runID)
	sink := policy.Instrument(out.sink, collector)

	pol, policyName, err := buildPolicy(cfg.Policy, sink)
	if err != nil {
		_ = sink.Close()
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitInvalidInput)
	}
	if policyName == "noop" {
		// The noop policy never reaches the sink, so it is closed here.
		defer func() { _ = sink.Close() }()
	}
	defer func() {
		if err := pol.Close(); err != nil {
			logger.Warn("failed to close sink", map[string]any{"error": err.Error()})
		}
	}()

	res, err := resolve.New(cfg.Resolver.ResolveConfig())
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitInvalidInput)
	}
	chain, err := stage.NewRegistry().BuildChain(cfg.Stages, stage.Deps{Resolver: res, Metrics: collector})
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitInvalidInput)
	}

	pub, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitInvalidInput)
	}
	if pub != nil {
		defer func() { _ = pub.Close() }()
	}

	archive, err := container.Open(cfg.Archive)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open archive: %v", err), exitAborted)
	}
	defer func() { _ = archive.Close() }()

	runner := pipeline.NewRunner(archive, chain, sink,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(collector),
		pipeline.WithPolicy(pol),
		pipeline.WithBatchRecords(cfg.BatchRecords),
	)

	var report *pipeline.Report
	var runErr error
	if mode == types.ModeSequential {
		report, runErr = runner.RunSequentially(ctx)
	} else {
		report, runErr = runner.Run(ctx, workers)
	}
	duration := time.Since(startTime)

	outcome := pipeline.DetermineOutcome(report, runErr)
	exitCode := pipeline.ExitCode(outcome, c.Bool("strict-exit"))
	rf := pipeline.BuildRunFile(&pipeline.RunSummary{
		Meta:        meta,
		Report:      report,
		Outcome:     outcome,
		StartedAt:   startTime,
		Duration:    duration,
		PolicyName:  policyName,
		PolicyStats: pol.Stats(),
	}, collector.Snapshot(), exitCode)

	// The run is over; storing and announcing its result must not be cut
	// short by the signal that may have ended it.
	finishCtx := context.WithoutCancel(ctx)
	completedAt := time.Now()

	if out.lode != nil {
		if err := out.lode.WriteRun(finishCtx, rf, completedAt); err != nil {
			logger.Error("failed to store run record", map[string]any{"error": err.Error()})
		}
	}
	if cfg.Report != "" {
		if err := pipeline.WriteRunFile(rf, cfg.Report); err != nil {
			logger.Error("failed to write run report", map[string]any{"error": err.Error()})
		}
	}
	if pub != nil {
		publishRunCompleted(finishCtx, pub, adapter.NewRunCompletedEvent(rf, out.storagePath, completedAt), logger)
	}

	if !c.Bool("quiet") {
		printRunSummary(os.Stderr, rf)
	}

	if outcome.Status == types.OutcomeAborted {
		return cli.Exit(fmt.Sprintf("run aborted: %s", outcome.Message), exitCode)
	}
	return cli.Exit("", exitCode)
}

// policyLabel names the policy for metrics before it is built.
func policyLabel(name string) string {
	if name == "" {
		return "strict"
	}
	return name
}

// publishRunCompleted publishes the event. Failures are logged only.
func publishRunCompleted(ctx context.Context, pub adapter.Adapter, event *adapter.RunCompletedEvent, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(ctx, adapterPublishTimeout)
	defer cancel()
	if err := pub.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish run completion", map[string]any{"error": err.Error()})
		return
	}
	logger.Debug("published run completion", map[string]any{"outcome": event.Outcome})
}

func printRunSummary(w io.Writer, rf *pipeline.RunFile) {
	_, _ = fmt.Fprintf(w, "\nrun_id=%s, mode=%s, outcome=%s, duration=%s\n",
		rf.RunID,
		rf.Mode,
		rf.Outcome,
		(time.Duration(rf.DurationMs) * time.Millisecond).String(),
	)
	_, _ = fmt.Fprintf(w, "processed=%d, dropped=%d, failed=%d, entries=%d\n",
		rf.Records.Processed,
		rf.Records.Dropped,
		rf.Records.Failed,
		rf.Records.Entries,
	)
	if rf.Policy != nil && rf.Policy.Name == "buffered" {
		_, _ = fmt.Fprintf(w, "policy=%s, write_calls=%d, flushes=%d\n",
			rf.Policy.Name, rf.Policy.WriteCalls, rf.Policy.FlushCount)
	}
	if rf.ErrorKind != "" {
		_, _ = fmt.Fprintf(w, "error_kind=%s\n", rf.ErrorKind)
	}
}
