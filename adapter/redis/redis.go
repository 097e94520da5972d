// Package redis announces finished runs on Redis.
//
// Events go to a pub/sub channel by default. With Stream set they are
// appended to a Redis stream instead, so consumers that were offline can
// read them later.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/sieve/adapter"
)

const (
	DefaultChannel = "sieve:run_completed"
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 3
)

// Config configures the Redis adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db]. Required.
	URL string
	// Channel is the pub/sub channel, used when Stream is empty.
	Channel string
	// Stream, when set, selects XADD to this stream instead of PUBLISH.
	Stream string
	// StreamMaxLen caps the stream length (approximate trim). Zero keeps
	// every entry.
	StreamMaxLen int64
	// Timeout bounds each attempt.
	Timeout time.Duration
	Retries int
	// Backoff is the wait before the first retry; it doubles per retry.
	Backoff time.Duration
}

// Adapter publishes run completion events to Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New validates cfg, applies defaults and creates the client. No connection
// is made until the first publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.StreamMaxLen < 0 {
		return nil, fmt.Errorf("stream max length must be >= 0, got %d", cfg.StreamMaxLen)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Publish sends the event, retrying connection failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RunCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	err = adapter.Retry(ctx, a.config.Retries, a.config.Backoff, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		if a.config.Stream != "" {
			return a.client.XAdd(ctx, a.streamArgs(event, body)).Err()
		}
		return a.client.Publish(ctx, a.config.Channel, body).Err()
	})
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// streamArgs carries the run ID and outcome as their own fields so
// consumers can filter without decoding the event.
func (a *Adapter) streamArgs(event *adapter.RunCompletedEvent, body []byte) *goredis.XAddArgs {
	args := &goredis.XAddArgs{
		Stream: a.config.Stream,
		Values: map[string]any{
			"run_id":  event.RunID,
			"outcome": event.Outcome,
			"event":   string(body),
		},
	}
	if a.config.StreamMaxLen > 0 {
		args.MaxLen = a.config.StreamMaxLen
		args.Approx = true
	}
	return args
}

// Close releases the client's connections.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
