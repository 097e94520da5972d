package lode

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/justapithecus/sieve/types"
)

// S3Config locates a dataset in an S3 bucket. Credentials come from the
// SDK default chain.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible stores such as
	// MinIO or R2.
	Endpoint     string
	UsePathStyle bool
	// MaxAttempts caps SDK retries per request; 0 keeps the SDK default.
	MaxAttempts int
}

// NewS3Config builds an S3Config from a "[s3://]bucket[/prefix]" location.
func NewS3Config(location, region, endpoint string, pathStyle bool) S3Config {
	bucket, prefix := ParseS3Path(location)
	return S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       region,
		Endpoint:     endpoint,
		UsePathStyle: pathStyle,
	}
}

func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("S3 max attempts must be >= 0, got %d", c.MaxAttempts)
	}
	return nil
}

// URI returns the s3:// URI of key under the configured prefix.
func (c *S3Config) URI(key string) string {
	return "s3://" + path.Join(c.Bucket, c.Prefix, key)
}

// ParseS3Path splits "[s3://]bucket[/prefix]".
func ParseS3Path(p string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(strings.TrimPrefix(p, "s3://"), "/")
	return bucket, strings.TrimSuffix(prefix, "/")
}

func (c *S3Config) loadOptions() []func(*config.LoadOptions) error {
	opts := []func(*config.LoadOptions) error{
		config.WithAppID(types.AppID),
	}
	if c.Region != "" {
		opts = append(opts, config.WithRegion(c.Region))
	}
	if c.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(c.MaxAttempts))
	}
	return opts
}

func (c *S3Config) clientOptions(o *s3.Options) {
	if c.Endpoint != "" {
		o.BaseEndpoint = &c.Endpoint
	}
	o.UsePathStyle = c.UsePathStyle
}

// newS3Factory returns a store factory sharing one S3 client.
func newS3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, s3cfg.loadOptions()...)
	if err != nil {
		return nil, storageErr(OpInit, s3cfg.URI(""), fmt.Errorf("load AWS config: %w", err))
	}
	client := s3.NewFromConfig(awsCfg, s3cfg.clientOptions)
	storeCfg := lodes3.Config{Bucket: s3cfg.Bucket, Prefix: s3cfg.Prefix}

	return func() (lode.Store, error) {
		return lodes3.New(client, storeCfg)
	}, nil
}

// NewLodeS3Client opens a writer client on S3.
func NewLodeS3Client(ctx context.Context, cfg Config, s3cfg S3Config) (*LodeClient, error) {
	factory, err := newS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewLodeClientWithFactory(cfg, factory)
}
