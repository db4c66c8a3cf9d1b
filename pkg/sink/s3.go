package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/siem-soar-platform/integrations/pkg/logger"
)

// S3Config holds S3 sink configuration.
type S3Config struct {
	Region    string
	Bucket    string
	Prefix    string
	Endpoint  string // S3-compatible storage
	AccessKey string
	SecretKey string
}

// S3Sink writes every batch as one NDJSON object partitioned by vendor,
// product and hour.
type S3Sink struct {
	cfg    S3Config
	client *s3.Client
	logger *logger.Logger
	now    func() time.Time
}

// NewS3Sink creates an S3 sink.
func NewS3Sink(ctx context.Context, cfg S3Config, log *logger.Logger) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 sink requires a bucket")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Sink{
		cfg:    cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		logger: log.With("component", "s3-sink", "bucket", cfg.Bucket),
		now:    time.Now,
	}, nil
}

func (s *S3Sink) Name() string { return "s3" }

// Send uploads the batch.
func (s *S3Sink) Send(ctx context.Context, vendor, product string, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	now := s.now()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range Decorate(vendor, product, events, now) {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}

	key := s.objectKey(vendor, product, now)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	s.logger.Debug("events uploaded", "key", key, "count", len(events))
	return nil
}

func (s *S3Sink) objectKey(vendor, product string, now time.Time) string {
	return path.Join(
		s.cfg.Prefix,
		vendor+"_"+product,
		now.UTC().Format("2006/01/02/15"),
		fmt.Sprintf("%s-%s.ndjson", now.UTC().Format("20060102T150405"), uuid.NewString()),
	)
}

func (s *S3Sink) Close() error { return nil }
