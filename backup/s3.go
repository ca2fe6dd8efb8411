// Package backup copies the bot's state files to S3-compatible object
// storage after each cycle.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Config struct {
	// Endpoint is set for S3-compatible providers such as MinIO or R2.
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	Prefix         string
	ForcePathStyle bool
}

// putter is the part of the S3 API the backup uses.
type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads files under <prefix>/<YYYY-MM-DD>/<HHMMSS>/<name>.
type S3 struct {
	client putter
	bucket string
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// New builds the S3 client. Static credentials are used when an access key
// is set; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("backup: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		// S3-compatible endpoints ignore the region but the signer needs one.
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("backup: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint)
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(endpoint) })
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return newS3(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3(c putter, bucket, prefix string, logger *slog.Logger) *S3 {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3{
		client: c,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
		logger: logger.With(slog.String("component", "backup")),
	}
}

// Backup uploads every file. It attempts them all and reports every failure.
func (b *S3) Backup(ctx context.Context, files []string) error {
	stamp := b.now().UTC()
	dir := path.Join(b.prefix, stamp.Format("2006-01-02"), stamp.Format("150405"))

	var errs []error
	for _, f := range files {
		key := path.Join(dir, filepath.Base(f))
		if err := b.put(ctx, f, key); err != nil {
			errs = append(errs, err)
			continue
		}
		b.logger.Debug("state file uploaded", slog.String("bucket", b.bucket), slog.String("key", key))
	}
	return errors.Join(errs...)
}

func (b *S3) put(ctx context.Context, file, key string) error {
	fh, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("backup: open %s: %w", file, err)
	}
	defer fh.Close()

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        fh,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("backup: put object %s: %w", key, err)
	}
	return nil
}

// normaliseEndpoint adds https:// when the endpoint has no scheme.
func normaliseEndpoint(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		return endpoint
	}
	return "https://" + endpoint
}
