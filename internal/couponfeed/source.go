// Package couponfeed reads gzip-compressed coupon code feeds and selects the
// codes that appear in enough feeds to be trusted.
package couponfeed

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
)

// Source opens a named feed. The returned stream is gzip-compressed.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// DirSource reads feeds from a local directory.
type DirSource struct {
	Dir string
}

// Open opens Dir/name.
func (s DirSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.Dir, name))
	if err != nil {
		return nil, errors.Wrapf(err, "open feed %s", name)
	}
	return f, nil
}

// ObjectGetter is the subset of *s3.Client used by S3Source.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads feeds from an S3 bucket, prefixing every name with Prefix.
type S3Source struct {
	Client ObjectGetter
	Bucket string
	Prefix string
}

// NewS3Source builds an S3Source from the default AWS credential chain.
func NewS3Source(ctx context.Context, bucket, prefix, region string) (*S3Source, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	return &S3Source{
		Client: s3.NewFromConfig(cfg),
		Bucket: bucket,
		Prefix: prefix,
	}, nil
}

// Open fetches the object Prefix+name.
func (s *S3Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := s.Prefix + name
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get s3://%s/%s", s.Bucket, key)
	}
	return out.Body, nil
}

// FallbackSource tries Primary and falls back to Secondary when Primary
// cannot open the feed.
type FallbackSource struct {
	Primary   Source
	Secondary Source
}

// Open implements Source.
func (s FallbackSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, err := s.Primary.Open(ctx, name)
	if err == nil {
		return rc, nil
	}
	zctx.From(ctx).Warn("Primary feed source failed, falling back",
		zap.String("feed", name),
		zap.Error(err),
	)
	return s.Secondary.Open(ctx, name)
}

// Scan streams the named feed and calls fn for every non-empty, trimmed line.
func Scan(ctx context.Context, src Source, name string, fn func(code string)) error {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	gz, err := pgzip.NewReader(rc)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", name)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if code := strings.TrimSpace(scanner.Text()); code != "" {
			fn(code)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", name)
	}
	return nil
}
