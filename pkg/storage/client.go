package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/edl-tools/tachyon-setup/pkg/errors"
)

// S3Client reads artifacts from public buckets.
type S3Client struct {
	s3Client *s3.Client
}

// NewS3Client creates a new S3 client for anonymous access
func NewS3Client(ctx context.Context, region string) (*S3Client, error) {
	slog.Info("s3_client_init", "region", region)

	// Load AWS config with anonymous credentials
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return &S3Client{s3Client: s3.NewFromConfig(cfg)}, nil
}

// splitS3URL turns s3://bucket/key into its parts.
func splitS3URL(u *url.URL) (bucket, key string, err error) {
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 url %q", u.String())
	}
	return bucket, key, nil
}

// Open starts reading the object at u from byte offset.
func (c *S3Client) Open(ctx context.Context, u *url.URL, offset int64) (*Object, error) {
	bucket, key, err := splitS3URL(u)
	if err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if offset > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	slog.Info("s3_download_start", "bucket", bucket, "s3_key", key, "offset", offset)
	result, err := c.s3Client.GetObject(ctx, input)
	if err != nil {
		slog.Error("s3_get_object_failed", "s3_key", key, "error", err)
		return nil, errors.Wrap(err, "failed to get object from S3")
	}

	obj := &Object{Body: result.Body, Offset: offset, Size: -1}
	if result.ContentRange != nil {
		if total, ok := parseContentRangeTotal(*result.ContentRange); ok {
			obj.Size = total
		}
	} else if result.ContentLength != nil {
		obj.Size = offset + *result.ContentLength
	}
	return obj, nil
}
