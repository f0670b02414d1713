package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/goldfish-inc/discoeval"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 serves split files stored under a key prefix of one bucket.
type S3 struct {
	Client S3API
	Bucket string
	Prefix string
	log    *zap.Logger
}

// NewS3 builds a client from the default AWS credential chain.
func NewS3(ctx context.Context, bucket, prefix string, opts Options) (*S3, error) {
	region := opts.S3Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.S3Endpoint != "" {
		endpoint := opts.S3Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		})
	}

	return &S3{
		Client: s3.NewFromConfig(awsCfg, s3Opts...),
		Bucket: bucket,
		Prefix: prefix,
		log:    orNop(opts.Logger),
	}, nil
}

// ParseS3URL splits "s3://bucket/some/prefix" into bucket and prefix.
func ParseS3URL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URL %q: %w", raw, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid S3 URL %q: want s3://bucket[/prefix]", raw)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

func (s *S3) key(name string) string {
	return path.Join(s.Prefix, strings.TrimLeft(name, "/"))
}

// Open streams one object.
func (s *S3) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := s.key(name)
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", discoeval.ErrSourceNotFound, s.Bucket, key)
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.Bucket, key, err)
	}
	orNop(s.log).Debug("downloading split", zap.String("bucket", s.Bucket), zap.String("key", key))
	return out.Body, nil
}

// Put uploads body under name and returns the object key.
func (s *S3) Put(ctx context.Context, name string, body io.Reader, contentType string) (string, error) {
	key := s.key(name)
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"source":      "discoeval",
			"exported-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload s3://%s/%s: %w", s.Bucket, key, err)
	}
	orNop(s.log).Info("uploaded export", zap.String("bucket", s.Bucket), zap.String("key", key))
	return key, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}
