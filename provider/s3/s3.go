// Package s3 stores durable-tier records as objects in an S3 (or S3-compatible) bucket.
//
// S3 has no per-object TTL, so expiry is left to imgcache's lazy checks and ClearExpired.
// Pair it with a bucket lifecycle rule if stale objects must be reclaimed without a sweep.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	pr "github.com/unkn0wn-root/imgcache/provider"
)

// API is the subset of *s3.Client the provider needs.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Provider struct {
	api    API
	bucket string
	root   string // object key prefix inside the bucket
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	Bucket string
	Root   string // optional object prefix, e.g. "cache/"

	// Used only when Client is nil.
	Region         string
	Endpoint       string // custom endpoint (MinIO, LocalStack)
	ForcePathStyle bool
	MaxRetries     int

	Client API
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 provider: bucket is required")
	}
	api := cfg.Client
	if api == nil {
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Region))
		}
		if cfg.MaxRetries > 0 {
			opts = append(opts, awsconfig.WithRetryMaxAttempts(cfg.MaxRetries))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("s3 provider: load AWS config: %w", err)
		}
		api = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.ForcePathStyle
		})
	}
	return &Provider{api: api, bucket: cfg.Bucket, root: cfg.Root}, nil
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := p.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.root + key),
	})
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("s3 read %s: %w", key, err)
	}
	return b, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	_, err := p.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(p.root + key),
		Body:          bytes.NewReader(value),
		ContentLength: aws.Int64(int64(len(value))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return false, fmt.Errorf("s3 put %s: %w", key, err)
	}
	return true, nil
}

func (p *Provider) Del(ctx context.Context, key string) error {
	_, err := p.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.root + key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

func (p *Provider) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	pg := s3.NewListObjectsV2Paginator(p.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(p.root + prefix),
	})
	for pg.HasMorePages() {
		page, err := pg.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			out = append(out, k[len(p.root):])
		}
	}
	return out, nil
}

func (p *Provider) Close(context.Context) error { return nil }

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
