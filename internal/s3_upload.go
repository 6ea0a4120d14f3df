package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/survey"
	"go.uber.org/zap"
)

// bucketAPI is the part of *s3.Client used to make sure the bucket exists.
type bucketAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// objectUploader is satisfied by *manager.Uploader.
type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Uploader writes export files to the configured bucket. Calls are guarded by a
// circuit breaker so an unreachable object store fails fast.
type S3Uploader struct {
	buckets  bucketAPI
	uploader objectUploader
	bucket   string
	prefix   string
	breaker  *CircuitBreaker

	mu          sync.Mutex
	bucketReady bool
}

// NewS3Uploader builds an S3 client from cfg. Static credentials and a custom
// endpoint (MinIO, RustFS) are optional.
func NewS3Uploader(ctx context.Context, cfg survey.ExportConfig) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("export: bucket is required")
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(cfg.Endpoint))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	breaker := NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerWindow, cfg.BreakerOpenFor)
	return newS3Uploader(client, manager.NewUploader(client), cfg.Bucket, cfg.Prefix, breaker), nil
}

func newS3Uploader(buckets bucketAPI, uploader objectUploader, bucket, prefix string, breaker *CircuitBreaker) *S3Uploader {
	return &S3Uploader{
		buckets:  buckets,
		uploader: uploader,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		breaker:  breaker,
	}
}

func (u *S3Uploader) Bucket() string { return u.bucket }

// ObjectKey joins the configured prefix and name.
func (u *S3Uploader) ObjectKey(name string) string {
	name = strings.TrimLeft(name, "/")
	if u.prefix == "" {
		return name
	}
	return u.prefix + "/" + name
}

// Upload stores body under key and returns the object location.
func (u *S3Uploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	var location string
	err := u.breaker.Do(func() error {
		if err := u.ensureBucket(ctx); err != nil {
			return err
		}
		out, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(key),
			Body:        body,
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return fmt.Errorf("s3 upload: %w", err)
		}
		location = out.Location
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			zap.S().Warnw("export upload rejected, object store breaker open", "bucket", u.bucket)
		}
		return "", err
	}
	return location, nil
}

func (u *S3Uploader) ensureBucket(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.bucketReady {
		return nil
	}
	if _, err := u.buckets.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(u.bucket)}); err != nil {
		if _, cerr := u.buckets.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(u.bucket)}); cerr != nil {
			var apiErr smithy.APIError
			if !errors.As(cerr, &apiErr) {
				return fmt.Errorf("create bucket: %w", cerr)
			}
			code := apiErr.ErrorCode()
			if code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
				return fmt.Errorf("create bucket: %w", cerr)
			}
		} else {
			zap.S().Infow("created export bucket", "bucket", u.bucket)
		}
	}
	u.bucketReady = true
	return nil
}
