// Package s3 implements artifact.AdminStore on AWS S3 or any S3-compatible
// object storage (MinIO, Ceph, R2) reachable through a custom endpoint.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/narrated/pyexec/pkg/artifact"
	"github.com/narrated/pyexec/pkg/debug"
)

// Config holds connection settings for the S3 store.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	EndpointURL     string // optional, S3-compatible endpoint
	UsePathStyle    bool   // forced on when EndpointURL is set
}

// Store wraps an S3 client scoped to one bucket.
type Store struct {
	s3     *s3.Client
	bucket string
	region string
}

var _ artifact.AdminStore = (*Store)(nil)

// New creates an S3-backed store with static credentials.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
		o.UsePathStyle = cfg.UsePathStyle || cfg.EndpointURL != ""
	})

	debug.Log("artifact", "s3 client created", "bucket", cfg.Bucket, "region", cfg.Region, "endpoint", cfg.EndpointURL)
	return NewFromClient(client, cfg.Bucket, cfg.Region), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *s3.Client, bucket, region string) *Store {
	return &Store{s3: client, bucket: bucket, region: region}
}

func (s *Store) Bucket() string { return s.bucket }

// Put uploads body. Bodies that implement io.Seeker (files, bytes.Reader)
// are signed without buffering.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.s3.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s in bucket %s: %w", key, s.bucket, classify(err))
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s from bucket %s: %w", key, s.bucket, classify(err))
	}
	return out.Body, nil
}

func (s *Store) List(ctx context.Context, prefix string, limit int) ([]artifact.Object, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if limit > 0 {
		input.MaxKeys = aws.Int32(int32(limit))
	}

	out, err := s.s3.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects in bucket %s: %w", s.bucket, classify(err))
	}

	objects := make([]artifact.Object, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		o := artifact.Object{Key: *obj.Key, Size: aws.ToInt64(obj.Size)}
		if obj.LastModified != nil {
			o.LastModified = *obj.LastModified
		}
		objects = append(objects, o)
	}
	return objects, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = classify(err)
		if errors.Is(err, artifact.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete object %s from bucket %s: %w", key, s.bucket, err)
	}
	return nil
}

// HealthCheck issues a HeadBucket request.
func (s *Store) HealthCheck(ctx context.Context) error {
	if _, err := s.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("bucket %s: %w", s.bucket, classify(err))
	}
	return nil
}

func (s *Store) ListBuckets(ctx context.Context) ([]string, error) {
	out, err := s.s3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", classify(err))
	}
	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		names = append(names, aws.ToString(b.Name))
	}
	return names, nil
}

// BucketExists checks if the bucket exists and is accessible.
func (s *Store) BucketExists(ctx context.Context) (bool, error) {
	_, err := s.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return true, nil
	}
	err = classify(err)
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		return false, nil
	case errors.Is(err, artifact.ErrAccessDenied):
		return false, fmt.Errorf("bucket %s: %w", s.bucket, err)
	default:
		return false, fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
}

// CreateBucket creates the bucket. us-east-1 rejects an explicit location
// constraint, every other region requires one. Returns nil if the bucket
// already exists and is owned by us.
func (s *Store) CreateBucket(ctx context.Context) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.s3.CreateBucket(ctx, input); err != nil {
		if isBucketAlreadyOwnedByYou(err) {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// classifiedError tags an SDK error with an artifact sentinel. Its message
// is the SDK error's, and errors.Is matches both.
type classifiedError struct {
	sentinel error
	err      error
}

func (e *classifiedError) Error() string   { return e.err.Error() }
func (e *classifiedError) Unwrap() []error { return []error{e.sentinel, e.err} }

// classify maps SDK errors onto artifact sentinels while keeping the
// original error in the chain.
func classify(err error) error {
	switch {
	case isNotFoundError(err):
		return &classifiedError{sentinel: artifact.ErrNotFound, err: err}
	case isAccessDenied(err):
		return &classifiedError{sentinel: artifact.ErrAccessDenied, err: err}
	default:
		return err
	}
}

// isBucketAlreadyOwnedByYou checks if the error indicates the bucket exists and is owned by us.
func isBucketAlreadyOwnedByYou(err error) bool {
	var baoby *types.BucketAlreadyOwnedByYou
	if errors.As(err, &baoby) {
		return true
	}

	// S3-compatible services may not return the exact SDK error types.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "BucketAlreadyOwnedByYou"
	}
	return false
}

// isNotFoundError checks for missing buckets and keys. HeadBucket and
// HeadObject responses carry no body, so the status code is checked too.
func isNotFoundError(err error) bool {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket", "NoSuchKey", "404":
			return true
		}
	}
	return httpStatus(err) == http.StatusNotFound
}

func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "403":
			return true
		}
	}
	return httpStatus(err) == http.StatusForbidden
}

func httpStatus(err error) int {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}
