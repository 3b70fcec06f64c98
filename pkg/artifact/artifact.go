// Package artifact defines the object storage abstraction used to persist
// files produced by executions, plus helpers built on top of it: concurrent
// output uploads and the bucket connectivity check.
//
// Implementations live in subpackages: artifact/s3 talks to AWS S3 or any
// S3-compatible endpoint, artifact/memory keeps objects in process.
package artifact

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when an object or bucket does not exist.
	ErrNotFound = errors.New("artifact: not found")

	// ErrAccessDenied is returned when credentials are valid but lack
	// permission for the bucket.
	ErrAccessDenied = errors.New("artifact: access denied")
)

// Object describes a stored object.
type Object struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Store is the object storage backend, scoped to one bucket.
type Store interface {
	// Bucket returns the bucket name objects are written to.
	Bucket() string

	// Put writes body under key. size is the exact body length.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// Get opens the object for reading. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns up to limit objects whose keys start with prefix.
	// limit <= 0 means the backend default page size.
	List(ctx context.Context, prefix string, limit int) ([]Object, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// HealthCheck verifies the bucket is reachable.
	HealthCheck(ctx context.Context) error
}

// BucketAdmin covers the account-level operations the connectivity check needs.
type BucketAdmin interface {
	// ListBuckets returns the names of all buckets visible to the credentials.
	ListBuckets(ctx context.Context) ([]string, error)

	// BucketExists reports whether the store's bucket exists. It returns
	// ErrAccessDenied when the bucket exists but is not accessible.
	BucketExists(ctx context.Context) (bool, error)

	// CreateBucket creates the store's bucket in the configured region.
	CreateBucket(ctx context.Context) error
}

// AdminStore is a Store that also supports bucket administration.
type AdminStore interface {
	Store
	BucketAdmin
}
