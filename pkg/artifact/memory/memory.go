// Package memory provides an in-process artifact.AdminStore. Objects are
// kept in a map guarded by a RWMutex; nothing survives a restart.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/narrated/pyexec/pkg/artifact"
)

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// Store is an in-memory object store for a single bucket.
type Store struct {
	mu      sync.RWMutex
	bucket  string
	exists  bool
	objects map[string]object

	// FailPut, when set, is returned by Put for keys it matches.
	FailPut func(key string) error
}

// Compile-time check.
var _ artifact.AdminStore = (*Store)(nil)

// New creates a store whose bucket already exists.
func New(bucket string) *Store {
	return &Store{bucket: bucket, exists: true, objects: make(map[string]object)}
}

// NewMissing creates a store whose bucket must be created before use.
func NewMissing(bucket string) *Store {
	s := New(bucket)
	s.exists = false
	return s
}

func (s *Store) Bucket() string { return s.bucket }

func (s *Store) Put(_ context.Context, key string, body io.Reader, size int64, contentType string) error {
	if s.FailPut != nil {
		if err := s.FailPut(key); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("body length %d does not match size %d", len(data), size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists {
		return fmt.Errorf("bucket %s: %w", s.bucket, artifact.ErrNotFound)
	}
	s.objects[key] = object{data: data, contentType: contentType, modified: time.Now()}
	return nil
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, artifact.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *Store) List(_ context.Context, prefix string, limit int) ([]artifact.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.exists {
		return nil, fmt.Errorf("bucket %s: %w", s.bucket, artifact.ErrNotFound)
	}

	var out []artifact.Object
	for key, obj := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, artifact.Object{
			Key:          key,
			Size:         int64(len(obj.data)),
			ContentType:  obj.contentType,
			LastModified: obj.modified,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.exists {
		return fmt.Errorf("bucket %s: %w", s.bucket, artifact.ErrNotFound)
	}
	return nil
}

func (s *Store) ListBuckets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.exists {
		return nil, nil
	}
	return []string{s.bucket}, nil
}

func (s *Store) BucketExists(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists, nil
}

func (s *Store) CreateBucket(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exists = true
	return nil
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
