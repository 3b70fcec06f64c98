// Package memory provides an in-memory implementation of
// transport.ExecutionStore for testing and single-host deployments. Records
// are lost when the process restarts. Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/narrated/pyexec/pkg/api"
	"github.com/narrated/pyexec/pkg/storage"
	"github.com/narrated/pyexec/pkg/transport"
)

// entry holds a stored record and its metadata.
type entry struct {
	rec       *api.ExecutionRecord
	tenantID  string
	deletedAt *time.Time
	lruElem   *list.Element
}

// Store is an in-memory ExecutionStore with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = newest, back = oldest
	maxSize int        // 0 = unlimited
}

var _ transport.ExecutionStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the oldest entry is evicted when the
// limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// SaveExecution stores a new record.
func (s *Store) SaveExecution(ctx context.Context, rec *api.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[rec.ID]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(rec.ID)
	s.entries[rec.ID] = &entry{
		rec:      clone(rec),
		tenantID: storage.TenantFromContext(ctx),
		lruElem:  elem,
	}
	return nil
}

// UpdateExecution moves a record to a new status and attaches its response.
func (s *Store) UpdateExecution(ctx context.Context, rec *api.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, rec.ID)
	if err != nil {
		return err
	}
	if apiErr := api.ValidateExecutionTransition(e.rec.Status, rec.Status); apiErr != nil {
		return apiErr
	}

	updated := clone(e.rec)
	updated.Status = rec.Status
	updated.CompletedAt = rec.CompletedAt
	updated.Response = rec.Response
	e.rec = updated
	return nil
}

// GetExecution retrieves a record by ID. Scoped by tenant when a tenant is
// present in the context.
func (s *Store) GetExecution(ctx context.Context, id string) (*api.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return clone(e.rec), nil
}

// DeleteExecution soft-deletes a record.
func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now()
	e.deletedAt = &now
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// ListExecutions returns a paginated list of records filtered by tenant
// and optionally by status, with cursor-based pagination.
func (s *Store) ListExecutions(ctx context.Context, opts transport.ListOptions) (*api.ExecutionList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*api.ExecutionRecord
	for _, e := range s.entries {
		if e.deletedAt != nil || !storage.Visible(ctx, e.tenantID) {
			continue
		}
		if opts.Status != "" && e.rec.Status != opts.Status {
			continue
		}
		matches = append(matches, e.rec)
	}

	// Default order is desc (newest first).
	asc := opts.Order == "asc"
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if asc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if asc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	limit := opts.NormalizeLimit()
	var hasMore bool
	switch {
	case opts.After != "":
		idx := indexOf(matches, opts.After)
		if idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
		hasMore = len(matches) > limit
		if hasMore {
			matches = matches[:limit]
		}
	case opts.Before != "":
		// The page is the limit records immediately preceding the cursor.
		idx := indexOf(matches, opts.Before)
		if idx < 0 {
			idx = 0
		}
		start := max(idx-limit, 0)
		hasMore = start > 0
		matches = matches[start:idx]
	default:
		hasMore = len(matches) > limit
		if hasMore {
			matches = matches[:limit]
		}
	}

	result := &api.ExecutionList{
		Object:  "list",
		Data:    make([]*api.ExecutionRecord, 0, len(matches)),
		HasMore: hasMore,
	}
	for _, rec := range matches {
		result.Data = append(result.Data, clone(rec))
	}
	if len(matches) > 0 {
		result.FirstID = matches[0].ID
		result.LastID = matches[len(matches)-1].ID
	}
	return result, nil
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.deletedAt == nil {
			n++
		}
	}
	return n
}

// lookup finds a live, tenant-visible entry. Must be called with s.mu held.
func (s *Store) lookup(ctx context.Context, id string) (*entry, error) {
	e, ok := s.entries[id]
	if !ok || e.deletedAt != nil {
		return nil, storage.ErrNotFound
	}
	if !storage.Visible(ctx, e.tenantID) {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

// evictOldest removes the least recently stored entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}

func indexOf(recs []*api.ExecutionRecord, id string) int {
	for i, r := range recs {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// clone copies the record so callers cannot mutate stored state.
func clone(rec *api.ExecutionRecord) *api.ExecutionRecord {
	c := *rec
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		c.CompletedAt = &t
	}
	if rec.Response != nil {
		resp := *rec.Response
		c.Response = &resp
	}
	return &c
}
