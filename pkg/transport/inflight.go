package transport

import (
	"context"
	"sync"
	"time"

	"github.com/narrated/pyexec/pkg/storage"
)

type running struct {
	cancel  context.CancelFunc
	tenant  string
	started time.Time
}

// InFlightRegistry maps the IDs of running executions to their cancel
// functions so DELETE /v1/executions/{id} can stop them. Entries remember
// the tenant that started them; other tenants cannot cancel them.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]running
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{entries: make(map[string]running)}
}

// Register records a running execution owned by the tenant in ctx.
func (r *InFlightRegistry) Register(ctx context.Context, id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = running{cancel: cancel, tenant: storage.TenantFromContext(ctx), started: time.Now()}
}

// Cancel stops the execution if the caller in ctx may see it. It returns
// false when the ID is not running or belongs to another tenant.
func (r *InFlightRegistry) Cancel(ctx context.Context, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || !storage.Visible(ctx, e.tenant) {
		return false
	}
	e.cancel()
	delete(r.entries, id)
	return true
}

// Remove drops an execution without cancelling it.
func (r *InFlightRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of running executions.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Oldest returns how long the longest running execution has been going,
// or zero when nothing is running.
func (r *InFlightRegistry) Oldest() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest time.Time
	for _, e := range r.entries {
		if oldest.IsZero() || e.started.Before(oldest) {
			oldest = e.started
		}
	}
	if oldest.IsZero() {
		return 0
	}
	return time.Since(oldest)
}
