package transport

import (
	"context"

	"github.com/narrated/pyexec/pkg/api"
)

// CodeExecutor handles the core execute operation. Execution failures
// (exceptions, timeouts, non-zero exits) are part of the returned response;
// the error covers requests that could not be run at all and should be an
// *api.APIError where the caller needs a specific HTTP status.
type CodeExecutor interface {
	Execute(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error)
}

// CodeExecutorFunc is an adapter that allows using an ordinary function
// as a CodeExecutor.
type CodeExecutorFunc func(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error)

// Execute calls f(ctx, req).
func (f CodeExecutorFunc) Execute(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error) {
	return f(ctx, req)
}

// StatusReporter answers the service status, health and host info endpoints.
type StatusReporter interface {
	Status(ctx context.Context) *api.ServiceStatus
	Health(ctx context.Context) *api.HealthStatus
	Info(ctx context.Context) (*api.InstanceInfo, error)
}

// ListOptions controls pagination, filtering, and ordering for list operations.
type ListOptions struct {
	After  string              // Cursor: return records after this ID.
	Before string              // Cursor: return records before this ID.
	Limit  int                 // Maximum number of records to return (default 20, max 100).
	Status api.ExecutionStatus // Filter by status.
	Order  string              // Sort order: "asc" or "desc" (default "desc").
}

// ExecutionStore handles persistence of execution records. It is only
// available when record storage is configured.
type ExecutionStore interface {
	// SaveExecution stores a new record. Returns storage.ErrConflict if
	// the ID already exists.
	SaveExecution(ctx context.Context, rec *api.ExecutionRecord) error

	// UpdateExecution replaces the status, completion time and response of
	// an existing record. The status change must be a valid transition.
	UpdateExecution(ctx context.Context, rec *api.ExecutionRecord) error

	// GetExecution retrieves a record by ID. Returns storage.ErrNotFound if
	// it does not exist or has been deleted.
	GetExecution(ctx context.Context, id string) (*api.ExecutionRecord, error)

	// DeleteExecution soft-deletes a record by ID.
	DeleteExecution(ctx context.Context, id string) error

	// ListExecutions returns a paginated list of records, filtered by
	// tenant (when present in context) and optionally by status.
	ListExecutions(ctx context.Context, opts ListOptions) (*api.ExecutionList, error)

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases database connections and resources.
	Close() error
}

// NormalizeLimit applies the default and maximum page size.
func (o ListOptions) NormalizeLimit() int {
	switch {
	case o.Limit <= 0:
		return 20
	case o.Limit > 100:
		return 100
	}
	return o.Limit
}
