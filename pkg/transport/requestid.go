package transport

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/narrated/pyexec/pkg/api"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID returns middleware that assigns a request ID unless the context
// already carries one from the X-Request-ID header.
func RequestID() Middleware {
	return func(next CodeExecutor) CodeExecutor {
		return CodeExecutorFunc(func(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.Execute(ctx, req)
		})
	}
}

// NewRequestID returns a random ID of 32 lowercase hex characters.
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
