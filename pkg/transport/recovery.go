package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/narrated/pyexec/pkg/api"
)

// Recovery returns middleware that turns a panic in the executor into a
// server error. The panic value and stack are logged with the request and
// execution IDs; the client only sees the panic value.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next CodeExecutor) CodeExecutor {
		return CodeExecutorFunc(func(ctx context.Context, req *api.ExecuteRequest) (resp *api.ExecuteResponse, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic during execution",
						"request_id", RequestIDFromContext(ctx),
						"execution_id", ExecutionIDFromContext(ctx),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					resp = nil
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.Execute(ctx, req)
		})
	}
}
