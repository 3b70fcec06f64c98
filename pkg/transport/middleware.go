package transport

import "context"

// Middleware wraps a CodeExecutor to add cross-cutting behavior.
// The first middleware in the chain is the outermost wrapper.
type Middleware func(CodeExecutor) CodeExecutor

// Chain composes multiple middleware into a single middleware.
// Chain(a, b, c) produces a(b(c(handler))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next CodeExecutor) CodeExecutor {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// RequestIDFromContext extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a new context with the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

type executionIDKeyType struct{}

// ExecutionIDFromContext returns the execution ID preassigned by the
// transport, or an empty string.
func ExecutionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(executionIDKeyType{}).(string); ok {
		return id
	}
	return ""
}

// ContextWithExecutionID preassigns the execution ID so the transport can
// register the run for cancellation before it starts.
func ContextWithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKeyType{}, id)
}
