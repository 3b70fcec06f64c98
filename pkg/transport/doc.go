// Package transport defines the handler interfaces and middleware chain for
// the pyexec HTTP transport layer.
//
// # Handler Interfaces
//
//   - CodeExecutor runs one execute request and returns the captured outcome.
//   - StatusReporter answers the status, health and host info endpoints.
//   - ExecutionStore persists execution records; it is optional and only
//     present when record storage is configured.
//
// # Middleware
//
// The middleware chain wraps CodeExecutor with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog.
//
// InFlightRegistry maps running execution IDs to cancel functions so a
// DELETE on a running execution can stop its subprocess.
package transport
