// Package api defines the wire types for the pyexec code execution service.
//
// The package performs no I/O. It provides the request and response bodies
// of the HTTP API, the execution record persisted by the stores, the
// execution status state machine, request validation, and the structured
// error type shared by every layer.
//
// Core types:
//   - [ExecuteRequest]: body of POST /v1/code/execute/python
//   - [ExecuteResponse]: captured output of a single execution
//   - [ExecutionRecord]: stored view of an execution, including its status
//   - [HealthStatus], [InstanceInfo]: the health and info surfaces
//   - [APIError]: structured error with type, code, param, and message
package api
