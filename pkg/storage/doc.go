// Package storage provides utilities shared across execution record store
// implementations, including sentinel errors and tenant context helpers.
//
// Store adapters (memory, postgres) implement the transport.ExecutionStore
// interface defined in pkg/transport/handler.go.
package storage
