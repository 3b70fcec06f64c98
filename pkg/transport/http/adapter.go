package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/narrated/pyexec/pkg/api"
	"github.com/narrated/pyexec/pkg/observability"
	"github.com/narrated/pyexec/pkg/storage"
	"github.com/narrated/pyexec/pkg/transport"
)

// Adapter serves the code execution API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	executor transport.CodeExecutor
	reporter transport.StatusReporter
	store    transport.ExecutionStore // nil when records are disabled
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64

	// MetricsPath exposes Prometheus metrics when non-empty.
	MetricsPath string

	// HTTPMiddleware wraps the routed handler, outermost first. Auth goes here.
	HTTPMiddleware []func(http.Handler) http.Handler
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 64 << 20, // 64 MB, input files arrive base64-encoded
		MetricsPath: "/metrics",
	}
}

// NewAdapter creates an HTTP adapter. The ExecutionStore is optional; when
// nil, the /v1/executions endpoints answer 501 except for cancelling a
// running execution. Middleware is applied to the executor in the given order.
func NewAdapter(executor transport.CodeExecutor, reporter transport.StatusReporter, store transport.ExecutionStore, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		executor = transport.Chain(middlewares...)(executor)
	}

	a := &Adapter{
		executor: executor,
		reporter: reporter,
		store:    store,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("GET /{$}", a.handleStatus)
	a.mux.HandleFunc("GET /health", a.handleHealth)
	a.mux.HandleFunc("GET /v1/info", a.handleInfo)
	a.mux.HandleFunc("POST /v1/code/execute/python", a.handleExecute)
	a.mux.HandleFunc("GET /v1/executions/{id}", a.handleGetExecution)
	a.mux.HandleFunc("GET /v1/executions", a.handleListExecutions)
	a.mux.HandleFunc("DELETE /v1/executions/{id}", a.handleDeleteExecution)
	if cfg.MetricsPath != "" {
		a.mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	}

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest.
//
// Order, outermost first: CORS, request ID, HTTPMiddleware, metrics, routes.
// Metrics sits directly on the mux so the matched pattern is visible to it.
func (a *Adapter) Handler() http.Handler {
	var h http.Handler = observability.MetricsMiddleware(a.mux)
	for i := len(a.config.HTTPMiddleware) - 1; i >= 0; i-- {
		h = a.config.HTTPMiddleware[i](h)
	}
	return corsMiddleware(httpRequestIDMiddleware(h))
}

// InFlight returns the number of executions currently registered for
// cancellation.
func (a *Adapter) InFlight() int {
	return a.inflight.Len()
}

// LongestRunning returns the age of the oldest running execution.
func (a *Adapter) LongestRunning() time.Duration {
	return a.inflight.Oldest()
}

// httpRequestIDMiddleware makes sure every request carries an ID. A client
// supplied X-Request-ID is kept, otherwise one is generated. The ID is put
// into the context, where the transport RequestID middleware picks it up,
// and echoed in the response header.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(transport.RequestIDHeader)
		if id == "" {
			id = transport.NewRequestID()
		}
		w.Header().Set(transport.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

// corsMiddleware allows any origin, method and header. Preflight requests
// are answered directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Expose-Headers", transport.RequestIDHeader)

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleStatus handles GET /.
func (a *Adapter) handleStatus(w http.ResponseWriter, r *http.Request) {
	transport.WriteJSON(w, http.StatusOK, a.reporter.Status(r.Context()))
}

// handleHealth handles GET /health.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	transport.WriteJSON(w, http.StatusOK, a.reporter.Health(r.Context()))
}

// handleInfo handles GET /v1/info.
func (a *Adapter) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.reporter.Info(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, info)
}

// handleExecute handles POST /v1/code/execute/python.
//
// The execution ID is assigned here so the run can be registered for
// cancellation before it starts.
func (a *Adapter) handleExecute(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err != nil || mediaType != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	id := api.NewExecutionID()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	a.inflight.Register(ctx, id, cancel)
	defer a.inflight.Remove(id)

	resp, err := a.executor.Execute(transport.ContextWithExecutionID(ctx, id), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, resp)
}

// handleGetExecution handles GET /v1/executions/{id}.
func (a *Adapter) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteAPIError(w, api.NewNotImplementedError("execution retrieval is not available (no store configured)"))
		return
	}

	id := r.PathValue("id")
	if !api.ValidateExecutionID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed execution ID"))
		return
	}

	rec, err := a.store.GetExecution(r.Context(), id)
	if err != nil {
		writeStoreError(w, id, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, rec)
}

// handleDeleteExecution handles DELETE /v1/executions/{id}.
// A running execution is cancelled (202); anything else falls through to
// the store for soft deletion (204).
func (a *Adapter) handleDeleteExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateExecutionID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed execution ID"))
		return
	}

	if a.inflight.Cancel(r.Context(), id) {
		transport.WriteJSON(w, http.StatusAccepted, map[string]string{
			"id":     id,
			"object": "execution",
			"status": "cancelling",
		})
		return
	}

	if a.store == nil {
		transport.WriteAPIError(w, api.NewNotImplementedError("execution deletion is not available (no store configured)"))
		return
	}

	if err := a.store.DeleteExecution(r.Context(), id); err != nil {
		writeStoreError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListExecutions handles GET /v1/executions.
func (a *Adapter) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteAPIError(w, api.NewNotImplementedError("execution listing is not available (no store configured)"))
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	list, err := a.store.ListExecutions(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, list)
}

// parseListOptions extracts pagination parameters from the query string.
func parseListOptions(r *http.Request) (transport.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := transport.ListOptions{
		After:  q.Get("after"),
		Before: q.Get("before"),
		Status: api.ExecutionStatus(q.Get("status")),
		Order:  q.Get("order"),
	}

	if opts.After != "" && opts.Before != "" {
		return opts, api.NewInvalidRequestError("after", "cannot use both 'after' and 'before' cursors")
	}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	if opts.Status != "" && opts.Status != api.ExecutionStatusRunning && !opts.Status.Terminal() {
		return opts, api.NewInvalidRequestError("status", "unknown status "+strconv.Quote(string(opts.Status)))
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

// writeStoreError maps storage.ErrNotFound to a 404 naming the execution.
func writeStoreError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError("execution "+id+" not found").WithCode("execution_not_found"))
		return
	}
	writeError(w, err)
}

// writeError writes err as an APIError, wrapping unknown errors as server errors.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		apiErr = api.NewServerError(err.Error())
	}
	transport.WriteAPIError(w, apiErr)
}
