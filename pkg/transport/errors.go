package transport

import (
	"encoding/json"
	"net/http"

	"github.com/narrated/pyexec/pkg/api"
)

var statusByType = map[api.ErrorType]int{
	api.ErrorTypeInvalidRequest:  http.StatusBadRequest,
	api.ErrorTypeNotFound:        http.StatusNotFound,
	api.ErrorTypeTooManyRequests: http.StatusTooManyRequests,
	api.ErrorTypeNotImplemented:  http.StatusNotImplemented,
	api.ErrorTypeServerError:     http.StatusInternalServerError,
}

// RetryAfterSeconds is sent with every 429 reply.
const RetryAfterSeconds = "5"

// HTTPStatusFromError returns the status code for an APIError type.
// Unknown types map to 500.
func HTTPStatusFromError(err *api.APIError) int {
	if status, ok := statusByType[err.Type]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse writes apiErr inside the error envelope.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	if statusCode == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", RetryAfterSeconds)
	}
	WriteJSON(w, statusCode, api.ErrorResponse{Error: apiErr})
}

// WriteAPIError is WriteErrorResponse with the status derived from the type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}

func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
