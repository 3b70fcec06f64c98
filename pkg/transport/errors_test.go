package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/narrated/pyexec/pkg/api"
)

func TestWriteAPIError(t *testing.T) {
	tests := []struct {
		name           string
		apiErr         *api.APIError
		wantStatus     int
		wantRetryAfter string
	}{
		{"invalid request", api.NewInvalidRequestError("timeout", "timeout must not be negative"), http.StatusBadRequest, ""},
		{"not found", api.NewNotFoundError("execution not found"), http.StatusNotFound, ""},
		{"at capacity", api.NewTooManyRequestsError("at capacity"), http.StatusTooManyRequests, RetryAfterSeconds},
		{"no store", api.NewNotImplementedError("no store"), http.StatusNotImplemented, ""},
		{"server error", api.NewServerError("internal failure"), http.StatusInternalServerError, ""},
		{"unknown type", &api.APIError{Type: "mystery", Message: "?"}, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteAPIError(rec, tt.apiErr)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Retry-After"); got != tt.wantRetryAfter {
				t.Errorf("Retry-After = %q, want %q", got, tt.wantRetryAfter)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var resp api.ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error.Type != tt.apiErr.Type || resp.Error.Param != tt.apiErr.Param {
				t.Errorf("envelope = %+v, want %+v", resp.Error, tt.apiErr)
			}
		})
	}
}

func TestWriteErrorResponseExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, &api.APIError{Type: api.ErrorTypeInvalidRequest, Message: "authentication required"}, http.StatusUnauthorized)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusAccepted, map[string]string{"status": "cancelling"})

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Body.String() != "{\"status\":\"cancelling\"}\n" {
		t.Errorf("body = %q", rec.Body.String())
	}
}
