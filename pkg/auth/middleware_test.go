package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/narrated/pyexec/pkg/api"
	"github.com/narrated/pyexec/pkg/storage"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_BypassEndpoints(t *testing.T) {
	chain := &AuthChain{DefaultDecision: No}
	handler := Middleware(chain, nil, DefaultBypassEndpoints)(okHandler())

	tests := []struct {
		path string
		want int
	}{
		{"/", http.StatusOK},
		{"/health", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/v1/info", http.StatusUnauthorized},
		{"/v1/code/execute/python", http.StatusUnauthorized},
		{"/health/", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := serve(handler, "GET", tt.path); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMiddleware_NoAuth_Rejects(t *testing.T) {
	chain := &AuthChain{DefaultDecision: No}
	handler := Middleware(chain, nil, DefaultBypassEndpoints)(okHandler())

	rec := serve(handler, "POST", "/v1/code/execute/python")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no auth: status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got == "" {
		t.Error("missing WWW-Authenticate header")
	}
	var body api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == nil || body.Error.Message != "authentication required" {
		t.Errorf("error body = %+v", body.Error)
	}
}

func TestMiddleware_EmptySubject(t *testing.T) {
	chain := &AuthChain{
		Authenticators: []Authenticator{
			&mockAuthn{result: AuthResult{Decision: Yes, Identity: &Identity{}}},
		},
	}
	handler := Middleware(chain, nil, nil)(okHandler())

	if rec := serve(handler, "POST", "/v1/code/execute/python"); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestMiddleware_ValidAuth_Passes(t *testing.T) {
	chain := &AuthChain{
		Authenticators: []Authenticator{
			&mockAuthn{result: AuthResult{
				Decision: Yes,
				Identity: &Identity{Subject: "alice", Metadata: map[string]string{"tenant_id": "org-1"}},
			}},
		},
		DefaultDecision: No,
	}

	var gotTenant string
	handler := Middleware(chain, nil, DefaultBypassEndpoints)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = storage.TenantFromContext(r.Context())
		id := IdentityFromContext(r.Context())
		if id == nil || id.Subject != "alice" {
			t.Error("expected identity 'alice' in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := serve(handler, "POST", "/v1/code/execute/python")

	if rec.Code != http.StatusOK {
		t.Errorf("valid auth: status = %d, want 200", rec.Code)
	}
	if gotTenant != "org-1" {
		t.Errorf("tenant = %q, want %q", gotTenant, "org-1")
	}
}

func TestMiddleware_RateLimit_Exceeded(t *testing.T) {
	chain := &AuthChain{
		Authenticators: []Authenticator{
			&mockAuthn{result: AuthResult{
				Decision: Yes,
				Identity: &Identity{Subject: "alice", ServiceTier: "limited"},
			}},
		},
		DefaultDecision: No,
	}

	limiter := NewInProcessLimiter(map[string]TierConfig{
		"limited": {RequestsPerMinute: 2},
	}, 100)
	handler := Middleware(chain, limiter, DefaultBypassEndpoints)(okHandler())

	for i := 0; i < 2; i++ {
		if rec := serve(handler, "POST", "/v1/code/execute/python"); rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := serve(handler, "POST", "/v1/code/execute/python")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("rate limited request: status = %d, want 429", rec.Code)
	}
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || secs < 1 || secs > 60 {
		t.Errorf("Retry-After = %q, want 1..60 seconds", rec.Header().Get("Retry-After"))
	}
}

func TestMiddleware_NoLimiter_AllAllowed(t *testing.T) {
	chain := &AuthChain{
		Authenticators: []Authenticator{
			&mockAuthn{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: "alice"}}},
		},
	}
	handler := Middleware(chain, nil, DefaultBypassEndpoints)(okHandler())

	for i := 0; i < 100; i++ {
		if rec := serve(handler, "POST", "/v1/code/execute/python"); rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i+1, rec.Code)
			break
		}
	}
}

// Reuse mockAuthn from auth_test.go (same package).
var _ Authenticator = (*mockAuthn)(nil)
