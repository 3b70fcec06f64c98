package auth

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/narrated/pyexec/pkg/api"
	"github.com/narrated/pyexec/pkg/observability"
	"github.com/narrated/pyexec/pkg/storage"
	"github.com/narrated/pyexec/pkg/transport"
)

// DefaultBypassEndpoints lists paths that skip authentication. Matching is
// exact, so "/" does not open the API.
var DefaultBypassEndpoints = []string{"/", "/health", "/metrics"}

// Middleware creates HTTP middleware from an AuthChain and optional RateLimiter.
// It checks the bypass list, runs authentication, injects tenant context,
// and optionally enforces rate limits.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)

			if result.Decision != Yes || result.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"request_id", transport.RequestIDFromContext(r.Context()),
					"error", result.Err,
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="pyexec"`)
				transport.WriteErrorResponse(w,
					&api.APIError{Type: api.ErrorTypeInvalidRequest, Code: "unauthenticated", Message: "authentication required"},
					http.StatusUnauthorized,
				)
				return
			}

			if result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}

			slog.Debug("authentication succeeded",
				"subject", result.Identity.Subject,
				"tenant", result.Identity.TenantID(),
				"path", r.URL.Path,
			)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), result.Identity); err != nil {
					slog.Warn("rate limit exceeded",
						"subject", result.Identity.Subject,
						"tier", result.Identity.ServiceTier,
					)
					observability.RateLimitRejectedTotal.WithLabelValues(tierLabel(result.Identity)).Inc()
					var limitErr *LimitError
					if errors.As(err, &limitErr) {
						secs := int(math.Ceil(limitErr.RetryAfter.Seconds()))
						w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
					}
					transport.WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded").WithCode("rate_limited"))
					return
				}
			}

			ctx := ContextWithIdentity(r.Context(), result.Identity)
			if tenantID := result.Identity.TenantID(); tenantID != "" {
				ctx = storage.WithTenant(ctx, tenantID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tierLabel(id *Identity) string {
	if id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}
