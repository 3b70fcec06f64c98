// Package jwt provides a bearer JWT authenticator. Tokens are verified with
// a shared HMAC secret (HS256) or an RSA public key (RS256), with optional
// issuer and audience checks.
package jwt

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/narrated/pyexec/pkg/auth"
)

// Config holds the JWT authenticator configuration. Exactly one of Secret
// and PublicKey must be set.
type Config struct {
	// Secret verifies HS256 tokens.
	Secret []byte

	// PublicKey verifies RS256 tokens.
	PublicKey *rsa.PublicKey

	// Issuer is the expected iss claim. Empty skips the check.
	Issuer string

	// Audience is the expected aud claim. Empty skips the check.
	Audience string

	// TenantClaim names the claim copied to the tenant_id metadata.
	// Default: "tenant_id".
	TenantClaim string

	// TierClaim names the claim used as the service tier. Default: "tier".
	TierClaim string

	// ScopesClaim holds a space-separated string or a string array.
	// Default: "scope".
	ScopesClaim string
}

func (c *Config) applyDefaults() {
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	config  Config
	key     any
	methods []string
}

// New creates a JWT authenticator.
func New(cfg Config) (*Authenticator, error) {
	cfg.applyDefaults()
	a := &Authenticator{config: cfg}
	switch {
	case len(cfg.Secret) > 0 && cfg.PublicKey != nil:
		return nil, errors.New("jwt: configure either a secret or a public key, not both")
	case len(cfg.Secret) > 0:
		a.key = cfg.Secret
		a.methods = []string{jwtlib.SigningMethodHS256.Alg()}
	case cfg.PublicKey != nil:
		a.key = cfg.PublicKey
		a.methods = []string{jwtlib.SigningMethodRS256.Alg()}
	default:
		return nil, errors.New("jwt: a secret or a public key is required")
	}
	return a, nil
}

// LoadPublicKey reads a PEM encoded RSA public key.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	key, err := jwtlib.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parsing public key %s: %w", path, err)
	}
	return key, nil
}

// Authenticate validates the bearer token.
//
// Decision outcomes:
//   - Abstain: no Authorization header or not a Bearer scheme
//   - No: bearer token present but invalid (expired, wrong issuer, bad signature, etc.)
//   - Yes: valid JWT with populated Identity
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	tokenStr, ok := auth.BearerToken(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if tokenStr == "" {
		return auth.AuthResult{Decision: auth.No, Err: errors.New("empty bearer token")}
	}

	claims := jwtlib.MapClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(*jwtlib.Token) (any, error) {
		return a.key, nil
	}, a.parserOptions()...)
	if err != nil || !token.Valid {
		slog.Debug("JWT validation failed", "error", err)
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		return auth.AuthResult{Decision: auth.No, Err: errors.New(`JWT missing "sub" claim`)}
	}

	identity := &auth.Identity{
		Subject:     subject,
		ServiceTier: claimString(claims, a.config.TierClaim),
		Scopes:      extractScopes(claims, a.config.ScopesClaim),
		Metadata:    make(map[string]string),
	}
	if tenant := claimString(claims, a.config.TenantClaim); tenant != "" {
		identity.Metadata["tenant_id"] = tenant
	}

	return auth.AuthResult{Decision: auth.Yes, Identity: identity}
}

func (a *Authenticator) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods(a.methods),
		jwtlib.WithExpirationRequired(),
	}
	if a.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.config.Issuer))
	}
	if a.config.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.config.Audience))
	}
	return opts
}

// claimString returns the claim as a string, or "" if missing or not a string.
func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// extractScopes accepts "read write" or ["read", "write"].
func extractScopes(claims jwtlib.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		if parts := strings.Fields(v); len(parts) > 0 {
			return parts
		}
	case []any:
		var scopes []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}
