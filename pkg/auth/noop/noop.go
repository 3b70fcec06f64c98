// Package noop provides an authenticator that admits every request as the
// anonymous identity. It backs auth type "none".
package noop

import (
	"context"
	"net/http"

	"github.com/narrated/pyexec/pkg/auth"
)

// Authenticator always returns Yes.
type Authenticator struct{}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.AuthResult{Decision: auth.Yes, Identity: auth.Anonymous()}
}
