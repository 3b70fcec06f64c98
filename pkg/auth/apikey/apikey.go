// Package apikey validates bearer tokens against a static key list. Keys
// are kept only as SHA-256 hashes and compared in constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"maps"
	"net/http"

	"github.com/narrated/pyexec/pkg/auth"
)

// RawKeyEntry is the configuration format for API keys.
type RawKeyEntry struct {
	Key      string
	Identity auth.Identity
}

type keyEntry struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates bearer tokens against a static key store.
type Authenticator struct {
	keys []keyEntry
}

// New creates an API key authenticator. Keys are hashed immediately and
// entries with an empty key are ignored.
func New(entries []RawKeyEntry) *Authenticator {
	a := &Authenticator{}
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		a.keys = append(a.keys, keyEntry{
			hash:     sha256.Sum256([]byte(e.Key)),
			identity: e.Identity,
		})
	}
	return a
}

// Len returns the number of usable keys.
func (a *Authenticator) Len() int { return len(a.keys) }

// Authenticate returns Yes for a known key, No for an unknown or empty
// bearer token and Abstain when there is no bearer token at all.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, ok := auth.BearerToken(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	tokenHash := sha256.Sum256([]byte(token))

	// Every entry is compared so timing does not reveal the match position.
	var match *keyEntry
	for i := range a.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], a.keys[i].hash[:]) == 1 && match == nil {
			match = &a.keys[i]
		}
	}
	if match == nil {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	id := match.identity
	id.Metadata = maps.Clone(match.identity.Metadata)
	id.Scopes = append([]string(nil), match.identity.Scopes...)
	return auth.AuthResult{Decision: auth.Yes, Identity: &id}
}
