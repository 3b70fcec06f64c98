package auth

import (
	"context"
	"net/http"
	"testing"
)

// mockAuthn is a test authenticator with configurable behavior.
type mockAuthn struct {
	result AuthResult
}

func (m *mockAuthn) Authenticate(_ context.Context, _ *http.Request) AuthResult {
	return m.result
}

func vote(d AuthDecision, subject string) Authenticator {
	r := AuthResult{Decision: d}
	switch d {
	case Yes:
		r.Identity = &Identity{Subject: subject}
	case No:
		r.Err = ErrUnauthenticated
	}
	return &mockAuthn{result: r}
}

func TestAuthChain(t *testing.T) {
	tests := []struct {
		name        string
		chain       []Authenticator
		fallback    AuthDecision
		want        AuthDecision
		wantSubject string
	}{
		{"first yes wins", []Authenticator{vote(Yes, "render-worker"), vote(No, "")}, No, Yes, "render-worker"},
		{"first no wins", []Authenticator{vote(No, ""), vote(Yes, "batch-job")}, No, No, ""},
		{"abstain then yes", []Authenticator{vote(Abstain, ""), vote(Yes, "jwt-user")}, No, Yes, "jwt-user"},
		{"all abstain, reject", []Authenticator{vote(Abstain, ""), vote(Abstain, "")}, No, No, ""},
		{"all abstain, accept", []Authenticator{vote(Abstain, "")}, Yes, Yes, "anonymous"},
		{"empty chain", nil, No, No, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &AuthChain{Authenticators: tt.chain, DefaultDecision: tt.fallback}
			r, _ := http.NewRequest("POST", "/v1/code/execute/python", nil)

			got := chain.Authenticate(context.Background(), r)
			if got.Decision != tt.want {
				t.Fatalf("Decision = %v, want %v", got.Decision, tt.want)
			}
			if tt.want == Yes && got.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", got.Identity.Subject, tt.wantSubject)
			}
			if tt.want == No && got.Err == nil {
				t.Error("rejection carries no error")
			}
		})
	}
}

func TestIdentity_TenantID(t *testing.T) {
	id := &Identity{Subject: "alice", Metadata: map[string]string{"tenant_id": "org-1"}}
	if id.TenantID() != "org-1" {
		t.Errorf("TenantID = %q, want %q", id.TenantID(), "org-1")
	}

	// No metadata.
	id2 := &Identity{Subject: "bob"}
	if id2.TenantID() != "" {
		t.Errorf("TenantID = %q, want empty", id2.TenantID())
	}

	// Nil identity.
	var id3 *Identity
	if id3.TenantID() != "" {
		t.Errorf("TenantID on nil = %q, want empty", id3.TenantID())
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()

	if IdentityFromContext(ctx) != nil {
		t.Error("expected nil identity from empty context")
	}
	if got := SubjectFromContext(ctx); got != "" {
		t.Errorf("SubjectFromContext(empty) = %q", got)
	}

	ctx = ContextWithIdentity(ctx, &Identity{Subject: "alice"})
	got := IdentityFromContext(ctx)
	if got == nil || got.Subject != "alice" {
		t.Errorf("got %v, want alice", got)
	}
	if SubjectFromContext(ctx) != "alice" {
		t.Errorf("SubjectFromContext = %q, want alice", SubjectFromContext(ctx))
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"", "", false},
		{"Bearer sk-123", "sk-123", true},
		{"bearer sk-123", "sk-123", true},
		{"Bearer  padded ", "padded", true},
		{"Bearer ", "", true},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			r, _ := http.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			token, ok := BearerToken(r)
			if token != tt.token || ok != tt.ok {
				t.Errorf("BearerToken = (%q, %v), want (%q, %v)", token, ok, tt.token, tt.ok)
			}
		})
	}
}

func TestIdentity_HasScope(t *testing.T) {
	id := &Identity{Subject: "alice", Scopes: []string{"execute", "upload"}}
	if !id.HasScope("upload") {
		t.Error("HasScope(upload) = false, want true")
	}
	if id.HasScope("admin") {
		t.Error("HasScope(admin) = true, want false")
	}
	var none *Identity
	if none.HasScope("execute") {
		t.Error("nil identity has a scope")
	}
}

func TestAuthDecisionString(t *testing.T) {
	for d, want := range map[AuthDecision]string{Yes: "yes", No: "no", Abstain: "abstain", AuthDecision(9): "unknown"} {
		if got := d.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(d), got, want)
		}
	}
}
