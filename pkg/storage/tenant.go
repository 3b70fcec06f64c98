package storage

import "context"

type tenantKey struct{}

// WithTenant scopes ctx to tenantID. Records saved under a tenant are only
// visible to callers carrying the same tenant.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantFromContext returns the caller's tenant, or "" in single-tenant mode.
func TenantFromContext(ctx context.Context) string {
	tenantID, _ := ctx.Value(tenantKey{}).(string)
	return tenantID
}

// Visible reports whether the caller may see data owned by owner. Callers
// without a tenant see everything.
func Visible(ctx context.Context, owner string) bool {
	tenantID := TenantFromContext(ctx)
	return tenantID == "" || tenantID == owner
}
