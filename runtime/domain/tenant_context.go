package domain

import "context"

type tenantCtxKey struct{}

// ContextWithTenant returns a context scoped to tenantUID. Both the
// relational and analytical stores read this key to set their connection's
// app.tenant_uid session variable, so a single call at the security layer
// (C10, once a bearer token resolves to a tenant) scopes every downstream
// store call transparently.
func ContextWithTenant(ctx context.Context, tenantUID int64) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantUID)
}

// TenantFromContext returns the tenant uid stored by ContextWithTenant, if
// any.
func TenantFromContext(ctx context.Context) (int64, bool) {
	uid, ok := ctx.Value(tenantCtxKey{}).(int64)
	return uid, ok
}
