package gateway

import "context"

// tenantCtxKey stashes the tenant identifier of the caller making a
// completion request, so middleware (rate limiting, logging, tracing) can
// scope their behavior per tenant without threading an extra parameter
// through every handler signature.
type tenantCtxKey struct{}

// providerCtxKey stashes the name of the provider a request is being routed
// to (e.g. "openai", "anthropic"), set by the Completion Runner once it has
// picked an adapter and before the request enters the middleware chain.
type providerCtxKey struct{}

// WithTenant returns a child context carrying tenantUID for downstream
// middleware to read via TenantFromContext.
func WithTenant(ctx context.Context, tenantUID int64) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantUID)
}

// TenantFromContext extracts the tenant UID attached by WithTenant. Returns
// 0, false when ctx carries no tenant.
func TenantFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(tenantCtxKey{}).(int64)
	return v, ok
}

// WithProvider returns a child context carrying the name of the provider
// selected for this request.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, providerCtxKey{}, provider)
}

// ProviderFromContext extracts the provider name attached by WithProvider.
// Returns "", false when ctx carries no provider.
func ProviderFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(providerCtxKey{}).(string)
	return v, ok
}
