// Package security implements bearer-token extraction, API-key and JWT/JWKS
// verification, tenant resolution, and the per-tenant credit gate (C10).
package security

import (
	"context"
	"strings"

	"github.com/anotherai/gateway/runtime/apierror"
)

// Principal is the authenticated identity resolved from a bearer token:
// which tenant it belongs to, and (for JWTs) the subject claim that proved
// it.
type Principal struct {
	TenantUID int64
	Subject   string
}

// Verifier resolves a raw Authorization header value to a Principal.
type Verifier interface {
	Verify(ctx context.Context, authorizationHeader string) (Principal, error)
}

// apiKeyPrefix identifies an opaque gateway-issued secret, as opposed to a
// JWT (which verifiers instead try to parse as three dot-separated segments).
const apiKeyPrefix = "aai-"

// bearerToken strips a "Bearer " scheme prefix from header, tolerating a
// bare token with no scheme.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apierror.New(apierror.KindInvalidToken, "missing authorization header")
	}
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(rest), nil
	}
	return header, nil
}

// CompositeVerifier dispatches to apiKeys for "aai-"-prefixed secrets and to
// jwts for everything else.
type CompositeVerifier struct {
	apiKeys Verifier
	jwts    Verifier
}

// NewCompositeVerifier builds the dispatcher used by the HTTP layer's auth
// middleware.
func NewCompositeVerifier(apiKeys, jwts Verifier) *CompositeVerifier {
	return &CompositeVerifier{apiKeys: apiKeys, jwts: jwts}
}

func (c *CompositeVerifier) Verify(ctx context.Context, authorizationHeader string) (Principal, error) {
	token, err := bearerToken(authorizationHeader)
	if err != nil {
		return Principal{}, err
	}
	if strings.HasPrefix(token, apiKeyPrefix) {
		return c.apiKeys.Verify(ctx, authorizationHeader)
	}
	return c.jwts.Verify(ctx, authorizationHeader)
}
