package security

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
)

// NewStaticJWKVerifier builds a verifier from a single JWK document (the JWK
// environment variable, spec §6), for deployments that pin one signing key
// rather than fetching a JWKS endpoint.
func NewStaticJWKVerifier(rawJWK []byte, tenants tenantResolver) (*JWTVerifier, error) {
	set, err := keyfunc.NewJWKSetJSON([]byte(fmt.Sprintf(`{"keys":[%s]}`, rawJWK)))
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "parse static jwk", err)
	}
	kf, err := keyfunc.New(keyfunc.Options{Storage: set})
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "build static jwk keyfunc", err)
	}
	return NewJWTVerifier(kf, tenants), nil
}

// tenantResolver is the subset of runtime/store/relational.Store the JWT
// verifier needs to turn an organization claim into a tenant.
type tenantResolver interface {
	GetOrCreateTenant(ctx context.Context, slug string, newUID int64) (domain.Tenant, error)
}

// JWTVerifier authenticates bearer JWTs against a JWKS endpoint or a single
// static JWK, per spec §4.7. The subject and organization claims together
// resolve to a tenant via tenants, created lazily on first authenticated use
// (spec §3's Lifecycle invariant).
type JWTVerifier struct {
	keyfunc jwt.Keyfunc
	tenants tenantResolver
}

// NewJWTVerifier builds a verifier backed by a keyfunc.Keyfunc already
// configured against either JWKS_URL (refreshing) or a single static JWK
// (spec §6's JWKS_URL / JWK environment variables).
func NewJWTVerifier(kf keyfunc.Keyfunc, tenants tenantResolver) *JWTVerifier {
	return &JWTVerifier{keyfunc: kf.Keyfunc, tenants: tenants}
}

// NewJWKSVerifier is a convenience constructor fetching and auto-refreshing
// keys from a JWKS endpoint.
func NewJWKSVerifier(ctx context.Context, jwksURL string, tenants tenantResolver) (*JWTVerifier, error) {
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, apierror.Wrap(apierror.KindInternal, "fetch jwks", err)
	}
	return NewJWTVerifier(kf, tenants), nil
}

func (v *JWTVerifier) Verify(ctx context.Context, authorizationHeader string) (Principal, error) {
	token, err := bearerToken(authorizationHeader)
	if err != nil {
		return Principal{}, err
	}

	parsed, err := jwt.Parse(token, v.keyfunc)
	if err != nil || !parsed.Valid {
		return Principal{}, apierror.New(apierror.KindInvalidToken, "invalid jwt")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, apierror.New(apierror.KindInvalidToken, "unrecognized jwt claims")
	}
	subject, _ := claims["sub"].(string)
	org, _ := claims["org_id"].(string)
	if subject == "" || org == "" {
		return Principal{}, apierror.New(apierror.KindInvalidToken, "jwt missing sub or org_id claim")
	}

	tenant, err := v.tenants.GetOrCreateTenant(ctx, org, tenantUIDFromSlug(org))
	if err != nil {
		return Principal{}, err
	}
	return Principal{TenantUID: tenant.UID, Subject: subject}, nil
}

// NoopVerifier accepts every token and resolves it to a single fixed
// tenant. Used only in local development (spec §4.7), never wired when any
// auth environment variable is configured.
type NoopVerifier struct {
	TenantUID int64
}

func (v NoopVerifier) Verify(context.Context, string) (Principal, error) {
	return Principal{TenantUID: v.TenantUID, Subject: "local-dev"}, nil
}

// tenantUIDFromSlug derives a stable positive int64 tenant uid from an
// organization slug, so a tenant created lazily from a JWT's org_id claim
// always resolves to the same uid on every subsequent request.
func tenantUIDFromSlug(slug string) int64 {
	hash := domain.HashString(fmt.Sprintf("org:%s", slug))
	var buf [8]byte
	for i := 0; i < 8 && i*2 < len(hash); i++ {
		buf[i] = hexByte(hash[i*2 : i*2+2])
	}
	uid := int64(binary.BigEndian.Uint64(buf[:]))
	if uid < 0 {
		uid = -uid
	}
	return uid
}

func hexByte(s string) byte {
	var b byte
	for _, c := range []byte(s) {
		b <<= 4
		switch {
		case c >= '0' && c <= '9':
			b |= c - '0'
		case c >= 'a' && c <= 'f':
			b |= c - 'a' + 10
		}
	}
	return b
}
