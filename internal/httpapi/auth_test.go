package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/security"
	"github.com/anotherai/gateway/runtime/telemetry"
)

type fakeVerifier struct {
	principal security.Principal
	err       error
}

func (f fakeVerifier) Verify(context.Context, string) (security.Principal, error) {
	return f.principal, f.err
}

func TestAuthMiddleware_SetsPrincipalAndTenantContext(t *testing.T) {
	s := &Server{verifier: fakeVerifier{principal: security.Principal{TenantUID: 42, Subject: "user-1"}}, logger: telemetry.NewNoopLogger()}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(s.authMiddleware())

	var seenTenant int64
	var seenPrincipal security.Principal
	engine.GET("/probe", func(c *gin.Context) {
		seenTenant, _ = domain.TenantFromContext(c.Request.Context())
		seenPrincipal = principal(c)
		c.Status(200)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/probe", nil)
	req.Header.Set("Authorization", "Bearer aai-whatever")
	engine.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, int64(42), seenTenant)
	assert.Equal(t, "user-1", seenPrincipal.Subject)
}

func TestAuthMiddleware_RejectsInvalidToken(t *testing.T) {
	s := &Server{verifier: fakeVerifier{err: apierror.New(apierror.KindInvalidToken, "bad token")}, logger: telemetry.NewNoopLogger()}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(s.authMiddleware())
	called := false
	engine.GET("/probe", func(c *gin.Context) {
		called = true
		c.Status(200)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/probe", nil)
	engine.ServeHTTP(rec, req)

	assert.Equal(t, 401, rec.Code)
	assert.False(t, called, "handler must not run once auth fails")
}
