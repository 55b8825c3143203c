package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/security"
)

// principalContextKey is the gin context key the auth middleware stores the
// resolved security.Principal under.
const principalContextKey = "principal"

// authMiddleware verifies the Authorization header via the configured
// security.Verifier and, on success, scopes the request context to the
// resolved tenant (runtime/domain.ContextWithTenant) so every downstream
// store call is automatically tenant-isolated.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := s.verifier.Verify(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			s.writeError(c, err)
			c.Abort()
			return
		}
		c.Set(principalContextKey, principal)
		ctx := domain.ContextWithTenant(c.Request.Context(), principal.TenantUID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// principal retrieves the Principal the auth middleware resolved for this
// request. Only called from handlers registered behind authMiddleware.
func principal(c *gin.Context) security.Principal {
	v, _ := c.Get(principalContextKey)
	p, _ := v.(security.Principal)
	return p
}
