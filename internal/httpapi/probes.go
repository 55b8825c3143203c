package httpapi

import "github.com/gin-gonic/gin"

// handleHealth answers GET/HEAD /probes/health: a liveness probe that never
// touches the database, so an overloaded store doesn't get the process
// restarted on top of it.
func (s *Server) handleHealth(c *gin.Context) {
	c.Status(200)
}

// handleReadiness answers GET/HEAD /probes/readiness: a readiness probe that
// pings the relational store, since a pool that can't acquire a connection
// means the process shouldn't receive traffic yet.
func (s *Server) handleReadiness(c *gin.Context) {
	if err := s.relational.Ping(c.Request.Context()); err != nil {
		c.Status(503)
		return
	}
	c.Status(200)
}

// protectedResourceDescriptor is the minimal RFC 9728 OAuth protected
// resource metadata document clients use to discover which authorization
// server protects this API.
type protectedResourceDescriptor struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
}

func (s *Server) handleProtectedResource(c *gin.Context) {
	resource := "https://" + c.Request.Host
	c.JSON(200, protectedResourceDescriptor{
		Resource:             resource,
		AuthorizationServers: []string{s.authServerURL},
	})
}

// handleAuthorizationServerRedirect answers the RFC 8414 authorization
// server metadata route with a 307 to the actual identity provider, since
// the gateway delegates token issuance entirely to it.
func (s *Server) handleAuthorizationServerRedirect(c *gin.Context) {
	target := s.authServerURL + "/.well-known/oauth-authorization-server"
	c.Redirect(307, target)
}
