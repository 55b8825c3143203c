// Package httpapi implements the gateway's HTTP surface (spec §6): the
// OpenAI-compatible completion endpoints plus the gateway's native
// agent/view/experiment/deployment CRUD, served over gin, grounded on
// codeready-toolchain-tarsy/pkg/api's Server/route-table shape.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/anotherai/gateway/runtime/experiment"
	"github.com/anotherai/gateway/runtime/runner"
	"github.com/anotherai/gateway/runtime/security"
	"github.com/anotherai/gateway/runtime/store/analytical"
	"github.com/anotherai/gateway/runtime/store/relational"
	"github.com/anotherai/gateway/runtime/telemetry"
)

// Server wires every HTTP handler to the runtime components it composes. It
// holds no business logic of its own beyond request decoding, auth
// enforcement, and response encoding.
type Server struct {
	engine *gin.Engine

	runner      *runner.Runner
	relational  *relational.Store
	analytical  *analytical.Store
	experiments *experiment.Service
	verifier    security.Verifier
	creditGate  *security.CreditGate
	billing     *security.BillingWebhook
	logger      telemetry.Logger

	// authServerURL is the upstream OAuth authorization server the
	// well-known discovery route redirects to; derived from the identity
	// provider's JWKS URL since the gateway delegates authorization
	// entirely to it rather than running its own OAuth server.
	authServerURL string
}

// Deps collects every dependency NewServer needs. All fields are required
// except Billing, which is nil when STRIPE_API_KEY is not configured.
type Deps struct {
	Runner      *runner.Runner
	Relational  *relational.Store
	Analytical  *analytical.Store
	Experiments *experiment.Service
	Verifier    security.Verifier
	CreditGate  *security.CreditGate
	Billing     *security.BillingWebhook
	Logger      telemetry.Logger

	// AuthServerURL is the upstream OAuth authorization server's origin
	// (e.g. "https://auth.example.com"), used only by the well-known
	// discovery redirect.
	AuthServerURL string
}

// NewServer builds a Server and registers every route.
func NewServer(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:      engine,
		runner:      deps.Runner,
		relational:  deps.Relational,
		analytical:  deps.Analytical,
		experiments: deps.Experiments,
		verifier:    deps.Verifier,
		creditGate:  deps.CreditGate,
		billing:     deps.Billing,
		logger:      deps.Logger,

		authServerURL: deps.AuthServerURL,
	}
	s.routes()
	return s
}

// Handler returns the http.Handler the process's HTTP server should serve.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/probes/health", s.handleHealth)
	s.engine.HEAD("/probes/health", s.handleHealth)
	s.engine.GET("/probes/readiness", s.handleReadiness)
	s.engine.HEAD("/probes/readiness", s.handleReadiness)

	s.engine.GET("/.well-known/oauth-protected-resource", s.handleProtectedResource)
	s.engine.GET("/.well-known/oauth-protected-resource/mcp", s.handleProtectedResource)
	s.engine.GET("/.well-known/oauth-authorization-server", s.handleAuthorizationServerRedirect)
	s.engine.GET("/.well-known/oauth-authorization-server/mcp", s.handleAuthorizationServerRedirect)

	if s.billing != nil {
		s.engine.POST("/webhooks/stripe", s.handleStripeWebhook)
	}

	api := s.engine.Group("/")
	api.Use(s.authMiddleware())

	for _, path := range []string{"/v1/chat/completions", "/v1chat/completions", "/v1//chat/completions"} {
		api.POST(path, s.handleChatCompletions)
	}
	api.POST("/v1/completions", s.handleImportCompletion)
	api.GET("/v1/completions/:id", s.handleGetCompletion)

	api.GET("/v1/agents", s.handleListAgents)
	api.POST("/v1/agents", s.handleCreateAgent)

	api.POST("/v1/views", s.handleSaveView)
	api.PUT("/v1/views/:id", s.handleSaveView)
	api.DELETE("/v1/views/:id", s.handleDeleteView)
	api.GET("/v1/view-folders", s.handleListViewFolders)
	api.POST("/v1/view-folders", s.handleSaveViewFolder)
	api.DELETE("/v1/view-folders/:id", s.handleDeleteViewFolder)

	api.POST("/v1/experiments", s.handleCreateExperiment)
	api.GET("/v1/experiments/:id", s.handleGetExperiment)
	api.POST("/v1/experiments/:id/inputs", s.handleAddExperimentInputs)
	api.POST("/v1/experiments/:id/versions", s.handleAddExperimentVersions)

	api.GET("/v1/deployments", s.handleListDeployments)
	api.GET("/v1/deployments/:name", s.handleGetDeployment)
	api.PUT("/v1/deployments/:name", s.handleUpsertDeployment)
	api.DELETE("/v1/deployments/:name", s.handleArchiveDeployment)
}

// requestContext returns a context bounded by a generous upper timeout, so a
// stalled provider or store call cannot pin a connection forever. Streaming
// handlers use the raw request context instead, since a completion stream
// may legitimately run long.
func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 5*time.Minute)
}
