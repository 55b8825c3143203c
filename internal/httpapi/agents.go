package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/anotherai/gateway/runtime/domain"
)

type agentResponse struct {
	UID       int32  `json:"uid"`
	Slug      string `json:"slug"`
	CreatedAt string `json:"created_at"`
}

func toAgentResponse(a domain.Agent) agentResponse {
	return agentResponse{UID: a.UID, Slug: a.Slug, CreatedAt: a.CreatedAt.Format(timeFormat)}
}

// handleListAgents answers GET /v1/agents.
func (s *Server) handleListAgents(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	agents, err := s.relational.ListAgents(ctx, principal(c).TenantUID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]agentResponse, len(agents))
	for i, a := range agents {
		out[i] = toAgentResponse(a)
	}
	c.JSON(200, gin.H{"items": out})
}

type createAgentRequest struct {
	Slug string `json:"slug" binding:"required"`
}

// handleCreateAgent answers POST /v1/agents. Agent identity is slug-keyed
// and idempotent: creating an already-registered slug returns it unchanged
// rather than conflicting, matching GetOrCreateAgent's upsert semantics.
func (s *Server) handleCreateAgent(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "slug is required")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	agent, err := s.relational.GetOrCreateAgent(ctx, principal(c).TenantUID, req.Slug)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(201, toAgentResponse(agent))
}
