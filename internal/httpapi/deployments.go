package httpapi

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/anotherai/gateway/runtime/domain"
)

// handleListDeployments answers GET /v1/deployments.
func (s *Server) handleListDeployments(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	deployments, next, err := s.experiments.ListDeployments(ctx, principal(c).TenantUID, c.Query("cursor"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	page := domain.Page[domain.Deployment]{Items: deployments}
	if next != "" {
		page.NextPageToken = &next
	}
	c.JSON(200, page)
}

// handleGetDeployment answers GET /v1/deployments/{name}.
func (s *Server) handleGetDeployment(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	d, err := s.experiments.GetDeployment(ctx, principal(c).TenantUID, domain.DeploymentName(c.Param("name")))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, d)
}

type upsertDeploymentRequest struct {
	VersionID string         `json:"version_id" binding:"required"`
	Metadata  map[string]any `json:"metadata"`
}

// handleUpsertDeployment answers PUT /v1/deployments/{name}: pin (or
// repin) the named deployment to a version.
func (s *Server) handleUpsertDeployment(c *gin.Context) {
	var req upsertDeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "version_id is required")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	tenantUID := principal(c).TenantUID
	d := domain.Deployment{
		TenantUID: tenantUID,
		Name:      domain.DeploymentName(c.Param("name")),
		VersionID: req.VersionID,
		Metadata:  req.Metadata,
	}
	saved, err := s.experiments.UpsertDeployment(ctx, tenantUID, d)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, saved)
}

// handleArchiveDeployment answers DELETE /v1/deployments/{name}.
func (s *Server) handleArchiveDeployment(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	name := domain.DeploymentName(c.Param("name"))
	if err := s.experiments.ArchiveDeployment(ctx, principal(c).TenantUID, name); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(204)
}
