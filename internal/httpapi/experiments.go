package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/anotherai/gateway/runtime/domain"
	"github.com/anotherai/gateway/runtime/experiment"
)

type createExperimentRequest struct {
	ID      string `json:"id" binding:"required"`
	AgentID string `json:"agent_id" binding:"required"`
	Name    string `json:"name"`
}

// handleCreateExperiment answers POST /v1/experiments.
func (s *Server) handleCreateExperiment(c *gin.Context) {
	var req createExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "id and agent_id are required")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	exp, err := s.experiments.CreateExperiment(ctx, principal(c).TenantUID, req.ID, req.AgentID, req.Name)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(201, exp)
}

// handleGetExperiment answers GET /v1/experiments/{id}.
func (s *Server) handleGetExperiment(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	exp, err := s.experiments.GetExperiment(ctx, principal(c).TenantUID, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, exp)
}

type aliasedInputDTO struct {
	Alias     string           `json:"alias" binding:"required"`
	Messages  []map[string]any `json:"messages"`
	Variables map[string]any   `json:"variables"`
}

type addExperimentInputsRequest struct {
	Inputs []aliasedInputDTO `json:"inputs" binding:"required"`
}

// handleAddExperimentInputs answers POST /v1/experiments/{id}/inputs.
func (s *Server) handleAddExperimentInputs(c *gin.Context) {
	var req addExperimentInputsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid inputs body")
		return
	}

	aliased := make([]experiment.AliasedInput, len(req.Inputs))
	for i, in := range req.Inputs {
		aliased[i] = experiment.AliasedInput{
			Alias: in.Alias,
			Input: domain.Input{Messages: in.Messages, Variables: in.Variables},
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	ids, err := s.experiments.AddInputs(ctx, principal(c).TenantUID, c.Param("id"), aliased)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"input_ids": ids})
}

type aliasedVersionDTO struct {
	Alias string `json:"alias" binding:"required"`
	Model string `json:"model" binding:"required"`
}

type addExperimentVersionsRequest struct {
	Versions []aliasedVersionDTO `json:"versions" binding:"required"`
}

// handleAddExperimentVersions answers POST /v1/experiments/{id}/versions.
func (s *Server) handleAddExperimentVersions(c *gin.Context) {
	var req addExperimentVersionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid versions body")
		return
	}

	aliased := make([]experiment.AliasedVersion, len(req.Versions))
	for i, v := range req.Versions {
		aliased[i] = experiment.AliasedVersion{
			Alias:   v.Alias,
			Version: domain.Version{Model: v.Model},
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	ids, err := s.experiments.AddVersions(ctx, principal(c).TenantUID, c.Param("id"), aliased)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"version_ids": ids})
}
