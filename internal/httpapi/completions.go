package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anotherai/gateway/runtime/domain"
)

// importCompletionRequest mirrors the fields of a domain.AgentCompletion an
// external caller may supply when importing an already-computed completion
// record for shadow testing (spec §6). AgentID and VersionModel are
// required; Status defaults to "success".
type importCompletionRequest struct {
	AgentID          string           `json:"agent_id" binding:"required"`
	InputMessages    []map[string]any `json:"input_messages"`
	InputVariables   map[string]any   `json:"input_variables"`
	RenderedMessages []map[string]any `json:"rendered_messages"`
	OutputMessages   []map[string]any `json:"output_messages"`
	OutputError      string           `json:"output_error"`
	VersionModel     string           `json:"version_model" binding:"required"`
	Status           string           `json:"status"`
	DurationSeconds  float64          `json:"duration_seconds"`
	CostUSD          float64          `json:"cost_usd"`
	Metadata         map[string]any   `json:"metadata"`
}

// handleImportCompletion answers POST /v1/completions: it registers the
// input and version content (the same content-addressed upsert the runner
// itself uses) and appends the resulting completion to the analytical
// store, without ever invoking a provider.
func (s *Server) handleImportCompletion(c *gin.Context) {
	var req importCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid completion import body")
		return
	}

	status := domain.CompletionSuccess
	if req.Status != "" {
		status = domain.CompletionStatus(req.Status)
	}

	id, err := domain.NewCompletionID()
	if err != nil {
		s.writeError(c, err)
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	tenantUID := principal(c).TenantUID
	input := domain.Input{AgentID: req.AgentID, Messages: req.InputMessages, Variables: req.InputVariables}
	inputID, _, err := s.relational.UpsertInput(ctx, tenantUID, input)
	if err != nil {
		s.writeError(c, err)
		return
	}
	version := domain.Version{Model: req.VersionModel}
	versionID, _, err := s.relational.UpsertVersion(ctx, tenantUID, version)
	if err != nil {
		s.writeError(c, err)
		return
	}
	input.ID = inputID
	version.ID = versionID

	var outputErr *string
	if req.OutputError != "" {
		outputErr = &req.OutputError
	}
	completion := &domain.AgentCompletion{
		ID:               id,
		TenantUID:        tenantUID,
		AgentID:          req.AgentID,
		Input:            input,
		Output:           domain.Output{Messages: req.OutputMessages, Error: outputErr},
		RenderedMessages: req.RenderedMessages,
		Version:          version,
		Status:           status,
		DurationSeconds:  req.DurationSeconds,
		CostUSD:          req.CostUSD,
		Source:           domain.SourceAPI,
		Metadata:         req.Metadata,
	}
	if err := s.analytical.InsertCompletion(ctx, completion); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(201, gin.H{"id": completion.ID.String()})
}

// handleGetCompletion answers GET /v1/completions/{id}.
func (s *Server) handleGetCompletion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid completion id")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	completion, err := s.analytical.GetCompletion(ctx, principal(c).TenantUID, id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, completion)
}
