package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/anotherai/gateway/runtime/domain"
)

type saveViewRequest struct {
	ID       string        `json:"id"`
	Name     string        `json:"name" binding:"required"`
	Query    string        `json:"query" binding:"required"`
	Graph    *viewGraphDTO `json:"graph"`
	FolderID string        `json:"folder_id"`
	Position int           `json:"position"`
}

type viewGraphDTO struct {
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
}

// handleSaveView answers POST /v1/views and PUT /v1/views/{id}: both create
// and rename/update go through the same upsert, matching SaveView's
// content-agnostic ON CONFLICT semantics.
func (s *Server) handleSaveView(c *gin.Context) {
	var req saveViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid view body")
		return
	}
	id := c.Param("id")
	if id == "" {
		id = req.ID
	}
	if id == "" {
		badRequest(c, "view id is required")
		return
	}

	view := domain.View{
		ID:       id,
		Name:     req.Name,
		Query:    req.Query,
		FolderID: req.FolderID,
		Position: req.Position,
	}
	if req.Graph != nil {
		view.Graph = &domain.ViewGraph{Type: req.Graph.Type, Attributes: req.Graph.Attributes}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := s.relational.SaveView(ctx, principal(c).TenantUID, view); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"id": id})
}

// handleDeleteView answers DELETE /v1/views/{id}.
func (s *Server) handleDeleteView(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := s.relational.DeleteView(ctx, principal(c).TenantUID, c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(204)
}

// handleListViewFolders answers GET /v1/view-folders, returning every folder
// (including the implicit default one) with its views nested inside.
func (s *Server) handleListViewFolders(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	folders, err := s.relational.ListViewFolders(ctx, principal(c).TenantUID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"items": folders})
}

type saveViewFolderRequest struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name" binding:"required"`
}

// handleSaveViewFolder answers POST /v1/view-folders.
func (s *Server) handleSaveViewFolder(c *gin.Context) {
	var req saveViewFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "id and name are required")
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	folder := domain.ViewFolder{ID: req.ID, Name: req.Name}
	if err := s.relational.SaveViewFolder(ctx, principal(c).TenantUID, folder); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"id": req.ID})
}

// handleDeleteViewFolder answers DELETE /v1/view-folders/{id}.
func (s *Server) handleDeleteViewFolder(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := s.relational.DeleteViewFolder(ctx, principal(c).TenantUID, c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(204)
}
