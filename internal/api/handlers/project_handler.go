package handlers

import (
	"net/http"

	"example.com/bizops/services/crm/internal/services"
	"example.com/bizops/services/crm/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ProjectHandler handles project-related HTTP requests
type ProjectHandler struct {
	projectService *services.ProjectService
	tracer         tracing.Tracer
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projectService *services.ProjectService, tracer tracing.Tracer) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
		tracer:         tracer,
	}
}

// CreateProjectRequest represents an incoming project creation request
type CreateProjectRequest struct {
	TenantID uuid.UUID  `json:"tenant_id" binding:"required"`
	DealID   *uuid.UUID `json:"deal_id"`
	Name     string     `json:"name" binding:"required"`
}

// HandleCreateProject handles project creation
func (h *ProjectHandler) HandleCreateProject(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-project")
	defer h.tracer.EndTransaction(txn)

	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	project, err := h.projectService.CreateProject(c, services.CreateProjectInput{
		TenantID: req.TenantID,
		DealID:   req.DealID,
		Name:     req.Name,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create project")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

// RegisterRoutes registers the handler's routes
func (h *ProjectHandler) RegisterRoutes(router *gin.Engine) {
	projects := router.Group("/api/v1/projects")
	projects.POST("", h.HandleCreateProject)
}
