package handlers

import (
	"net/http"

	"example.com/bizops/services/crm/internal/services"
	"example.com/bizops/services/crm/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DealHandler handles deal-related HTTP requests
type DealHandler struct {
	dealService *services.DealService
	tracer      tracing.Tracer
}

// NewDealHandler creates a new deal handler
func NewDealHandler(dealService *services.DealService, tracer tracing.Tracer) *DealHandler {
	return &DealHandler{
		dealService: dealService,
		tracer:      tracer,
	}
}

// CreateDealRequest represents an incoming deal creation request
type CreateDealRequest struct {
	TenantID uuid.UUID  `json:"tenant_id" binding:"required"`
	Name     string     `json:"name" binding:"required"`
	Stage    string     `json:"stage"`
	Value    int64      `json:"value"`
	Currency string     `json:"currency"`
	OwnerID  *uuid.UUID `json:"owner_id"`
}

// UpdateDealRequest represents an incoming deal update request
type UpdateDealRequest struct {
	Name  *string `json:"name"`
	Stage *string `json:"stage"`
	Value *int64  `json:"value"`
}

// HandleCreateDeal handles deal creation
func (h *DealHandler) HandleCreateDeal(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-deal")
	defer h.tracer.EndTransaction(txn)

	var req CreateDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	h.tracer.AddAttribute(txn, "tenant_id", req.TenantID.String())
	h.tracer.AddAttribute(txn, "deal_name", req.Name)

	deal, err := h.dealService.CreateDeal(c, services.CreateDealInput{
		TenantID: req.TenantID,
		Name:     req.Name,
		Stage:    req.Stage,
		Value:    req.Value,
		Currency: req.Currency,
		OwnerID:  req.OwnerID,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to create deal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusCreated, deal)
}

// HandleUpdateDeal handles deal updates
func (h *DealHandler) HandleUpdateDeal(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-update-deal")
	defer h.tracer.EndTransaction(txn)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deal id"})
		return
	}

	var req UpdateDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	deal, err := h.dealService.UpdateDeal(c, id, services.UpdateDealInput{
		Name:  req.Name,
		Stage: req.Stage,
		Value: req.Value,
	})
	if err != nil {
		log.Error().Err(err).Str("deal_id", id.String()).Msg("Failed to update deal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, deal)
}

// HandleGetDeal returns a single deal
func (h *DealHandler) HandleGetDeal(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deal id"})
		return
	}

	deal, err := h.dealService.GetDeal(c, id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, deal)
}

// RegisterRoutes registers the handler's routes
func (h *DealHandler) RegisterRoutes(router *gin.Engine) {
	deals := router.Group("/api/v1/deals")
	deals.POST("", h.HandleCreateDeal)
	deals.PUT("/:id", h.HandleUpdateDeal)
	deals.GET("/:id", h.HandleGetDeal)
}
