package handler

import (
	"ledger-api/internal/adapter/http/dto"
	"ledger-api/internal/adapter/http/middleware"
	"ledger-api/internal/core/domain"
	"ledger-api/internal/core/ports"
	"ledger-api/pkg/apperror"
	"ledger-api/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookHandler handles webhook endpoint registration and listing.
type WebhookHandler struct {
	webhookSvc ports.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc ports.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// Register handles POST /webhooks/register.
func (h *WebhookHandler) Register(c *gin.Context) {
	businessID, ok := c.Get(middleware.CtxBusinessID)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	var req dto.RegisterWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	endpoint, err := h.webhookSvc.RegisterEndpoint(c.Request.Context(), businessID.(uuid.UUID), req.URL, req.Secret)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toWebhookEndpointResponse(endpoint))
}

// List handles GET /webhooks/list.
func (h *WebhookHandler) List(c *gin.Context) {
	businessID, ok := c.Get(middleware.CtxBusinessID)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	endpoints, err := h.webhookSvc.ListEndpoints(c.Request.Context(), businessID.(uuid.UUID))
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.WebhookEndpointResponse, 0, len(endpoints))
	for i := range endpoints {
		items = append(items, toWebhookEndpointResponse(&endpoints[i]))
	}

	response.OK(c, items)
}

func toWebhookEndpointResponse(e *domain.WebhookEndpoint) dto.WebhookEndpointResponse {
	return dto.WebhookEndpointResponse{
		ID:         e.ID.String(),
		BusinessID: e.BusinessID.String(),
		URL:        e.URL,
		IsActive:   e.IsActive,
	}
}
