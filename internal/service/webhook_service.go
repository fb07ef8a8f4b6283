package service

import (
	"context"
	"fmt"
	"time"

	"ledger-api/internal/core/domain"
	"ledger-api/internal/core/ports"
	"ledger-api/pkg/apperror"

	"github.com/google/uuid"
)

// WebhookServiceImpl implements ports.WebhookService.
type WebhookServiceImpl struct {
	webhookRepo ports.WebhookRepository
}

// NewWebhookService creates a new WebhookServiceImpl.
func NewWebhookService(webhookRepo ports.WebhookRepository) *WebhookServiceImpl {
	return &WebhookServiceImpl{webhookRepo: webhookRepo}
}

// RegisterEndpoint creates an active endpoint for the business.
func (s *WebhookServiceImpl) RegisterEndpoint(ctx context.Context, businessID uuid.UUID, url, secret string) (*domain.WebhookEndpoint, error) {
	endpoint := &domain.WebhookEndpoint{
		ID:         uuid.New(),
		BusinessID: businessID,
		URL:        url,
		Secret:     secret,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.webhookRepo.CreateEndpoint(ctx, endpoint); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create webhook endpoint: %w", err))
	}
	return endpoint, nil
}

// ListEndpoints returns the endpoints registered by the business.
func (s *WebhookServiceImpl) ListEndpoints(ctx context.Context, businessID uuid.UUID) ([]domain.WebhookEndpoint, error) {
	endpoints, err := s.webhookRepo.ListEndpoints(ctx, businessID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list webhook endpoints: %w", err))
	}
	return endpoints, nil
}
