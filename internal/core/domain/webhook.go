package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEventStatus represents the delivery state of a webhook event.
type WebhookEventStatus string

const (
	WebhookEventStatusPending   WebhookEventStatus = "pending"
	WebhookEventStatusDelivered WebhookEventStatus = "delivered"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
)

// Webhook event types emitted by the ledger engine.
const (
	EventTransferCreated = "transfer.created"
	EventCreditCreated   = "credit.created"
	EventDebitCreated    = "debit.created"
)

// WebhookEndpoint is a tenant-registered URL that receives event payloads.
type WebhookEndpoint struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	URL        string    `json:"url"`
	Secret     string    `json:"-"` // shared secret, never expose
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// WebhookEvent is one pending delivery, created in the same database
// transaction as the ledger movement it describes.
type WebhookEvent struct {
	ID            uuid.UUID          `json:"id"`
	EndpointID    uuid.UUID          `json:"webhook_endpoint_id"`
	EventType     string             `json:"event_type"`
	Payload       []byte             `json:"payload"`
	Status        WebhookEventStatus `json:"status"`
	Attempts      int                `json:"attempts"`
	LastAttemptAt *time.Time         `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// IsTerminal returns true if the event will never be dequeued again.
func (e *WebhookEvent) IsTerminal() bool {
	return e.Status == WebhookEventStatusDelivered || e.Status == WebhookEventStatusFailed
}
