package postgres

import (
	"context"
	"fmt"
	"time"

	"ledger-api/internal/core/domain"
	"ledger-api/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WebhookRepo implements ports.WebhookRepository. Events double as the
// delivery queue: the dispatcher claims due rows with FOR UPDATE SKIP LOCKED
// so concurrent workers drain the same table without blocking each other.
type WebhookRepo struct {
	pool Pool
}

// NewWebhookRepo creates a new WebhookRepo.
func NewWebhookRepo(pool Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

// CreateEndpoint inserts a new webhook endpoint.
func (r *WebhookRepo) CreateEndpoint(ctx context.Context, e *domain.WebhookEndpoint) error {
	query := `INSERT INTO webhook_endpoints (id, business_id, url, secret, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query, e.ID, e.BusinessID, e.URL, e.Secret, e.IsActive, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook endpoint: %w", err)
	}
	return nil
}

// ListEndpoints returns all endpoints registered by a business.
func (r *WebhookRepo) ListEndpoints(ctx context.Context, businessID uuid.UUID) ([]domain.WebhookEndpoint, error) {
	query := `SELECT id, business_id, url, secret, is_active, created_at
		FROM webhook_endpoints WHERE business_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close()

	return scanEndpoints(rows)
}

// ListActiveEndpoints returns the active endpoints of a business within the
// given transaction, fixing the fan-out set at commit time.
func (r *WebhookRepo) ListActiveEndpoints(ctx context.Context, tx pgx.Tx, businessID uuid.UUID) ([]domain.WebhookEndpoint, error) {
	query := `SELECT id, business_id, url, secret, is_active, created_at
		FROM webhook_endpoints WHERE business_id = $1 AND is_active = true`

	rows, err := tx.Query(ctx, query, businessID)
	if err != nil {
		return nil, fmt.Errorf("list active webhook endpoints: %w", err)
	}
	defer rows.Close()

	return scanEndpoints(rows)
}

// CreateEvent inserts a pending event within a database transaction.
func (r *WebhookRepo) CreateEvent(ctx context.Context, tx pgx.Tx, e *domain.WebhookEvent) error {
	query := `INSERT INTO webhook_events (id, webhook_endpoint_id, event_type, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query, e.ID, e.EndpointID, e.EventType, e.Payload, e.Status, e.Attempts, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// DequeueDue claims up to limit pending events whose linear backoff window
// (baseBackoff × (attempts + 1) since the last attempt) has elapsed. The
// claiming transaction must stay open until RecordAttempt commits so the
// row locks exclude peer workers.
func (r *WebhookRepo) DequeueDue(ctx context.Context, tx pgx.Tx, baseBackoff time.Duration, limit int) ([]ports.DueWebhookEvent, error) {
	query := `SELECT we.id, we.event_type, we.payload, we.attempts, ep.url, ep.secret
		FROM webhook_events we
		JOIN webhook_endpoints ep ON we.webhook_endpoint_id = ep.id
		WHERE we.status = 'pending'::webhook_event_status
		AND ep.is_active = true
		AND (we.last_attempt_at IS NULL OR we.last_attempt_at < NOW() - make_interval(secs => $1 * (we.attempts + 1)))
		ORDER BY we.created_at
		LIMIT $2
		FOR UPDATE OF we SKIP LOCKED`

	rows, err := tx.Query(ctx, query, baseBackoff.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue webhook events: %w", err)
	}
	defer rows.Close()

	var events []ports.DueWebhookEvent
	for rows.Next() {
		var e ports.DueWebhookEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.Attempts, &e.URL, &e.Secret); err != nil {
			return nil, fmt.Errorf("scan due webhook event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecordAttempt stamps the outcome of one delivery attempt.
func (r *WebhookRepo) RecordAttempt(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, status domain.WebhookEventStatus) error {
	query := `UPDATE webhook_events
		SET status = $1, last_attempt_at = NOW(), attempts = attempts + 1
		WHERE id = $2`

	if _, err := tx.Exec(ctx, query, status, eventID); err != nil {
		return fmt.Errorf("record webhook attempt: %w", err)
	}
	return nil
}

func scanEndpoints(rows pgx.Rows) ([]domain.WebhookEndpoint, error) {
	var endpoints []domain.WebhookEndpoint
	for rows.Next() {
		var e domain.WebhookEndpoint
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.URL, &e.Secret, &e.IsActive, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook endpoint: %w", err)
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}
