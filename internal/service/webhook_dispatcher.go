package service

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"ledger-api/config"
	"ledger-api/internal/core/domain"
	"ledger-api/internal/core/ports"

	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookDispatcher drains the webhook_events queue. Each cycle claims a
// batch of due events with SKIP LOCKED inside one database transaction,
// delivers them, and records the outcomes in that same transaction, so a
// crashed worker releases its claims on rollback and peers never see them.
type WebhookDispatcher struct {
	webhookRepo ports.WebhookRepository
	transactor  ports.DBTransactor
	httpClient  HTTPClient
	cfg         config.WebhookConfig
	log         zerolog.Logger
}

// NewWebhookDispatcher creates a new WebhookDispatcher.
func NewWebhookDispatcher(
	webhookRepo ports.WebhookRepository,
	transactor ports.DBTransactor,
	httpClient HTTPClient,
	cfg config.WebhookConfig,
	log zerolog.Logger,
) *WebhookDispatcher {
	return &WebhookDispatcher{
		webhookRepo: webhookRepo,
		transactor:  transactor,
		httpClient:  httpClient,
		cfg:         cfg,
		log:         log,
	}
}

// Run processes the queue until ctx is canceled. An empty poll sleeps for
// the idle interval, a failed poll for the error interval.
func (d *WebhookDispatcher) Run(ctx context.Context) {
	d.log.Info().
		Int("batch_size", d.cfg.BatchSize).
		Dur("base_backoff", d.cfg.BaseBackoff).
		Msg("webhook dispatcher started")

	for {
		processed, err := d.ProcessBatch(ctx)

		wait := d.cfg.IdleInterval
		if err != nil {
			if ctx.Err() != nil {
				d.log.Info().Msg("webhook dispatcher stopped")
				return
			}
			d.log.Error().Err(err).Msg("webhook batch failed")
			wait = d.cfg.ErrorInterval
		} else if processed > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			d.log.Info().Msg("webhook dispatcher stopped")
			return
		case <-time.After(wait):
		}
	}
}

// ProcessBatch claims and delivers one batch of due events. Returns the
// number of events processed.
func (d *WebhookDispatcher) ProcessBatch(ctx context.Context) (int, error) {
	dbTx, err := d.transactor.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	events, err := d.webhookRepo.DequeueDue(ctx, dbTx, d.cfg.BaseBackoff, d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("dequeue events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	for _, event := range events {
		status := d.deliver(ctx, event)
		if err := d.webhookRepo.RecordAttempt(ctx, dbTx, event.ID, status); err != nil {
			return 0, fmt.Errorf("record attempt for %s: %w", event.ID, err)
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return len(events), nil
}

// deliver POSTs the payload to the endpoint and maps the outcome to the next
// event status. A non-2xx or transport error leaves the event pending for
// the linear backoff retry until the attempt budget is spent.
func (d *WebhookDispatcher) deliver(ctx context.Context, event ports.DueWebhookEvent) domain.WebhookEventStatus {
	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, event.URL, bytes.NewReader(event.Payload))
	if err != nil {
		d.log.Error().Err(err).Str("event_id", event.ID.String()).Msg("webhook: invalid request")
		return d.retryOrFail(event)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Secret", event.Secret)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.log.Warn().Err(err).
			Str("event_id", event.ID.String()).
			Int("attempt", event.Attempts+1).
			Msg("webhook: delivery failed")
		return d.retryOrFail(event)
	}
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.log.Info().
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Int("attempt", event.Attempts+1).
			Int("status", resp.StatusCode).
			Msg("webhook: delivered")
		return domain.WebhookEventStatusDelivered
	}

	d.log.Warn().
		Str("event_id", event.ID.String()).
		Int("attempt", event.Attempts+1).
		Int("status", resp.StatusCode).
		Msg("webhook: non-2xx response")
	return d.retryOrFail(event)
}

// retryOrFail keeps the event pending until this attempt exhausts the
// budget, then marks it failed for good.
func (d *WebhookDispatcher) retryOrFail(event ports.DueWebhookEvent) domain.WebhookEventStatus {
	if event.Attempts+1 >= d.cfg.MaxAttempts {
		d.log.Error().
			Str("event_id", event.ID.String()).
			Int("attempts", event.Attempts+1).
			Msg("webhook: attempts exhausted, marking failed")
		return domain.WebhookEventStatusFailed
	}
	return domain.WebhookEventStatusPending
}
