package postgres

import (
	"context"
	"testing"
	"time"

	"ledger-api/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEndpoint(businessID uuid.UUID) *domain.WebhookEndpoint {
	return &domain.WebhookEndpoint{
		ID:         uuid.New(),
		BusinessID: businessID,
		URL:        "https://hooks.example.com/ledger",
		Secret:     "whsec_abc123",
		IsActive:   true,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
}

func endpointColumns() []string {
	return []string{"id", "business_id", "url", "secret", "is_active", "created_at"}
}

func endpointRow(e *domain.WebhookEndpoint) *pgxmock.Rows {
	return pgxmock.NewRows(endpointColumns()).AddRow(
		e.ID, e.BusinessID, e.URL, e.Secret, e.IsActive, e.CreatedAt,
	)
}

func TestWebhookRepo_CreateEndpoint(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	e := newTestEndpoint(uuid.New())

	mock.ExpectExec("INSERT INTO webhook_endpoints").
		WithArgs(e.ID, e.BusinessID, e.URL, e.Secret, e.IsActive, e.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.CreateEndpoint(context.Background(), e)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_ListEndpoints(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	e := newTestEndpoint(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM webhook_endpoints WHERE business_id").
		WithArgs(e.BusinessID).
		WillReturnRows(endpointRow(e))

	endpoints, err := repo.ListEndpoints(context.Background(), e.BusinessID)
	require.NoError(t, err)
	require.Len(t, endpoints, 1)
	assert.Equal(t, e.URL, endpoints[0].URL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_ListActiveEndpoints(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	e := newTestEndpoint(uuid.New())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM webhook_endpoints WHERE business_id .+ is_active").
		WithArgs(e.BusinessID).
		WillReturnRows(endpointRow(e))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	endpoints, err := repo.ListActiveEndpoints(context.Background(), tx, e.BusinessID)
	require.NoError(t, err)
	require.Len(t, endpoints, 1)
	assert.True(t, endpoints[0].IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_CreateEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	event := &domain.WebhookEvent{
		ID:         uuid.New(),
		EndpointID: uuid.New(),
		EventType:  domain.EventTransferCreated,
		Payload:    []byte(`{"amount":100}`),
		Status:     domain.WebhookEventStatusPending,
		Attempts:   0,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO webhook_events").
		WithArgs(event.ID, event.EndpointID, event.EventType, event.Payload,
			event.Status, event.Attempts, event.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.CreateEvent(context.Background(), tx, event)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_DequeueDue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	eventID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM webhook_events we .+ FOR UPDATE OF we SKIP LOCKED").
		WithArgs(float64(10), 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "event_type", "payload", "attempts", "url", "secret"}).
			AddRow(eventID, domain.EventTransferCreated, []byte(`{"amount":100}`), 2,
				"https://hooks.example.com/ledger", "whsec_abc123"))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	events, err := repo.DequeueDue(context.Background(), tx, 10*time.Second, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventID, events[0].ID)
	assert.Equal(t, 2, events[0].Attempts)
	assert.Equal(t, "whsec_abc123", events[0].Secret)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_DequeueDue_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM webhook_events we").
		WithArgs(float64(10), 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "event_type", "payload", "attempts", "url", "secret"}))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	events, err := repo.DequeueDue(context.Background(), tx, 10*time.Second, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_RecordAttempt(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepo(mock)
	eventID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE webhook_events").
		WithArgs(domain.WebhookEventStatusDelivered, eventID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.RecordAttempt(context.Background(), tx, eventID, domain.WebhookEventStatusDelivered)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
