package ports

import (
	"context"
	"time"

	"ledger-api/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

//go:generate mockgen -source=repositories.go -destination=mocks/repositories.go -package=mocks

// BusinessRepository defines persistence operations for businesses.
type BusinessRepository interface {
	Create(ctx context.Context, business *domain.Business) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error)
	GetByEmail(ctx context.Context, email string) (*domain.Business, error)
}

// APIKeyRepository defines persistence operations for API keys.
type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	// GetActiveByHash resolves a hex-encoded SHA-256 digest to an active key.
	// Returns nil, nil when no active key matches.
	GetActiveByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
}

// AccountRepository defines persistence operations for accounts.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error)
	// AdjustBalance applies a signed delta and returns the new balance.
	AdjustBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta int64) (int64, error)
	List(ctx context.Context, params AccountListParams) ([]AccountListing, error)
}

// AccountListParams holds the optional filters for the public accounts listing.
type AccountListParams struct {
	Currency   *string
	BusinessID *uuid.UUID
}

// AccountListing is an account joined with its owning business.
type AccountListing struct {
	Account       domain.Account
	BusinessName  *string
	BusinessEmail string
}

// TransactionRepository defines persistence operations for ledger transactions.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
}

// IdempotencyRepository implements the check/reserve/finalize protocol.
type IdempotencyRepository interface {
	// Get fetches the reservation row for (businessID, key), nil when absent.
	Get(ctx context.Context, businessID uuid.UUID, key string) (*domain.IdempotencyKey, error)
	// Reserve atomically ensures a pending row exists. Absent and failed rows
	// proceed; a pending row fails with "operation in progress" and a success
	// row with "already completed".
	Reserve(ctx context.Context, businessID uuid.UUID, key string) error
	// MarkSucceeded finalizes the reservation inside the ledger transaction.
	MarkSucceeded(ctx context.Context, tx pgx.Tx, businessID uuid.UUID, key string, responseBody []byte) error
	// MarkFailed releases the reservation for a later retry. Called out-of-band
	// after a rollback, so it runs on the pool rather than a transaction.
	MarkFailed(ctx context.Context, businessID uuid.UUID, key string) error
}

// WebhookRepository defines persistence for endpoints and their event queue.
type WebhookRepository interface {
	CreateEndpoint(ctx context.Context, endpoint *domain.WebhookEndpoint) error
	ListEndpoints(ctx context.Context, businessID uuid.UUID) ([]domain.WebhookEndpoint, error)
	// ListActiveEndpoints runs inside the ledger transaction so the fan-out
	// set is fixed at commit time.
	ListActiveEndpoints(ctx context.Context, tx pgx.Tx, businessID uuid.UUID) ([]domain.WebhookEndpoint, error)
	CreateEvent(ctx context.Context, tx pgx.Tx, event *domain.WebhookEvent) error
	// DequeueDue claims up to limit pending events whose backoff window has
	// elapsed, locking them with FOR UPDATE SKIP LOCKED so concurrent workers
	// never contend. Must be called within a transaction held until the
	// matching RecordAttempt calls commit.
	DequeueDue(ctx context.Context, tx pgx.Tx, baseBackoff time.Duration, limit int) ([]DueWebhookEvent, error)
	// RecordAttempt sets the event status, stamps last_attempt_at and
	// increments attempts.
	RecordAttempt(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, status domain.WebhookEventStatus) error
}

// DueWebhookEvent is a claimed queue entry joined with its endpoint.
type DueWebhookEvent struct {
	ID        uuid.UUID
	EventType string
	Payload   []byte
	Attempts  int
	URL       string
	Secret    string
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
