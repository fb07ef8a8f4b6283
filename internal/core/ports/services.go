package ports

import (
	"context"
	"time"

	"ledger-api/internal/core/domain"

	"github.com/google/uuid"
)

//go:generate mockgen -source=services.go -destination=mocks/services.go -package=mocks

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// IdempotencyCache is the Redis-layer fast path for completed responses.
// Best-effort only; Postgres is the source of truth.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// --- Service Ports (Business Logic) ---

// LedgerService is the transfer/credit/debit core.
type LedgerService interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResponse, error)
	CreditDebit(ctx context.Context, req CreditDebitRequest) (*CreditDebitResponse, error)
	CreateAccount(ctx context.Context, businessID uuid.UUID, currency string) (*domain.Account, error)
}

// TransferRequest holds validated input for a transfer.
type TransferRequest struct {
	BusinessID     uuid.UUID
	FromAccountID  string
	ToAccountID    string
	Amount         int64
	IdempotencyKey string
}

// TransferResponse is the wire response for a transfer, also used as the
// webhook event payload.
type TransferResponse struct {
	TransactionID string `json:"transaction_id"`
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	Cached        bool   `json:"cached,omitempty"`
}

// CreditDebitRequest holds validated input for a single-account movement.
type CreditDebitRequest struct {
	BusinessID      uuid.UUID
	AccountID       string
	Amount          int64
	TransactionType string
	IdempotencyKey  string
}

// CreditDebitResponse is the wire response for a credit or debit.
type CreditDebitResponse struct {
	TransactionID   string `json:"transaction_id"`
	AccountID       string `json:"account_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	TransactionType string `json:"transaction_type"`
	Status          string `json:"status"`
	NewBalance      int64  `json:"new_balance"`
	Cached          bool   `json:"cached,omitempty"`
}

// AuthService defines signup and API key minting.
type AuthService interface {
	Signup(ctx context.Context, req SignupRequest) (*domain.Business, error)
	// GenerateAPIKey verifies credentials and returns the plaintext key,
	// shown exactly once. Only its SHA-256 digest is persisted.
	GenerateAPIKey(ctx context.Context, email, password string) (string, error)
}

// SignupRequest holds input for business signup.
type SignupRequest struct {
	Email    string
	Password string
	Name     string
}

// WebhookService manages tenant endpoint registration.
type WebhookService interface {
	RegisterEndpoint(ctx context.Context, businessID uuid.UUID, url, secret string) (*domain.WebhookEndpoint, error)
	ListEndpoints(ctx context.Context, businessID uuid.UUID) ([]domain.WebhookEndpoint, error)
}
