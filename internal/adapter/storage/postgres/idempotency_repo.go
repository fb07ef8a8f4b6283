package postgres

import (
	"context"
	"errors"
	"fmt"

	"ledger-api/internal/core/domain"
	"ledger-api/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct {
	pool Pool
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Get fetches the reservation row for (businessID, key). Returns nil, nil
// when no row exists.
func (r *IdempotencyRepo) Get(ctx context.Context, businessID uuid.UUID, key string) (*domain.IdempotencyKey, error) {
	query := `SELECT business_id, key, status, response_body, created_at
		FROM idempotency_keys WHERE business_id = $1 AND key = $2`

	k := &domain.IdempotencyKey{}
	err := r.pool.QueryRow(ctx, query, businessID, key).Scan(
		&k.BusinessID, &k.Key, &k.Status, &k.ResponseBody, &k.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	return k, nil
}

// Reserve atomically ensures a pending row exists for (businessID, key).
// A single upsert covers both the first attempt (insert) and a retry after
// failure (update); pending and success rows are left untouched so zero
// rows affected signals a conflict, disambiguated by a follow-up read.
func (r *IdempotencyRepo) Reserve(ctx context.Context, businessID uuid.UUID, key string) error {
	query := `INSERT INTO idempotency_keys (business_id, key, status, created_at)
		VALUES ($1, $2, 'pending'::idempotency_status, NOW())
		ON CONFLICT (business_id, key) DO UPDATE
		SET status = 'pending'::idempotency_status, created_at = NOW()
		WHERE idempotency_keys.status = 'failed'::idempotency_status`

	tag, err := r.pool.Exec(ctx, query, businessID, key)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("reserve idempotency key: %w", err))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows affected: the row exists as pending or success.
	existing, err := r.Get(ctx, businessID, key)
	if err != nil {
		return apperror.ErrDatabaseError(err)
	}
	if existing != nil {
		switch existing.Status {
		case domain.IdempotencyStatusPending:
			return apperror.ErrOperationInProgress()
		case domain.IdempotencyStatusSuccess:
			return apperror.ErrOperationAlreadyCompleted()
		}
	}
	// The row was released between the upsert and the read; the caller's
	// retry will take the reservation.
	return apperror.ErrOperationInProgress()
}

// MarkSucceeded finalizes the reservation with the response body inside the
// enclosing ledger transaction.
func (r *IdempotencyRepo) MarkSucceeded(ctx context.Context, tx pgx.Tx, businessID uuid.UUID, key string, responseBody []byte) error {
	query := `UPDATE idempotency_keys
		SET response_body = $1, status = 'success'::idempotency_status
		WHERE business_id = $2 AND key = $3`

	if _, err := tx.Exec(ctx, query, responseBody, businessID, key); err != nil {
		return fmt.Errorf("finalize idempotency key: %w", err)
	}
	return nil
}

// MarkFailed releases the reservation so a later retry can reattempt.
// Runs on the pool because it is called after the ledger transaction has
// rolled back.
func (r *IdempotencyRepo) MarkFailed(ctx context.Context, businessID uuid.UUID, key string) error {
	query := `UPDATE idempotency_keys
		SET status = 'failed'::idempotency_status
		WHERE business_id = $1 AND key = $2`

	if _, err := r.pool.Exec(ctx, query, businessID, key); err != nil {
		return fmt.Errorf("fail idempotency key: %w", err)
	}
	return nil
}
