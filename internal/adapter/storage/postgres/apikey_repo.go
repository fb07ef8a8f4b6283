package postgres

import (
	"context"
	"errors"
	"fmt"

	"ledger-api/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// APIKeyRepo implements ports.APIKeyRepository.
type APIKeyRepo struct {
	pool Pool
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(pool Pool) *APIKeyRepo {
	return &APIKeyRepo{pool: pool}
}

// Create inserts a new API key into the database.
func (r *APIKeyRepo) Create(ctx context.Context, k *domain.APIKey) error {
	query := `INSERT INTO api_keys (id, business_id, key_hash, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query, k.ID, k.BusinessID, k.KeyHash, k.IsActive, k.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetActiveByHash fetches an active API key by its SHA-256 digest.
func (r *APIKeyRepo) GetActiveByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	query := `SELECT id, business_id, key_hash, is_active, created_at
		FROM api_keys WHERE key_hash = $1 AND is_active = true`

	k := &domain.APIKey{}
	err := r.pool.QueryRow(ctx, query, keyHash).Scan(&k.ID, &k.BusinessID, &k.KeyHash, &k.IsActive, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return k, nil
}
