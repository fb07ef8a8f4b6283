package postgres

import (
	"context"
	"errors"
	"fmt"

	"ledger-api/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BusinessRepo implements ports.BusinessRepository.
type BusinessRepo struct {
	pool Pool
}

// NewBusinessRepo creates a new BusinessRepo.
func NewBusinessRepo(pool Pool) *BusinessRepo {
	return &BusinessRepo{pool: pool}
}

// Create inserts a new business into the database.
func (r *BusinessRepo) Create(ctx context.Context, b *domain.Business) error {
	query := `INSERT INTO businesses (id, email, password_hash, name, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query, b.ID, b.Email, b.PasswordHash, b.Name, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert business: %w", err)
	}
	return nil
}

// GetByID fetches a business by its UUID.
func (r *BusinessRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	query := `SELECT id, email, password_hash, name, created_at FROM businesses WHERE id = $1`

	b := &domain.Business{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&b.ID, &b.Email, &b.PasswordHash, &b.Name, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get business by id: %w", err)
	}
	return b, nil
}

// GetByEmail fetches a business by its unique email.
func (r *BusinessRepo) GetByEmail(ctx context.Context, email string) (*domain.Business, error) {
	query := `SELECT id, email, password_hash, name, created_at FROM businesses WHERE email = $1`

	b := &domain.Business{}
	err := r.pool.QueryRow(ctx, query, email).Scan(&b.ID, &b.Email, &b.PasswordHash, &b.Name, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get business by email: %w", err)
	}
	return b, nil
}
