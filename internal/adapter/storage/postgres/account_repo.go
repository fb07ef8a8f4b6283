package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ledger-api/internal/core/domain"
	"ledger-api/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Create inserts a new account into the database.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (id, business_id, currency, balance, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query, a.ID, a.BusinessID, a.Currency, a.Balance, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID fetches an account by its UUID (without locking).
func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT id, business_id, currency, balance, created_at FROM accounts WHERE id = $1`

	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate fetches an account by ID with pessimistic locking.
// This MUST be called within a transaction. Tenant ownership is checked by
// the caller after the lock is held, never folded into the lock predicate.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT id, business_id, currency, balance, created_at FROM accounts WHERE id = $1 FOR UPDATE`

	return scanAccount(tx.QueryRow(ctx, query, id))
}

// AdjustBalance applies a signed delta within a transaction and returns the
// new balance.
func (r *AccountRepo) AdjustBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta int64) (int64, error) {
	query := `UPDATE accounts SET balance = balance + $1 WHERE id = $2 RETURNING balance`

	var balance int64
	if err := tx.QueryRow(ctx, query, delta, id).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("account not found: %s", id)
		}
		return 0, fmt.Errorf("adjust account balance: %w", err)
	}
	return balance, nil
}

// List returns accounts joined with their owning business, optionally
// filtered by currency and business id.
func (r *AccountRepo) List(ctx context.Context, params ports.AccountListParams) ([]ports.AccountListing, error) {
	var (
		conds []string
		args  []any
	)
	if params.Currency != nil {
		args = append(args, *params.Currency)
		conds = append(conds, fmt.Sprintf("a.currency = $%d", len(args)))
	}
	if params.BusinessID != nil {
		args = append(args, *params.BusinessID)
		conds = append(conds, fmt.Sprintf("a.business_id = $%d", len(args)))
	}

	query := `SELECT a.id, a.business_id, a.currency, a.balance, a.created_at, b.name, b.email
		FROM accounts a
		JOIN businesses b ON a.business_id = b.id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY a.created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var listings []ports.AccountListing
	for rows.Next() {
		var l ports.AccountListing
		if err := rows.Scan(
			&l.Account.ID, &l.Account.BusinessID, &l.Account.Currency,
			&l.Account.Balance, &l.Account.CreatedAt,
			&l.BusinessName, &l.BusinessEmail,
		); err != nil {
			return nil, fmt.Errorf("scan account listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	a := &domain.Account{}
	err := row.Scan(&a.ID, &a.BusinessID, &a.Currency, &a.Balance, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return a, nil
}
