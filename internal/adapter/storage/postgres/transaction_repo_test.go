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

func newTestTransaction() *domain.Transaction {
	fromID := uuid.New()
	toID := uuid.New()
	return &domain.Transaction{
		ID:             uuid.New(),
		BusinessID:     uuid.New(),
		FromAccountID:  &fromID,
		ToAccountID:    &toID,
		Amount:         250,
		Type:           domain.TransactionTypeTransfer,
		Status:         domain.TransactionStatusSuccess,
		IdempotencyKey: "idem-1",
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(txn.ID, txn.BusinessID, txn.FromAccountID, txn.ToAccountID,
			txn.Amount, txn.Type, txn.Status, txn.IdempotencyKey, txn.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, txn)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Create_CreditHasNilFromAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()
	txn.FromAccountID = nil
	txn.Type = domain.TransactionTypeCredit

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(txn.ID, txn.BusinessID, (*uuid.UUID)(nil), txn.ToAccountID,
			txn.Amount, txn.Type, txn.Status, txn.IdempotencyKey, txn.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, txn)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(txn.ID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "business_id", "from_account_id", "to_account_id",
			"amount", "type", "status", "idempotency_key", "created_at",
		}).AddRow(
			txn.ID, txn.BusinessID, txn.FromAccountID, txn.ToAccountID,
			txn.Amount, txn.Type, txn.Status, txn.IdempotencyKey, txn.CreatedAt,
		))

	got, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, txn.ID, got.ID)
	assert.Equal(t, txn.Amount, got.Amount)
	assert.Equal(t, domain.TransactionTypeTransfer, got.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "business_id", "from_account_id", "to_account_id",
			"amount", "type", "status", "idempotency_key", "created_at",
		}))

	got, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
