package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"ledger-api/internal/core/domain"
	"ledger-api/internal/core/ports"
	"ledger-api/internal/core/ports/mocks"
	"ledger-api/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ledgerTestDeps struct {
	svc         *LedgerServiceImpl
	accountRepo *mocks.MockAccountRepository
	txRepo      *mocks.MockTransactionRepository
	idempRepo   *mocks.MockIdempotencyRepository
	idempCache  *mocks.MockIdempotencyCache
	webhookRepo *mocks.MockWebhookRepository
	transactor  *mocks.MockDBTransactor
	ctrl        *gomock.Controller
}

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		accountRepo: mocks.NewMockAccountRepository(ctrl),
		txRepo:      mocks.NewMockTransactionRepository(ctrl),
		idempRepo:   mocks.NewMockIdempotencyRepository(ctrl),
		idempCache:  mocks.NewMockIdempotencyCache(ctrl),
		webhookRepo: mocks.NewMockWebhookRepository(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
		ctrl:        ctrl,
	}
	d.svc = NewLedgerService(
		d.accountRepo, d.txRepo, d.idempRepo, d.idempCache,
		d.webhookRepo, d.transactor, 10000, zerolog.Nop(),
	)
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

// lowID < highID in byte order, so lock acquisition is predictable.
var (
	lowID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	highID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func expectNoReplay(d *ledgerTestDeps, ctx context.Context, businessID uuid.UUID, key string) {
	d.idempCache.EXPECT().Get(ctx, domain.BuildCacheKey(businessID, key)).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, businessID, key).Return(nil, nil)
}

// ==================== Transfer Tests ====================

func TestLedgerService_Transfer_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	businessID := uuid.New()
	endpointID := uuid.New()
	tx := &mockTx{}

	req := ports.TransferRequest{
		BusinessID:     businessID,
		FromAccountID:  lowID.String(),
		ToAccountID:    highID.String(),
		Amount:         2500,
		IdempotencyKey: "transfer-001",
	}

	expectNoReplay(d, ctx, businessID, "transfer-001")
	d.idempRepo.EXPECT().Reserve(ctx, businessID, "transfer-001").Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	gomock.InOrder(
		d.accountRepo.EXPECT().GetByIDForUpdate(ctx, tx, lowID).Return(&domain.Account{
			ID: lowID, BusinessID: businessID, Currency: "USD", Balance: 10000,
		}, nil),
		d.accountRepo.EXPECT().GetByIDForUpdate(ctx, tx, highID).Return(&domain.Account{
			ID: highID, BusinessID: businessID, Currency: "USD", Balance: 500,
		}, nil),
	)
	d.accountRepo.EXPECT().AdjustBalance(ctx, tx, lowID, int64(-2500)).Return(int64(7500), nil)
	d.accountRepo.EXPECT().AdjustBalance(ctx, tx, highID, int64(2500)).Return(int64(3000), nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.webhookRepo.EXPECT().ListActiveEndpoints(ctx, tx, businessID).Return([]domain.WebhookEndpoint{
		{ID: endpointID, BusinessID: businessID, URL: "https://hooks.example.com", IsActive: true},
	}, nil)
	d.webhookRepo.EXPECT().CreateEvent(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, event *domain.WebhookEvent) error {
			assert.Equal(t, endpointID, event.EndpointID)
			assert.Equal(t, domain.EventTransferCreated, event.EventType)
			assert.Equal(t, domain.WebhookEventStatusPending, event.Status)
			return nil
		})
	d.idempRepo.EXPECT().MarkSucceeded(ctx, tx, businessID, "transfer-001", gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, domain.BuildCacheKey(businessID, "transfer-001"), gomock.Any(), idempotencyTTL).Return(nil)

	resp, err := d.svc.Transfer(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, lowID.String(), resp.FromAccountID)
	assert.Equal(t, highID.String(), resp.ToAccountID)
	assert.Equal(t, int64(2500), resp.Amount)
	assert.Equal(t, "USD", resp.Currency)
	assert.Equal(t, "success", resp.Status)
	assert.False(t, resp.Cached)
}

func TestLedgerService_Transfer_LockOrderIsAscending(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	businessID := uuid.New()
	tx := &mockTx{}

	// Source has the higher UUID, so the destination must be locked first.
	req := ports.TransferRequest{
		BusinessID:     businessID,
		FromAccountID:  highID.String(),
		ToAccountID:    lowID.String(),
		Amount:         100,
		IdempotencyKey: "transfer-002",
	}

	expectNoReplay(d, ctx, businessID, "transfer-002")
	d.idempRepo.EXPECT().Reserve(ctx, businessID, "transfer-002").Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	gomock.InOrder(
		d.accountRepo.EXPECT().GetByIDForUpdate(ctx, tx, lowID).Return(&domain.Account{
			ID: lowID, BusinessID: businessID, Currency: "USD", Balance: 0,
		}, nil),
		d.accountRepo.EXPECT().GetByIDForUpdate(ctx, tx, highID).Return(&domain.Account{
			ID: highID, BusinessID: businessID, Currency: "USD", Balance: 10000,
		}, nil),
	)
	d.accountRepo.EXPECT().AdjustBalance(ctx, tx, highID, int64(-100)).Return(int64(9900), nil)
	d.accountRepo.EXPECT().AdjustBalance(ctx, tx, lowID, int64(100)).Return(int64(100), nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.webhookRepo.EXPECT().ListActiveEndpoints(ctx, tx, businessID).Return(nil, nil)
	d.idempRepo.EXPECT().MarkSucceeded(ctx, tx, businessID, "transfer-002", gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), idempotencyTTL).Return(nil)

	resp, err := d.svc.Transfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, highID.String(), resp.FromAccountID)
}

func TestLedgerService_Transfer_InvalidAmount(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Transfer(context.Background(), ports.TransferRequest{
		BusinessID:     uuid.New(),
		FromAccountID:  lowID.String(),
		ToAccountID:    highID.String(),
		Amount:         0,
		IdempotencyKey: "transfer-003",
	})
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Amount must be positive", appErr.Message)
}

func TestLedgerService_Transfer_InvalidAccountID(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Transfer(context.Background(), ports.TransferRequest{
		BusinessID:     uuid.New(),
		FromAccountID:  "not-a-uuid",
		ToAccountID:    highID.String(),
		Amount:         100,
		IdempotencyKey: "transfer-004",
	})
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Invalid from_account_id format", appErr.Message)
}

func TestLedgerService_Transfer_ReplayFromRedis(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	businessID := uuid.New()
	stored := ports.TransferResponse{
		TransactionID: uuid.New().String(),
		FromAccountID: lowID.String(),
		ToAccountID:   highID.String(),
		Amount:        2500,
		Currency:      "USD",
		Status:        "success",
	}
	body, _ := json.Marshal(stored)

	d.idempCache.EXPECT().Get(ctx, domain.BuildCacheKey(businessID, "transfer-001")).Return(body, nil)

	resp, err := d.svc.Transfer(ctx, ports.TransferRequest{
		BusinessID:     businessID,
		FromAccountID:  lowID.String(),
		ToAccountID:    highID.String(),
		Amount:         2500,
		IdempotencyKey: "transfer-001",
	})
	require.NoError(t, err)
	assert.Equal(t, stored.TransactionID, resp.TransactionID)
	assert.True(t, resp.Cached)
}

func TestLedgerService_Transfer_ReplayFromDatabase(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	businessID := uuid.New()
	stored := ports.TransferResponse{
		TransactionID: uuid.New().String(),
		Amount:        2500,
		Status:        "success",
	}
	body, _ := json.Marshal(stored)
	cacheKey := domain.BuildCacheKey(businessID, "transfer-001")

	d.idempCache.EXPECT().Get(ctx, cacheKey).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, businessID, "transfer-001").Return(&domain.IdempotencyKey{
		BusinessID:   businessID,
		Key:          "transfer-001",
		Status:       domain.IdempotencyStatusSuccess,
		ResponseBody: body,
	}, nil)
	// Warm the Redis cache from the DB hit.
	d.idempCache.EXPECT().Set(ctx, cacheKey, body, idempotencyTTL).Return(nil)

	resp, err := d.svc.Transfer(ctx, ports.TransferRequest{
		BusinessID:     businessID,
		FromAccountID:  lowID.String(),
		ToAccountID:    highID.String(),
		Amount:         2500,
		IdempotencyKey: "transfer-001",
	})
	require.NoError(t, err)
	assert.Equal(t, stored.TransactionID, resp.TransactionID)
	assert.True(t, resp.Cached)
}

func TestLedgerService_Transfer_SourceNotOwned(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	businessID := uuid.New()
	otherBusiness := uuid.New()
	tx := &mockTx{}

	expectNoReplay(d, ctx, businessID, "transfer-005")
	d.idempRepo.EXPECT().Reserve(ctx, businessID, "transfer-005").Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.accountRepo.EXPECT().GetByIDForUpdate(ctx, tx, lowID).Return(&domain.Account{
		ID: lowID, BusinessID: otherBusiness, Currency: "USD", Balance: 10000,
	}, nil)
	d.accountRepo.EXPECT().GetByIDForUpdate(ctx, tx, highID).Return(&domain.Account{
		ID: highID, BusinessID: businessID, Currency: "USD", Balance: 0,
	}, nil)
	// Reservation is released after the rollback.
	d.idempRepo.EXPECT().MarkFailed(ctx, businessID, "transfer-005").Return(nil)

	_, err := d.svc.Transfer(ctx, ports.TransferRequest{
		BusinessID:     businessID,
		FromAccountID:  lowID.String(),
		ToAccountID:    highID.String(),
		Amount:         100,
		IdempotencyKey: "transfer-005",
	})
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Source account not found or does not belong to this business", appErr.Message)
}

func TestLedgerService_Transfer_InsufficientBalance(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	businessID := uuid.New()
	tx := &mockTx{}

	expectNoReplay(d, ctx, businessID, "transfer-006")
	d.idempRepo.EXPECT().Reserve(ctx, businessID, "transfer-006").Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.accountRepo.EXPECT().GetByIDForUpdate(ctx, tx, lowID).Return(&domain.Account{
		ID: lowID, BusinessID: businessID, Currency: "USD", Balance: 50,
	}, nil)
	d.accountRepo.EXPECT().GetByIDForUpdate(ctx, tx, highID).Return(&domain.Account{
		ID: highID, BusinessID: businessID, Currency: "USD", Balance: 0,
	}, nil)
	d.idempRepo.EXPECT().MarkFailed(ctx, businessID, "transfer-006").Return(nil)

	_, err := d.svc.Transfer(ctx, ports.TransferRequest{
		BusinessID:     businessID,
		FromAccountID:  lowID.String(),
		ToAccountID:    highID.String(),
		Amount:         100,
		IdempotencyKey: "transfer-006",
	})
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Insufficient balance", appErr.Message)
	assert.Equal(t, int64(50), appErr.Details["available"])
	assert.Equal(t, int64(100), appErr.Details["required"])
}

func TestLedgerService_Transfer_CurrencyMismatch(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	businessID := uuid.New()
	tx := &mockTx{}

	expectNoReplay(d, ctx, businessID, "transfer-007")
	d.idempRepo.EXPECT().Reserve(ctx, businessID, "transfer-007").Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.accountRepo.EXPECT().GetByIDForUpdate(ctx, tx, lowID).Return(&domain.Account{
		ID: lowID, BusinessID: businessID, Currency: "USD", Balance: 10000,
	}, nil)
	d.accountRepo.EXPECT().GetByIDForUpdate(ctx, tx, highID).Return(&domain.Account{
		ID: highID, BusinessID: businessID, Currency: "EUR", Balance: 0,
	}, nil)
	d.idempRepo.EXPECT().MarkFailed(ctx, businessID, "transfer-007").Return(nil)

	_, err := d.svc.Transfer(ctx, ports.TransferRequest{
		BusinessID:     businessID,
		FromAccountID:  lowID.String(),
		ToAccountID:    highID.String(),
		Amount:         100,
		IdempotencyKey: "transfer-007",
	})
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Currency mismatch", appErr.Message)
	assert.Equal(t, "USD", appErr.Details["from_currency"])
	assert.Equal(t, "EUR", appErr.Details["to_currency"])
}

func TestLedgerService_Transfer_ReserveConflict(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	businessID := uuid.New()

	expectNoReplay(d, ctx, businessID, "transfer-008")
	d.idempRepo.EXPECT().Reserve(ctx, businessID, "transfer-008").Return(apperror.ErrOperationInProgress())

	_, err := d.svc.Transfer(ctx, ports.TransferRequest{
		BusinessID:     businessID,
		FromAccountID:  lowID.String(),
		ToAccountID:    highID.String(),
		Amount:         100,
		IdempotencyKey: "transfer-008",
	})
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Operation in progress", appErr.Message)
}

// ==================== CreditDebit Tests ====================

func TestLedgerService_CreditDebit_CreditSuccess(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	businessID := uuid.New()
	tx := &mockTx{}

	expectNoReplay(d, ctx, businessID, "credit-001")
	d.idempRepo.EXPECT().Reserve(ctx, businessID, "credit-001").Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.accountRepo.EXPECT().GetByIDForUpdate(ctx, tx, lowID).Return(&domain.Account{
		ID: lowID, BusinessID: businessID, Currency: "USD", Balance: 10000,
	}, nil)
	d.accountRepo.EXPECT().AdjustBalance(ctx, tx, lowID, int64(500)).Return(int64(10500), nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
			require.NotNil(t, txn.ToAccountID)
			assert.Equal(t, lowID, *txn.ToAccountID)
			assert.Nil(t, txn.FromAccountID)
			assert.Equal(t, domain.TransactionTypeCredit, txn.Type)
			return nil
		})
	d.webhookRepo.EXPECT().ListActiveEndpoints(ctx, tx, businessID).Return(nil, nil)
	d.idempRepo.EXPECT().MarkSucceeded(ctx, tx, businessID, "credit-001", gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), idempotencyTTL).Return(nil)

	resp, err := d.svc.CreditDebit(ctx, ports.CreditDebitRequest{
		BusinessID:      businessID,
		AccountID:       lowID.String(),
		Amount:          500,
		TransactionType: "credit",
		IdempotencyKey:  "credit-001",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10500), resp.NewBalance)
	assert.Equal(t, "credit", resp.TransactionType)
	assert.False(t, resp.Cached)
}

func TestLedgerService_CreditDebit_DebitInsufficient(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	businessID := uuid.New()
	tx := &mockTx{}

	expectNoReplay(d, ctx, businessID, "debit-001")
	d.idempRepo.EXPECT().Reserve(ctx, businessID, "debit-001").Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.accountRepo.EXPECT().GetByIDForUpdate(ctx, tx, lowID).Return(&domain.Account{
		ID: lowID, BusinessID: businessID, Currency: "USD", Balance: 100,
	}, nil)
	d.idempRepo.EXPECT().MarkFailed(ctx, businessID, "debit-001").Return(nil)

	_, err := d.svc.CreditDebit(ctx, ports.CreditDebitRequest{
		BusinessID:      businessID,
		AccountID:       lowID.String(),
		Amount:          500,
		TransactionType: "debit",
		IdempotencyKey:  "debit-001",
	})
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Insufficient balance", appErr.Message)
}

func TestLedgerService_CreditDebit_InvalidType(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.CreditDebit(context.Background(), ports.CreditDebitRequest{
		BusinessID:      uuid.New(),
		AccountID:       lowID.String(),
		Amount:          500,
		TransactionType: "withdraw",
		IdempotencyKey:  "debit-002",
	})
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Invalid transaction_type. Must be 'credit' or 'debit'", appErr.Message)
}

func TestLedgerService_CreditDebit_AccountNotOwned(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	businessID := uuid.New()
	tx := &mockTx{}

	expectNoReplay(d, ctx, businessID, "debit-003")
	d.idempRepo.EXPECT().Reserve(ctx, businessID, "debit-003").Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.accountRepo.EXPECT().GetByIDForUpdate(ctx, tx, lowID).Return(&domain.Account{
		ID: lowID, BusinessID: uuid.New(), Currency: "USD", Balance: 100,
	}, nil)
	d.idempRepo.EXPECT().MarkFailed(ctx, businessID, "debit-003").Return(nil)

	_, err := d.svc.CreditDebit(ctx, ports.CreditDebitRequest{
		BusinessID:      businessID,
		AccountID:       lowID.String(),
		Amount:          50,
		TransactionType: "debit",
		IdempotencyKey:  "debit-003",
	})
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Account not found or does not belong to this business", appErr.Message)
}

// ==================== CreateAccount Tests ====================

func TestLedgerService_CreateAccount(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	businessID := uuid.New()

	d.accountRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, a *domain.Account) error {
			assert.Equal(t, businessID, a.BusinessID)
			assert.Equal(t, "USD", a.Currency)
			assert.Equal(t, int64(10000), a.Balance)
			return nil
		})

	account, err := d.svc.CreateAccount(ctx, businessID, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), account.Balance)
}
