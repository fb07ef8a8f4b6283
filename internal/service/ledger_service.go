package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ledger-api/internal/core/domain"
	"ledger-api/internal/core/ports"
	"ledger-api/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const idempotencyTTL = 24 * time.Hour

// LedgerServiceImpl implements ports.LedgerService. All money movements run
// under pessimistic row locks inside one database transaction, with the
// idempotency reservation finalized and webhook events enqueued in that same
// transaction so a commit is all-or-nothing.
type LedgerServiceImpl struct {
	accountRepo    ports.AccountRepository
	txRepo         ports.TransactionRepository
	idempRepo      ports.IdempotencyRepository
	idempCache     ports.IdempotencyCache
	webhookRepo    ports.WebhookRepository
	transactor     ports.DBTransactor
	openingBalance int64
	log            zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	accountRepo ports.AccountRepository,
	txRepo ports.TransactionRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	webhookRepo ports.WebhookRepository,
	transactor ports.DBTransactor,
	openingBalance int64,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		accountRepo:    accountRepo,
		txRepo:         txRepo,
		idempRepo:      idempRepo,
		idempCache:     idempCache,
		webhookRepo:    webhookRepo,
		transactor:     transactor,
		openingBalance: openingBalance,
		log:            log,
	}
}

// CreateAccount provisions a new account with the configured opening balance.
func (s *LedgerServiceImpl) CreateAccount(ctx context.Context, businessID uuid.UUID, currency string) (*domain.Account, error) {
	account := &domain.Account{
		ID:         uuid.New(),
		BusinessID: businessID,
		Currency:   currency,
		Balance:    s.openingBalance,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create account: %w", err))
	}

	s.log.Info().
		Str("account_id", account.ID.String()).
		Str("business_id", businessID.String()).
		Str("currency", currency).
		Msg("account created")

	return account, nil
}

// Transfer moves amount between two accounts of the same currency.
func (s *LedgerServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResponse, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	fromID, err := uuid.Parse(req.FromAccountID)
	if err != nil {
		return nil, apperror.ErrInvalidID("from_account_id")
	}
	toID, err := uuid.Parse(req.ToAccountID)
	if err != nil {
		return nil, apperror.ErrInvalidID("to_account_id")
	}

	if resp, err := replayFromCache[ports.TransferResponse](ctx, s, req.BusinessID, req.IdempotencyKey); err != nil || resp != nil {
		return resp, err
	}

	if err := s.idempRepo.Reserve(ctx, req.BusinessID, req.IdempotencyKey); err != nil {
		return nil, err
	}

	resp, err := s.executeTransfer(ctx, req, fromID, toID)
	if err != nil {
		s.failReservation(ctx, req.BusinessID, req.IdempotencyKey)
		return nil, err
	}
	return resp, nil
}

func (s *LedgerServiceImpl) executeTransfer(ctx context.Context, req ports.TransferRequest, fromID, toID uuid.UUID) (*ports.TransferResponse, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	from, to, err := s.lockTransferAccounts(ctx, dbTx, fromID, toID)
	if err != nil {
		return nil, err
	}

	// Ownership is a predicate checked after the locks are held, never part
	// of the lock query itself. Only the source account must belong to the
	// calling business.
	if from == nil || from.BusinessID != req.BusinessID {
		return nil, apperror.ErrSourceAccountNotFound()
	}
	if to == nil {
		return nil, apperror.ErrDestinationAccountNotFound()
	}
	if from.Currency != to.Currency {
		return nil, apperror.ErrCurrencyMismatch(from.Currency, to.Currency)
	}
	if from.Balance < req.Amount {
		return nil, apperror.ErrInsufficientBalance(from.Balance, req.Amount)
	}

	if _, err := s.accountRepo.AdjustBalance(ctx, dbTx, fromID, -req.Amount); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("debit source: %w", err))
	}
	if _, err := s.accountRepo.AdjustBalance(ctx, dbTx, toID, req.Amount); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("credit destination: %w", err))
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:             uuid.New(),
		BusinessID:     req.BusinessID,
		FromAccountID:  &fromID,
		ToAccountID:    &toID,
		Amount:         req.Amount,
		Type:           domain.TransactionTypeTransfer,
		Status:         domain.TransactionStatusSuccess,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	resp := &ports.TransferResponse{
		TransactionID: txn.ID.String(),
		FromAccountID: fromID.String(),
		ToAccountID:   toID.String(),
		Amount:        req.Amount,
		Currency:      from.Currency,
		Status:        string(domain.TransactionStatusSuccess),
	}
	respJSON, err := json.Marshal(resp)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
	}

	if err := s.enqueueWebhookEvents(ctx, dbTx, req.BusinessID, domain.EventTransferCreated, respJSON, now); err != nil {
		return nil, err
	}
	if err := s.idempRepo.MarkSucceeded(ctx, dbTx, req.BusinessID, req.IdempotencyKey, respJSON); err != nil {
		return nil, apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.cacheResponse(ctx, req.BusinessID, req.IdempotencyKey, respJSON)

	s.log.Info().
		Str("transaction_id", txn.ID.String()).
		Str("business_id", req.BusinessID.String()).
		Int64("amount", req.Amount).
		Msg("transfer completed")

	return resp, nil
}

// lockTransferAccounts acquires both row locks in ascending UUID byte order
// so two opposing transfers can never deadlock. A self-transfer locks the
// row once.
func (s *LedgerServiceImpl) lockTransferAccounts(ctx context.Context, dbTx pgx.Tx, fromID, toID uuid.UUID) (from, to *domain.Account, err error) {
	lock := func(id uuid.UUID) (*domain.Account, error) {
		acct, err := s.accountRepo.GetByIDForUpdate(ctx, dbTx, id)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lock account %s: %w", id, err))
		}
		return acct, nil
	}

	switch bytes.Compare(fromID[:], toID[:]) {
	case 0:
		from, err = lock(fromID)
		return from, from, err
	case -1:
		if from, err = lock(fromID); err != nil {
			return nil, nil, err
		}
		to, err = lock(toID)
		return from, to, err
	default:
		if to, err = lock(toID); err != nil {
			return nil, nil, err
		}
		from, err = lock(fromID)
		return from, to, err
	}
}

// CreditDebit applies a single-account credit or debit.
func (s *LedgerServiceImpl) CreditDebit(ctx context.Context, req ports.CreditDebitRequest) (*ports.CreditDebitResponse, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.TransactionType != string(domain.TransactionTypeCredit) && req.TransactionType != string(domain.TransactionTypeDebit) {
		return nil, apperror.ErrInvalidTransactionType()
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		return nil, apperror.ErrInvalidID("account_id")
	}

	if resp, err := replayFromCache[ports.CreditDebitResponse](ctx, s, req.BusinessID, req.IdempotencyKey); err != nil || resp != nil {
		return resp, err
	}

	if err := s.idempRepo.Reserve(ctx, req.BusinessID, req.IdempotencyKey); err != nil {
		return nil, err
	}

	resp, err := s.executeCreditDebit(ctx, req, accountID)
	if err != nil {
		s.failReservation(ctx, req.BusinessID, req.IdempotencyKey)
		return nil, err
	}
	return resp, nil
}

func (s *LedgerServiceImpl) executeCreditDebit(ctx context.Context, req ports.CreditDebitRequest, accountID uuid.UUID) (*ports.CreditDebitResponse, error) {
	isCredit := req.TransactionType == string(domain.TransactionTypeCredit)

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	account, err := s.accountRepo.GetByIDForUpdate(ctx, dbTx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock account: %w", err))
	}
	if account == nil || account.BusinessID != req.BusinessID {
		return nil, apperror.ErrAccountNotFound()
	}
	if !isCredit && account.Balance < req.Amount {
		return nil, apperror.ErrInsufficientBalance(account.Balance, req.Amount)
	}

	delta := req.Amount
	if !isCredit {
		delta = -req.Amount
	}
	newBalance, err := s.accountRepo.AdjustBalance(ctx, dbTx, accountID, delta)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("adjust balance: %w", err))
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:             uuid.New(),
		BusinessID:     req.BusinessID,
		Amount:         req.Amount,
		Type:           domain.TransactionType(req.TransactionType),
		Status:         domain.TransactionStatusSuccess,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
	}
	eventType := domain.EventDebitCreated
	if isCredit {
		txn.ToAccountID = &accountID
		eventType = domain.EventCreditCreated
	} else {
		txn.FromAccountID = &accountID
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}

	resp := &ports.CreditDebitResponse{
		TransactionID:   txn.ID.String(),
		AccountID:       accountID.String(),
		Amount:          req.Amount,
		Currency:        account.Currency,
		TransactionType: req.TransactionType,
		Status:          string(domain.TransactionStatusSuccess),
		NewBalance:      newBalance,
	}
	respJSON, err := json.Marshal(resp)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
	}

	if err := s.enqueueWebhookEvents(ctx, dbTx, req.BusinessID, eventType, respJSON, now); err != nil {
		return nil, err
	}
	if err := s.idempRepo.MarkSucceeded(ctx, dbTx, req.BusinessID, req.IdempotencyKey, respJSON); err != nil {
		return nil, apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.cacheResponse(ctx, req.BusinessID, req.IdempotencyKey, respJSON)

	s.log.Info().
		Str("transaction_id", txn.ID.String()).
		Str("business_id", req.BusinessID.String()).
		Str("type", req.TransactionType).
		Int64("amount", req.Amount).
		Int64("new_balance", newBalance).
		Msg("credit/debit completed")

	return resp, nil
}

// enqueueWebhookEvents fans the payload out to every active endpoint inside
// the ledger transaction, so events exist if and only if the movement
// committed.
func (s *LedgerServiceImpl) enqueueWebhookEvents(ctx context.Context, dbTx pgx.Tx, businessID uuid.UUID, eventType string, payload []byte, now time.Time) error {
	endpoints, err := s.webhookRepo.ListActiveEndpoints(ctx, dbTx, businessID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("list webhook endpoints: %w", err))
	}
	for _, ep := range endpoints {
		event := &domain.WebhookEvent{
			ID:         uuid.New(),
			EndpointID: ep.ID,
			EventType:  eventType,
			Payload:    payload,
			Status:     domain.WebhookEventStatusPending,
			CreatedAt:  now,
		}
		if err := s.webhookRepo.CreateEvent(ctx, dbTx, event); err != nil {
			return apperror.InternalError(fmt.Errorf("enqueue webhook event: %w", err))
		}
	}
	return nil
}

// replayFromCache answers a retry from Redis or the idempotency table
// without re-executing the movement. Redis errors degrade to a database
// read; both hits come back with the cached marker set.
func replayFromCache[T interface {
	ports.TransferResponse | ports.CreditDebitResponse
}](ctx context.Context, s *LedgerServiceImpl, businessID uuid.UUID, key string) (*T, error) {
	cacheKey := domain.BuildCacheKey(businessID, key)

	cached, err := s.idempCache.Get(ctx, cacheKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", cacheKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached == nil {
		record, err := s.idempRepo.Get(ctx, businessID, key)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
		}
		if record == nil || !record.IsReplayable() {
			return nil, nil
		}
		cached = record.ResponseBody
		s.cacheResponse(ctx, businessID, key, cached)
	}

	resp := new(T)
	if err := json.Unmarshal(cached, resp); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached response: %w", err))
	}
	switch r := any(resp).(type) {
	case *ports.TransferResponse:
		r.Cached = true
	case *ports.CreditDebitResponse:
		r.Cached = true
	}
	return resp, nil
}

// cacheResponse is best-effort; a Redis failure only costs later retries a
// database read.
func (s *LedgerServiceImpl) cacheResponse(ctx context.Context, businessID uuid.UUID, key string, respJSON []byte) {
	cacheKey := domain.BuildCacheKey(businessID, key)
	if err := s.idempCache.Set(ctx, cacheKey, respJSON, idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", cacheKey).Msg("failed to cache idempotent response in redis")
	}
}

// failReservation releases the idempotency key after a rollback so the
// caller can retry.
func (s *LedgerServiceImpl) failReservation(ctx context.Context, businessID uuid.UUID, key string) {
	if err := s.idempRepo.MarkFailed(ctx, businessID, key); err != nil {
		s.log.Error().Err(err).
			Str("business_id", businessID.String()).
			Str("key", key).
			Msg("failed to release idempotency reservation")
	}
}
