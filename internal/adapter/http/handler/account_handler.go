package handler

import (
	"ledger-api/internal/adapter/http/dto"
	"ledger-api/internal/adapter/http/middleware"
	"ledger-api/internal/core/ports"
	"ledger-api/pkg/apperror"
	"ledger-api/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AccountHandler handles account provisioning, listing and ledger operations.
type AccountHandler struct {
	ledgerSvc   ports.LedgerService
	accountRepo ports.AccountRepository
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(ledgerSvc ports.LedgerService, accountRepo ports.AccountRepository) *AccountHandler {
	return &AccountHandler{ledgerSvc: ledgerSvc, accountRepo: accountRepo}
}

// CreateAccount handles POST /accounts/create.
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	businessID, ok := c.Get(middleware.CtxBusinessID)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	var req dto.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	account, err := h.ledgerSvc.CreateAccount(c.Request.Context(), businessID.(uuid.UUID), req.Currency)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.AccountResponse{
		ID:       account.ID.String(),
		Currency: account.Currency,
		Balance:  account.Balance,
	})
}

// Transfer handles POST /accounts/transfer.
func (h *AccountHandler) Transfer(c *gin.Context) {
	businessID, ok := c.Get(middleware.CtxBusinessID)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.ledgerSvc.Transfer(c.Request.Context(), ports.TransferRequest{
		BusinessID:     businessID.(uuid.UUID),
		FromAccountID:  req.FromAccountID,
		ToAccountID:    req.ToAccountID,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}

// CreditDebit handles POST /accounts/credit-debit.
func (h *AccountHandler) CreditDebit(c *gin.Context) {
	businessID, ok := c.Get(middleware.CtxBusinessID)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return
	}

	var req dto.CreditDebitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.ledgerSvc.CreditDebit(c.Request.Context(), ports.CreditDebitRequest{
		BusinessID:      businessID.(uuid.UUID),
		AccountID:       req.AccountID,
		Amount:          req.Amount,
		TransactionType: req.TransactionType,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}

// ListAccounts handles GET /accounts. Public; supports currency and
// business_id query filters.
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	var params ports.AccountListParams

	if currency := c.Query("currency"); currency != "" {
		params.Currency = &currency
	}
	if raw := c.Query("business_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, apperror.ErrInvalidID("business_id"))
			return
		}
		params.BusinessID = &id
	}

	listings, err := h.accountRepo.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.AccountListingResponse, 0, len(listings))
	for _, l := range listings {
		items = append(items, dto.AccountListingResponse{
			ID:            l.Account.ID.String(),
			BusinessID:    l.Account.BusinessID.String(),
			BusinessName:  l.BusinessName,
			BusinessEmail: l.BusinessEmail,
			Balance:       l.Account.Balance,
			Currency:      l.Account.Currency,
		})
	}

	response.OK(c, items)
}
