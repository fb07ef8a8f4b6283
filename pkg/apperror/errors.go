package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
// Details carries operation-specific fields that are merged into the
// error body alongside the message (e.g. available/required balances).
type AppError struct {
	Code       string                 `json:"-"`
	Message    string                 `json:"error"`
	Details    map[string]interface{} `json:"-"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// WithDetails attaches extra fields to the error body.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// ---- Authentication (AUTH) ----

func ErrUnauthorized() *AppError {
	return New("AUTH_001", "Unauthorized", http.StatusUnauthorized)
}

func ErrInvalidCredentials() *AppError {
	return New("AUTH_002", "Invalid credentials", http.StatusUnauthorized)
}

func ErrEmailExists() *AppError {
	return New("AUTH_003", "Email already exists", http.StatusConflict)
}

// ---- Validation (VAL) ----

func ErrInvalidAmount() *AppError {
	return New("VAL_001", "Amount must be positive", http.StatusBadRequest)
}

// ErrInvalidID reports a malformed identifier, e.g. field "from_account_id".
func ErrInvalidID(field string) *AppError {
	return New("VAL_002", fmt.Sprintf("Invalid %s format", field), http.StatusBadRequest)
}

func ErrInvalidTransactionType() *AppError {
	return New("VAL_003", "Invalid transaction_type. Must be 'credit' or 'debit'", http.StatusBadRequest)
}

// Validation returns a generic request validation error.
func Validation(message string) *AppError {
	return New("VAL_000", message, http.StatusBadRequest)
}

// ---- Ledger domain (LED) ----

func ErrSourceAccountNotFound() *AppError {
	return New("LED_001", "Source account not found or does not belong to this business", http.StatusNotFound)
}

func ErrDestinationAccountNotFound() *AppError {
	return New("LED_002", "Destination account not found", http.StatusNotFound)
}

func ErrAccountNotFound() *AppError {
	return New("LED_003", "Account not found or does not belong to this business", http.StatusNotFound)
}

func ErrInsufficientBalance(available, required int64) *AppError {
	return New("LED_004", "Insufficient balance", http.StatusUnprocessableEntity).
		WithDetails(map[string]interface{}{
			"available": available,
			"required":  required,
		})
}

func ErrCurrencyMismatch(fromCurrency, toCurrency string) *AppError {
	return New("LED_005", "Currency mismatch", http.StatusBadRequest).
		WithDetails(map[string]interface{}{
			"from_currency": fromCurrency,
			"to_currency":   toCurrency,
		})
}

// ---- Idempotency (IDEM) ----

func ErrOperationInProgress() *AppError {
	return New("IDEM_001", "Operation in progress", http.StatusConflict)
}

func ErrOperationAlreadyCompleted() *AppError {
	return New("IDEM_002", "Operation already completed successfully", http.StatusConflict)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
