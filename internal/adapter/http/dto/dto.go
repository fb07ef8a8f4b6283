package dto

// SignupRequest is the request body for business signup.
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=128"`
	Name     string `json:"name" binding:"required,min=1,max=100"`
}

// SignupResponse is the response body for successful signup.
type SignupResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GenerateAPIKeyRequest is the request body for minting an API key.
type GenerateAPIKeyRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// GenerateAPIKeyResponse carries the plaintext key, shown exactly once.
type GenerateAPIKeyResponse struct {
	APIKey string `json:"api_key"`
}

// CreateAccountRequest is the request body for account provisioning.
type CreateAccountRequest struct {
	Currency string `json:"currency" binding:"required,len=3"`
}

// AccountResponse is the response body for a provisioned account.
type AccountResponse struct {
	ID       string `json:"id"`
	Currency string `json:"currency"`
	Balance  int64  `json:"balance"`
}

// TransferRequest is the request body for a transfer between accounts.
// Account IDs are validated as UUIDs in the service so malformed values
// produce the field-specific error message.
type TransferRequest struct {
	FromAccountID  string `json:"from_account_id" binding:"required"`
	ToAccountID    string `json:"to_account_id" binding:"required"`
	Amount         int64  `json:"amount" binding:"required"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,max=255"`
}

// CreditDebitRequest is the request body for a single-account movement.
type CreditDebitRequest struct {
	AccountID       string `json:"account_id" binding:"required"`
	Amount          int64  `json:"amount" binding:"required"`
	TransactionType string `json:"transaction_type" binding:"required"`
	IdempotencyKey  string `json:"idempotency_key" binding:"required,max=255"`
}

// RegisterWebhookRequest is the request body for webhook endpoint registration.
type RegisterWebhookRequest struct {
	URL    string `json:"url" binding:"required,safe_url,max=2048"`
	Secret string `json:"secret" binding:"required,min=8,max=255"`
}

// WebhookEndpointResponse is the response body for a webhook endpoint.
// The secret is never echoed back.
type WebhookEndpointResponse struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	URL        string `json:"url"`
	IsActive   bool   `json:"is_active"`
}

// AccountListingResponse is one entry of the public accounts listing.
type AccountListingResponse struct {
	ID            string  `json:"id"`
	BusinessID    string  `json:"business_id"`
	BusinessName  *string `json:"business_name"`
	BusinessEmail string  `json:"business_email"`
	Balance       int64   `json:"balance"`
	Currency      string  `json:"currency"`
}
