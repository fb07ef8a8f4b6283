package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is a single-currency monetary account owned by a business.
// Balance is in integer minor units and is only mutated by the ledger
// engine inside a database transaction.
type Account struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	Currency   string    `json:"currency"`
	Balance    int64     `json:"balance"`
	CreatedAt  time.Time `json:"created_at"`
}
