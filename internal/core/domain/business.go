package domain

import (
	"time"

	"github.com/google/uuid"
)

// Business represents a tenant that owns accounts and API keys.
type Business struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
}

// APIKey represents a hashed credential for a business.
// Only the SHA-256 digest of the presented key is ever stored.
type APIKey struct {
	ID         uuid.UUID `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	KeyHash    string    `json:"-"` // hex-encoded SHA-256, never expose
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}
