package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyStatus represents the reservation state of an idempotency key.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// IdempotencyKey is the per-tenant reservation record that deduplicates
// retries of the same logical write. ResponseBody holds the cached
// response once the operation has committed.
type IdempotencyKey struct {
	BusinessID   uuid.UUID         `json:"business_id"`
	Key          string            `json:"key"`
	Status       IdempotencyStatus `json:"status"`
	ResponseBody []byte            `json:"response_body,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// IsReplayable returns true if the stored row can answer a retry directly.
func (k *IdempotencyKey) IsReplayable() bool {
	return k.Status == IdempotencyStatusSuccess && len(k.ResponseBody) > 0
}

// BuildCacheKey constructs the Redis cache key for an idempotency record.
func BuildCacheKey(businessID uuid.UUID, key string) string {
	return businessID.String() + ":" + key
}
