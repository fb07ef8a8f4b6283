package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"ledger-api/internal/core/domain"
	"ledger-api/internal/core/ports"
	"ledger-api/pkg/apperror"

	"github.com/google/uuid"
)

const apiKeyPrefix = "sk_live_"

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	businessRepo ports.BusinessRepository
	apiKeyRepo   ports.APIKeyRepository
	hashSvc      ports.HashService
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	businessRepo ports.BusinessRepository,
	apiKeyRepo ports.APIKeyRepository,
	hashSvc ports.HashService,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		businessRepo: businessRepo,
		apiKeyRepo:   apiKeyRepo,
		hashSvc:      hashSvc,
	}
}

// Signup creates a new business with an Argon2id password hash.
func (s *AuthServiceImpl) Signup(ctx context.Context, req ports.SignupRequest) (*domain.Business, error) {
	existing, err := s.businessRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check email: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrEmailExists()
	}

	passwordHash, err := s.hashSvc.Hash(req.Password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	business := &domain.Business{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: passwordHash,
		Name:         req.Name,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.businessRepo.Create(ctx, business); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create business: %w", err))
	}

	return business, nil
}

// GenerateAPIKey verifies credentials and mints a new API key. The plaintext
// key is returned exactly once; only its SHA-256 digest is persisted.
func (s *AuthServiceImpl) GenerateAPIKey(ctx context.Context, email, password string) (string, error) {
	business, err := s.businessRepo.GetByEmail(ctx, email)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("find business: %w", err))
	}
	if business == nil {
		return "", apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(password, business.PasswordHash)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return "", apperror.ErrInvalidCredentials()
	}

	plaintext, err := generateAPIKey()
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("generate api key: %w", err))
	}

	key := &domain.APIKey{
		ID:         uuid.New(),
		BusinessID: business.ID,
		KeyHash:    HashAPIKey(plaintext),
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.apiKeyRepo.Create(ctx, key); err != nil {
		return "", apperror.InternalError(fmt.Errorf("store api key: %w", err))
	}

	return plaintext, nil
}

// generateAPIKey mints sk_live_<64 hex chars> from 32 random bytes.
func generateAPIKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(raw), nil
}

// HashAPIKey returns the hex-encoded SHA-256 digest of a presented key.
// The auth middleware uses the same digest for lookups, so plaintext keys
// never touch storage.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
