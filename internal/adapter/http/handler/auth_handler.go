package handler

import (
	"net/http"

	"ledger-api/internal/adapter/http/dto"
	"ledger-api/internal/core/ports"
	"ledger-api/pkg/apperror"
	"ledger-api/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles signup and API key endpoints.
type AuthHandler struct {
	authSvc ports.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc ports.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Signup handles POST /auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req dto.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	business, err := h.authSvc.Signup(c.Request.Context(), ports.SignupRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.SignupResponse{
		ID:    business.ID.String(),
		Email: business.Email,
		Name:  business.Name,
	})
}

// GenerateAPIKey handles POST /auth/generate-api-key. The plaintext key is
// returned once and never stored.
func (h *AuthHandler) GenerateAPIKey(c *gin.Context) {
	var req dto.GenerateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	plaintext, err := h.authSvc.GenerateAPIKey(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.GenerateAPIKeyResponse{APIKey: plaintext})
}

// HealthCheck handles GET / and reports connectivity per dependency.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{}
		healthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				body[checker.Name()] = "disconnected"
				healthy = false
			} else {
				body[checker.Name()] = "connected"
			}
		}

		httpCode := http.StatusOK
		if healthy {
			body["status"] = "healthy"
		} else {
			body["status"] = "unhealthy"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, body)
	}
}
