package handler

import (
	"ledger-api/config"
	"ledger-api/internal/adapter/http/middleware"
	redisStore "ledger-api/internal/adapter/storage/redis"
	"ledger-api/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	LedgerSvc      ports.LedgerService
	WebhookSvc     ports.WebhookService
	AccountRepo    ports.AccountRepository
	APIKeyRepo     ports.APIKeyRepository
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	RateLimitCfg   config.RateLimitConfig
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (verifies PostgreSQL + Redis)
	r.GET("/", HealthCheck(deps.HealthCheckers...))

	// Rate limiter middleware, or a noop when Redis is not configured.
	var rl gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if deps.RateLimitStore != nil {
		rl = middleware.RateLimiter(deps.RateLimitStore, deps.RateLimitCfg, deps.Logger)
	}

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := r.Group("/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/generate-api-key", authHandler.GenerateAPIKey)
	}

	accountHandler := NewAccountHandler(deps.LedgerSvc, deps.AccountRepo)
	r.GET("/accounts", accountHandler.ListAccounts)

	// --- API-key-authenticated routes ---
	apiKeyAuth := middleware.APIKeyAuth(deps.APIKeyRepo, deps.Logger)

	accounts := r.Group("/accounts", apiKeyAuth, rl)
	{
		accounts.POST("/create", accountHandler.CreateAccount)
		accounts.POST("/transfer", accountHandler.Transfer)
		accounts.POST("/credit-debit", accountHandler.CreditDebit)
	}

	webhookHandler := NewWebhookHandler(deps.WebhookSvc)
	webhooks := r.Group("/webhooks", apiKeyAuth, rl)
	{
		webhooks.POST("/register", webhookHandler.Register)
		webhooks.GET("/list", webhookHandler.List)
	}

	return r
}
