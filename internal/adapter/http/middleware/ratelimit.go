package middleware

import (
	"strconv"

	"ledger-api/config"
	redisStore "ledger-api/internal/adapter/storage/redis"
	"ledger-api/pkg/apperror"
	"ledger-api/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimiter creates a token-bucket rate-limiting middleware keyed by API
// key (or client IP for unauthenticated callers). Redis outages degrade to
// allowing the request; the limiter is protection, not a correctness layer.
func RateLimiter(store *redisStore.RateLimitStore, cfg config.RateLimitConfig, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := extractIdentifier(c)

		result, err := store.Allow(c.Request.Context(), identifier, float64(cfg.Rate), cfg.Burst)
		if err != nil {
			log.Warn().Err(err).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))

		if !result.Allowed {
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier determines the rate limit key source. The raw
// Authorization header works before authentication has run; unknown keys
// just rate-limit themselves.
func extractIdentifier(c *gin.Context) string {
	if key := c.GetHeader("Authorization"); key != "" {
		return key
	}
	return c.ClientIP()
}
