package middleware

import (
	"net/http"
	"time"

	"ledger-api/internal/core/ports"
	"ledger-api/internal/service"
	"ledger-api/pkg/apperror"
	"ledger-api/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// CtxBusinessID is the gin context key for the authenticated tenant.
	CtxBusinessID = "business_id"
)

// APIKeyAuth verifies the opaque API key carried in the Authorization header.
// The header value is hashed verbatim and looked up against stored digests,
// so plaintext keys never touch the database or the logs.
func APIKeyAuth(apiKeyRepo ports.APIKeyRepository, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawKey := c.GetHeader("Authorization")
		if rawKey == "" {
			response.Error(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}

		apiKey, err := apiKeyRepo.GetActiveByHash(c.Request.Context(), service.HashAPIKey(rawKey))
		if err != nil {
			log.Error().Err(err).Msg("failed to look up api key")
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}
		if apiKey == nil {
			response.Error(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}

		c.Set(CtxBusinessID, apiKey.BusinessID)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// MaxBodySize returns middleware that limits the request body size.
// Once the limit is exceeded the reader returns an error and the
// request is rejected with 413 Payload Too Large.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
