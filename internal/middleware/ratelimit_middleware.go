package middleware

import (
	"context"
	"net/http"
	"strconv"

	"cloudvault/internal/redis"
	"cloudvault/internal/services"
	"cloudvault/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// Limiter is satisfied by *redis.RateLimiter.
type Limiter interface {
	AllowKeyExchange(ctx context.Context, userID string) (*redis.RateLimitResult, error)
	AllowRotation(ctx context.Context, userID string) (*redis.RateLimitResult, error)
}

// KeyExchangeRateLimitMiddleware limits key exchange calls per user.
// Should be applied after auth middleware.
func KeyExchangeRateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return rateLimit(limiter.AllowKeyExchange, "key exchange rate limit exceeded")
}

// RotationRateLimitMiddleware limits key rotations per user.
func RotationRateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return rateLimit(limiter.AllowRotation, "key rotation rate limit exceeded")
}

func rateLimit(allow func(ctx context.Context, userID string) (*redis.RateLimitResult, error), message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := services.UserIDFromContext(c.Request.Context())
		if !ok {
			// No user context, skip rate limiting (auth middleware will handle)
			c.Next()
			return
		}

		result, err := allow(c.Request.Context(), userID.String())
		if err != nil {
			c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("rate limit error", httpdto.CodeInternal))
			c.Abort()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse(message, httpdto.CodeRateLimited))
			c.Abort()
			return
		}

		c.Next()
	}
}

// setRateLimitHeaders sets standard rate limit response headers
func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
