package handler

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/auth-session-service/internal/dto"
	"github.com/prperemyshlev/auth-session-service/internal/service"
	"go.uber.org/zap"
)

// Limiter decides whether a request fits its window
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (service.RateLimitDecision, error)
}

// RateLimitMiddleware creates a rate limiting middleware. Keys are scoped by
// name so that each endpoint has its own budget. When the limiter is
// unavailable requests are let through.
func RateLimitMiddleware(limiter Limiter, name string, limit int, window time.Duration, keyFunc func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := name + ":" + keyFunc(c)

		decision, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.Warn("Rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Error:   "Too Many Requests",
				Message: "Rate limit exceeded, please try again later",
				Code:    CodeRateLimited,
			})
			return
		}

		c.Next()
	}
}

// IPBasedKey extracts rate limit key from client IP. Forwarding headers are
// honored only for the engine's trusted proxies.
func IPBasedKey(c *gin.Context) string {
	return c.ClientIP()
}
