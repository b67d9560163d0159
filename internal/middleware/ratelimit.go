package middleware

import (
	"github.com/GoPolymarket/polyfactory/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyfactory/internal/pkg/metrics"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware limits per authenticated caller, falling back to the
// client IP when it runs ahead of AuthMiddleware.
func RateLimitMiddleware(l *service.CallerLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if caller, ok := Caller(c); ok {
			key = caller.Hex()
		}
		if !l.Allow(key) {
			metrics.Rejects.WithLabelValues(string(apperrors.ErrRateLimited)).Inc()
			c.Header("Retry-After", "1")
			c.Error(apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
