package middleware

import (
	"crypto/subtle"

	"github.com/GoPolymarket/polyfactory/internal/config"
	"github.com/GoPolymarket/polyfactory/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const HeaderAdminKey = "X-Admin-Key"

func AdminMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Auth.AdminKey == "" {
			c.Error(apperrors.New(apperrors.ErrAuthFailed, "admin key not configured", nil))
			c.Abort()
			return
		}
		got := c.GetHeader(HeaderAdminKey)
		if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.Auth.AdminKey)) != 1 {
			c.Error(apperrors.NewAuthFailed("invalid admin key"))
			c.Abort()
			return
		}
		c.Next()
	}
}
