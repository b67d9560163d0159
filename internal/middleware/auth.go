package middleware

import (
	"github.com/GoPolymarket/polyfactory/internal/pkg/logger"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const (
	HeaderAuthorization = "Authorization"
	ContextCallerKey    = "caller"
)

// AuthMiddleware requires a bearer session token and stores the caller
// address in the context.
func AuthMiddleware(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := auth.Authenticate(c.GetHeader(HeaderAuthorization))
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}
		c.Set(ContextCallerKey, caller)
		ctx := c.Request.Context()
		c.Request = c.Request.WithContext(logger.IntoContext(ctx, logger.FromContext(ctx).With("caller", caller.Hex())))
		c.Next()
	}
}

// Caller returns the authenticated address, if any.
func Caller(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(ContextCallerKey)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}
