package handler

import (
	"net/http"

	"github.com/GoPolymarket/polyfactory/internal/config"
	"github.com/GoPolymarket/polyfactory/internal/middleware"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/GoPolymarket/polyfactory/internal/stream"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the HTTP surface is wired to.
type Deps struct {
	Config      *config.Config
	Platform    *service.Platform
	Auth        *service.AuthService
	Events      *service.EventService
	Audit       *service.AuditService
	Hub         *stream.Hub
	Limiter     *service.CallerLimiter
	Idempotency middleware.IdempotencyStore
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	// audit wraps the error handler so it records the rendered error
	if d.Audit != nil {
		r.Use(middleware.AuditMiddleware(d.Audit))
	}
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.ReadOnlyMiddleware(d.Config.Server.ReadOnly))

	r.GET("/health", func(c *gin.Context) {
		dep := d.Platform.Deployment()
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   "polyfactory",
			"network":   dep.Network,
			"factory":   dep.Factory,
			"markets":   dep.Markets,
			"read_only": d.Config.Server.ReadOnly,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := NewAuthHandler(d.Auth)
	ledger := NewLedgerHandler(d.Platform)
	fac := NewFactoryHandler(d.Platform)
	markets := NewMarketHandler(d.Platform)

	v1 := r.Group("/v1")
	{
		v1.GET("/auth/nonce", middleware.RateLimitMiddleware(d.Limiter), auth.Nonce)
		v1.POST("/auth/login", middleware.RateLimitMiddleware(d.Limiter), auth.Login)

		v1.GET("/reputation/:address", ledger.Reputation)
		v1.GET("/ledger", ledger.Info)
		v1.GET("/factory", fac.Info)
		v1.GET("/markets", markets.List)
		v1.GET("/markets/:id", markets.Get)
		v1.GET("/markets/:id/positions/:holder", markets.Position)
		if d.Hub != nil {
			v1.GET("/stream", gin.WrapF(d.Hub.ServeWS))
		}
	}

	writes := v1.Group("")
	writes.Use(middleware.AuthMiddleware(d.Auth))
	writes.Use(middleware.RateLimitMiddleware(d.Limiter))
	if d.Idempotency != nil {
		writes.Use(middleware.IdempotencyMiddleware(d.Idempotency))
	}
	{
		writes.POST("/ledger/writers", ledger.AddWriter)
		writes.DELETE("/ledger/writers/:address", ledger.RemoveWriter)
		writes.PUT("/factory/policy", fac.SetPolicy)
		writes.POST("/factory/tokens", fac.AcceptToken)
		writes.DELETE("/factory/tokens/:address", fac.RejectToken)
		writes.POST("/markets", markets.Create)
		writes.POST("/markets/:id/deposits", markets.Deposit)
		writes.POST("/markets/:id/proposals", markets.Propose)
		writes.POST("/markets/:id/finalize", markets.Finalize)
		writes.POST("/markets/:id/claims", markets.Claim)
	}

	if d.Events != nil && d.Audit != nil {
		admin := NewAdminHandler(d.Events, d.Audit)
		ag := v1.Group("/admin")
		ag.Use(middleware.AdminMiddleware(d.Config))
		ag.GET("/events", admin.Events)
		ag.GET("/audit", admin.Audit)
	}

	return r
}
