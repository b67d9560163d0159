package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/config"
	cronrunner "github.com/GoPolymarket/polyfactory/internal/cron"
	"github.com/GoPolymarket/polyfactory/internal/handler"
	"github.com/GoPolymarket/polyfactory/internal/manager"
	"github.com/GoPolymarket/polyfactory/internal/middleware"
	"github.com/GoPolymarket/polyfactory/internal/pkg/logger"
	"github.com/GoPolymarket/polyfactory/internal/repository"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/GoPolymarket/polyfactory/internal/stream"
	"github.com/gin-gonic/gin"
)

func main() {
	// 0. Initialize Logger
	logger.Init("info")

	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 2. Initialize Persistence
	// PostgreSQL holds deployment state, events, audit and usage
	var db *repository.DB
	if cfg.Database.DSN != "" {
		db, err = repository.NewDB(cfg)
		if err == nil {
			logger.Info("✅ Connected to PostgreSQL")
		} else {
			logger.Error("⚠️ Failed to connect to DB, state will be memory-only", "error", err)
			db = nil
		}
	}

	// Redis carries usage counters, idempotency keys and the live event channel
	var rdb *repository.RedisClient
	if cfg.Redis.Addr != "" {
		rdb, err = repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("✅ Connected to Redis")
		} else {
			logger.Error("⚠️ Failed to connect to Redis, falling back", "error", err)
			rdb = nil
		}
	}

	var (
		stateStore  service.StateStore = service.NewMemoryStateStore()
		usageRepo   service.UsageRepo  = service.NewMemoryUsageStore()
		auditRepo   service.AuditRepo
		eventRepo   service.EventRepo
		idempotency middleware.IdempotencyStore
		retention   []cronrunner.Retention
		bus         *repository.RedisEventBus
	)
	memIdem := middleware.NewInMemIdempotencyStore()
	idempotency = memIdem
	retention = append(retention, cronrunner.Retention{
		Name:   "idempotency_mem",
		Store:  memIdem,
		Window: time.Duration(cfg.Database.IdempotencyRetentionHours) * time.Hour,
	})

	if db != nil {
		stateStore = repository.NewPostgresStateStore(db)
		events := repository.NewPostgresEventRepo(db)
		audit := repository.NewPostgresAuditRepo(db)
		usage := repository.NewPostgresUsageRepo(db)
		idem := repository.NewPostgresIdempotencyStore(db)
		eventRepo, auditRepo, usageRepo, idempotency = events, audit, usage, idem

		days := func(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }
		retention = append(retention,
			cronrunner.Retention{Name: "domain_events", Store: events, Window: days(cfg.Database.EventRetentionDays)},
			cronrunner.Retention{Name: "audit_logs", Store: audit, Window: days(cfg.Database.AuditRetentionDays)},
			cronrunner.Retention{Name: "deposit_daily_usage", Store: usage, Window: days(cfg.Database.UsageRetentionDays)},
			cronrunner.Retention{Name: "idempotency_keys", Store: idem, Window: time.Duration(cfg.Database.IdempotencyRetentionHours) * time.Hour},
		)
	}
	if rdb != nil {
		usageRepo = rdb
		idempotency = repository.NewRedisIdempotencyStore(rdb, time.Duration(cfg.Redis.IdempotencyTTLSeconds)*time.Second)
		bus = repository.NewRedisEventBus(rdb, cfg.Redis.EventListKey, cfg.Redis.EventListMax, cfg.Redis.EventChannel)
		if auditRepo == nil {
			auditRepo = repository.NewRedisAuditRepo(rdb, cfg.Redis.AuditListKey, cfg.Redis.AuditListMax)
		}
		if eventRepo == nil {
			eventRepo = bus
		}
	}

	// 3. Initialize Core Services
	hub := stream.NewHub()
	go hub.Run(ctx)

	var eventSvc *service.EventService
	if bus != nil {
		// every instance publishes to Redis and streams what comes back
		eventSvc = service.NewEventService(eventRepo, cfg.Events.BufferSize, cfg.Events.RingSize, bus)
		feed, err := bus.Subscribe(ctx)
		if err != nil {
			log.Fatalf("Failed to subscribe to event channel: %v", err)
		}
		go hub.Feed(ctx, feed)
	} else {
		eventSvc = service.NewEventService(eventRepo, cfg.Events.BufferSize, cfg.Events.RingSize, hub)
	}

	auditSvc, err := service.NewAuditService("./logs", auditRepo, 0)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}

	maxVolume, err := depositCap(cfg)
	if err != nil {
		log.Fatalf("Invalid risk config: %v", err)
	}
	guard := service.NewDepositGuard(usageRepo, maxVolume, cfg.Risk.MaxDailyDeposits)

	// 4. Deploy or Restore
	opts, err := deployOptions(cfg)
	if err != nil {
		log.Fatalf("Invalid deploy config: %v", err)
	}
	platform, err := service.Boot(ctx, opts, stateStore, eventSvc, guard)
	if err != nil {
		log.Fatalf("Failed to boot platform: %v", err)
	}
	dep := platform.Deployment()
	logger.Info("📜 Deployment ready",
		"network", dep.Network,
		"owner", dep.Owner.Hex(),
		"ledger", dep.Ledger.Hex(),
		"template", dep.Template.Hex(),
		"factory", dep.Factory.Hex(),
		"restored", dep.Restored,
		"markets", dep.Markets,
	)

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			log.Fatalf("Failed to generate session secret: %v", err)
		}
		secret = hex.EncodeToString(buf)
		logger.Warn("⚠️ auth.jwt_secret not set, sessions will not survive a restart")
	}
	nonces := manager.NewNonceManager(time.Duration(cfg.Auth.NonceTTLSeconds) * time.Second)
	authSvc, err := service.NewAuthService(nonces, secret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute, cfg.Auth.Issuer)
	if err != nil {
		log.Fatalf("Failed to initialize auth service: %v", err)
	}
	limiter := service.NewCallerLimiter(cfg.Risk.RateLimitQPS, cfg.Risk.RateLimitBurst)

	// 5. Schedule Maintenance
	cron := cronrunner.New(ctx)
	if _, err := cron.AddRetention(cfg.Database.CleanupSchedule, retention...); err != nil {
		log.Fatalf("Invalid cleanup schedule: %v", err)
	}
	if _, err := cron.AddPrune("@every 1m", "login_nonces", nonces.Prune); err != nil {
		log.Fatalf("Failed to schedule nonce pruning: %v", err)
	}
	if limiter != nil {
		if _, err := cron.AddPrune("@every 5m", "rate_limiters", func() int { return limiter.Prune(10 * time.Minute) }); err != nil {
			log.Fatalf("Failed to schedule limiter pruning: %v", err)
		}
	}
	cron.Start()

	// 6. Setup Router
	r := handler.NewRouter(handler.Deps{
		Config:      cfg,
		Platform:    platform,
		Auth:        authSvc,
		Events:      eventSvc,
		Audit:       auditSvc,
		Hub:         hub,
		Limiter:     limiter,
		Idempotency: idempotency,
	})

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 PolyFactory started", "port", cfg.Server.Port, "read_only", cfg.Server.ReadOnly)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	cron.Stop()
	stop()
	eventSvc.Close()
	auditSvc.Close()
	if rdb != nil {
		_ = rdb.Close()
	}
	if db != nil {
		_ = db.Close()
	}

	logger.Info("Server exiting")
}
