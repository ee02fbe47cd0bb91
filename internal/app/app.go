package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/terangashop/server/cmd/server/docs" // swagger docs
	"github.com/terangashop/server/internal/module/audit"
	"github.com/terangashop/server/internal/module/notification"
	"github.com/terangashop/server/internal/module/order"
	"github.com/terangashop/server/internal/module/payment"
	sharedcache "github.com/terangashop/server/internal/shared/cache"
	"github.com/terangashop/server/internal/shared/config"
	"github.com/terangashop/server/internal/shared/database"
	"github.com/terangashop/server/internal/shared/events"
	"github.com/terangashop/server/internal/shared/httpclient"
	"github.com/terangashop/server/internal/shared/logger"
	"github.com/terangashop/server/internal/shared/metrics"
	"github.com/terangashop/server/internal/shared/middleware"
)

// expirySweepInterval is how often pending orders are checked for expiry.
const expirySweepInterval = time.Minute

// App wires together the shop's modules and owns their lifecycle.
type App struct {
	config  *config.Config
	db      *gorm.DB
	redis   redis.UniversalClient
	router  *gin.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics

	eventBus *events.Bus

	// Handlers
	orderHandler   *order.Handler
	paymentHandler *payment.Handler
	webhookHandler *payment.WebhookHandler
	auditHandler   *audit.Handler

	// Services (for cross-module dependencies and workers)
	orderService   *order.Service
	paymentService *payment.Service

	stopExpiry chan struct{}
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	app := &App{
		config:     cfg,
		logger:     log,
		metrics:    metrics.New(nil),
		stopExpiry: make(chan struct{}),
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if err := db.AutoMigrate(
		&order.Order{},
		&order.OrderItem{},
		&payment.Payment{},
		&payment.WebhookEvent{},
		&audit.LogEntry{},
		&notification.Notification{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	// Redis is optional: idempotency caching and the notification queue
	// degrade gracefully without it.
	if cfg.Redis.Address != "" {
		redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("redis connection failed, continuing without it", zap.Error(err))
		} else {
			app.redis = redisClient
		}
	}

	app.router = app.setupRouter()

	if err := app.initModules(); err != nil {
		return nil, fmt.Errorf("init modules: %w", err)
	}

	app.registerRoutes()
	go app.runExpiryWorker()

	return app, nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	return r
}

// initModules initializes all application modules.
func (a *App) initModules() error {
	a.eventBus = events.NewBus(a.logger)

	// Audit module
	var archiver *audit.Archiver
	if a.config.Audit.Archive.Enabled {
		arc, err := audit.NewArchiver(context.Background(), &a.config.Audit.Archive)
		if err != nil {
			return fmt.Errorf("create audit archiver: %w", err)
		}
		archiver = arc
	}
	auditRepo := audit.NewRepository(a.db)
	recorder := audit.NewRecorder(auditRepo, archiver, a.metrics, a.logger)
	a.auditHandler = audit.NewHandler(auditRepo)

	// Order module
	orderRepo := order.NewRepository(a.db)
	a.orderService = order.NewService(orderRepo, a.metrics, a.logger)
	a.orderHandler = order.NewHandler(a.orderService)

	// Notification module reacts to payment events published on the bus.
	notificationRepo := notification.NewRepository(a.db)
	dispatcher := notification.NewDispatcher(notificationRepo, a.redis, a.metrics, a.logger)
	a.eventBus.Register(dispatcher)

	// Payment module
	registry, err := payment.NewRegistry(
		a.config,
		httpclient.New(a.config.HTTPClient),
		a.metrics,
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("create provider registry: %w", err)
	}

	paymentRepo := payment.NewRepository(a.db)
	a.paymentService = payment.NewService(
		paymentRepo,
		a.orderService,
		registry,
		recorder,
		a.eventBus,
		a.metrics,
		a.logger,
		a.config.Server.PublicBaseURL,
		a.config.Payment.OrderExpiry,
	)
	a.paymentHandler = payment.NewHandler(a.paymentService)
	a.webhookHandler = payment.NewWebhookHandler(a.paymentService, a.logger)

	return nil
}

// registerRoutes registers routes for all modules.
func (a *App) registerRoutes() {
	v1 := a.router.Group("/api/v1")

	// Public routes. Checkout is replay-protected when Redis is available.
	publicRouter := v1.Group("")
	if a.redis != nil {
		publicRouter.Use(middleware.Idempotency(a.redis, middleware.DefaultIdempotencyConfig()))
	}
	a.orderHandler.RegisterRoutes(publicRouter)
	a.paymentHandler.RegisterRoutes(publicRouter)

	// Admin routes (refunds, audit log queries)
	adminRouter := v1.Group("/admin")
	adminRouter.Use(middleware.AdminAuth(a.config.Auth.JWTSecret))
	a.paymentHandler.RegisterAdminRoutes(adminRouter)
	a.auditHandler.RegisterRoutes(adminRouter)

	// Webhook routes rely on provider signature verification, not auth.
	webhookRouter := a.router.Group("/webhooks")
	a.webhookHandler.RegisterRoutes(webhookRouter)
}

// runExpiryWorker periodically cancels pending orders whose checkout window
// has lapsed.
func (a *App) runExpiryWorker() {
	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := a.orderService.ExpirePendingOrders(ctx)
			cancel()
			if err != nil {
				a.logger.Error("expire pending orders", zap.Error(err))
				continue
			}
			if n > 0 {
				a.logger.Info("expired pending orders", zap.Int("count", n))
			}
		case <-a.stopExpiry:
			return
		}
	}
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop stops the application and releases resources.
func (a *App) Stop() {
	close(a.stopExpiry)

	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = database.Close(a.db)
	}
}
