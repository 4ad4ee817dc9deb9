package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/lot-ledger/docs"
	"github.com/wms-platform/lot-ledger/internal/api/handlers"
	"github.com/wms-platform/lot-ledger/internal/application"
	"github.com/wms-platform/lot-ledger/internal/config"
	"github.com/wms-platform/lot-ledger/pkg/cloudevents"
	"github.com/wms-platform/lot-ledger/pkg/contracts/asyncapi"
	"github.com/wms-platform/lot-ledger/pkg/contracts/openapi"
	"github.com/wms-platform/lot-ledger/pkg/idempotency"
	"github.com/wms-platform/lot-ledger/pkg/kafka"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/metrics"
	"github.com/wms-platform/lot-ledger/pkg/middleware"
	"github.com/wms-platform/lot-ledger/pkg/outbox"
	"github.com/wms-platform/lot-ledger/pkg/tenant"
	"github.com/wms-platform/lot-ledger/pkg/tracing"
)

func main() {
	cfg, err := config.Load(os.Getenv("LEDGER_CONFIG_FILE"))
	if err != nil {
		logging.New(logging.DefaultConfig("lot-ledger")).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig(cfg.ServiceName)
	logConfig.Level = logging.ParseLevel(cfg.Log.Level)
	logConfig.Environment = cfg.Environment
	logConfig.Version = cfg.Version
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting lot ledger API", "driver", cfg.Store.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracingConfig := tracing.DefaultConfig(cfg.ServiceName)
	tracingConfig.ServiceVersion = cfg.Version
	tracingConfig.Environment = cfg.Environment
	tracingConfig.OTLPEndpoint = cfg.Tracing.Endpoint
	tracingConfig.SampleRate = cfg.Tracing.SampleRate
	tracingConfig.Enabled = cfg.Tracing.Enabled

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		// keep serving without traces
		logger.WithError(err).Error("Failed to initialize tracing")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		if tracingConfig.Enabled {
			logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
		}
	}

	m := metrics.New(metrics.DefaultConfig(cfg.ServiceName))

	eventFactory := cloudevents.NewEventFactory("/" + cfg.ServiceName)

	store, err := openBackend(ctx, cfg, m, eventFactory, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to open store")
		os.Exit(1)
	}
	defer store.Close(context.Background())

	if cfg.Kafka.Enabled && store.Outbox != nil {
		kafkaConfig := kafka.DefaultConfig()
		kafkaConfig.Brokers = cfg.Kafka.Brokers
		kafkaConfig.ClientID = cfg.ServiceName

		var producer kafka.EventPublisher = kafka.NewProductionProducer(kafkaConfig, m, logger)
		if cfg.Contracts.ValidateEvents {
			eventValidator, err := asyncapi.NewEventValidatorFromBytes(docs.AsyncAPI)
			if err != nil {
				logger.WithError(err).Error("Failed to load event contract")
				os.Exit(1)
			}
			producer = asyncapi.NewValidatingPublisher(producer, eventValidator)
		}
		defer producer.Close()
		logger.Info("Kafka producer initialized", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)

		publisher := outbox.NewPublisher(store.Outbox, producer, logger, m, &outbox.PublisherConfig{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
			Retention:    cfg.Outbox.Retention,
		})
		if err := publisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			os.Exit(1)
		}
		defer func() { _ = publisher.Stop() }()
		logger.Info("Outbox publisher started", "interval", cfg.Outbox.PollInterval)
	} else {
		logger.Warn("Event publishing disabled", "kafkaEnabled", cfg.Kafka.Enabled)
	}

	ledgerService := application.NewLedgerService(store.Store.Scope(), logger, m)
	services := handlers.Services{
		Items:     application.NewItemService(store.Store, logger),
		Movements: application.NewMovementService(ledgerService, store.Store, logger),
		Reports:   application.NewReportService(store.Store, logger),
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig(cfg.ServiceName)))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(cfg.ServiceName))
	router.GET("/ready", middleware.ReadinessCheck(cfg.ServiceName, func() error {
		readyCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return store.Ready(readyCtx)
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	api := router.Group("/api/v1")
	api.Use(middleware.OwnerAuth(&middleware.OwnerAuthConfig{
		Required:       cfg.Auth.RequireOwner,
		DefaultOwnerID: tenant.DefaultOwnerID,
	}))

	if cfg.Contracts.ValidateRequests {
		requestValidator, err := openapi.NewValidatorFromBytes(docs.OpenAPI)
		if err != nil {
			logger.WithError(err).Error("Failed to load HTTP contract")
			os.Exit(1)
		}
		api.Use(openapi.RequestValidator(requestValidator, logger.Logger))
	}

	if cfg.Idempotency.Enabled && store.Keys != nil {
		idempotencyConfig := idempotency.DefaultConfig(cfg.ServiceName, store.Keys)
		idempotencyConfig.RequireKey = cfg.Idempotency.Required
		idempotencyConfig.OwnerIDExtractor = middleware.GetOwnerID
		idempotencyConfig.Metrics = idempotency.NewMetrics(m.Registry())
		idempotencyConfig.Logger = logger.Logger
		api.Use(idempotency.Middleware(idempotencyConfig))

		go cleanIdempotencyKeys(ctx, store.Keys, logger)
		logger.Info("Idempotency enabled", "required", cfg.Idempotency.Required)
	}

	handlers.RegisterRoutes(api, services, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			cancel()
		}
	}()
	logger.Info("Server started", "addr", srv.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}

// cleanIdempotencyKeys purges expired keys every hour. Mongo also expires
// them through its TTL index.
func cleanIdempotencyKeys(ctx context.Context, keys idempotency.KeyRepository, logger *logging.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := keys.Clean(ctx, time.Now().UTC())
			if err != nil {
				logger.WithError(err).Warn("Failed to clean idempotency keys")
				continue
			}
			if removed > 0 {
				logger.Info("Cleaned idempotency keys", "removed", removed)
			}
		}
	}
}
