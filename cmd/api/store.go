package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wms-platform/lot-ledger/internal/config"
	"github.com/wms-platform/lot-ledger/internal/domain"
	"github.com/wms-platform/lot-ledger/internal/infrastructure/memory"
	mongoStore "github.com/wms-platform/lot-ledger/internal/infrastructure/mongodb"
	"github.com/wms-platform/lot-ledger/internal/infrastructure/postgres"
	"github.com/wms-platform/lot-ledger/pkg/cloudevents"
	"github.com/wms-platform/lot-ledger/pkg/idempotency"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/metrics"
	pkgmongo "github.com/wms-platform/lot-ledger/pkg/mongodb"
	"github.com/wms-platform/lot-ledger/pkg/outbox"
	"github.com/wms-platform/lot-ledger/pkg/resilience"
)

// connectRetryConfig gives a database started alongside the service a few
// seconds to accept connections
func connectRetryConfig() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.RetryableErrors = func(err error) bool { return !errors.Is(err, context.Canceled) }
	return cfg
}

// backend is the storage selected by store.driver. Outbox and Keys are nil
// for the memory driver.
type backend struct {
	Store  domain.Store
	Outbox outbox.Repository
	Keys   idempotency.KeyRepository
	Ready  func(ctx context.Context) error
	Close  func(ctx context.Context)
}

func openBackend(ctx context.Context, cfg *config.Config, m *metrics.Metrics, eventFactory *cloudevents.EventFactory, logger *logging.Logger) (*backend, error) {
	switch cfg.Store.Driver {
	case config.DriverMongoDB:
		return openMongo(ctx, cfg, m, eventFactory, logger)
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, m, eventFactory, logger)
	case config.DriverMemory:
		logger.Warn("Using the in-memory store, data is lost on restart")
		return &backend{
			Store: memory.NewStore(),
			Ready: func(context.Context) error { return nil },
			Close: func(context.Context) {},
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func openMongo(ctx context.Context, cfg *config.Config, m *metrics.Metrics, eventFactory *cloudevents.EventFactory, logger *logging.Logger) (*backend, error) {
	mongoConfig := pkgmongo.DefaultConfig()
	mongoConfig.URI = cfg.MongoDB.URI
	mongoConfig.Database = cfg.MongoDB.Database

	var client *pkgmongo.Client
	err := resilience.Retry(ctx, connectRetryConfig(), func() error {
		var err error
		client, err = pkgmongo.NewClient(ctx, mongoConfig)
		return err
	})
	if err != nil {
		return nil, err
	}
	instrumented := pkgmongo.NewInstrumentedClient(client, m, logger)
	logger.Info("Connected to MongoDB", "database", mongoConfig.Database)

	store := mongoStore.NewStore(instrumented, eventFactory, logger, mongoStore.WithEventTopic(cfg.Kafka.Topic))
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = instrumented.Close(ctx)
		return nil, fmt.Errorf("failed to ensure ledger indexes: %w", err)
	}

	keys := idempotency.NewMongoKeyRepository(instrumented)
	if err := keys.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("Failed to initialize idempotency indexes")
	}

	return &backend{
		Store:  store,
		Outbox: store.Outbox(),
		Keys:   keys,
		Ready:  instrumented.HealthCheck,
		Close: func(ctx context.Context) {
			if err := instrumented.Close(ctx); err != nil {
				logger.WithError(err).Error("Failed to close MongoDB client")
			}
		},
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, m *metrics.Metrics, eventFactory *cloudevents.EventFactory, logger *logging.Logger) (*backend, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if cfg.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Postgres.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := resilience.Retry(ctx, connectRetryConfig(), func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	logger.Info("Connected to PostgreSQL", "database", poolConfig.ConnConfig.Database)

	if err := postgres.Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}

	store := postgres.NewStore(pool, eventFactory, m, logger, postgres.WithEventTopic(cfg.Kafka.Topic))
	return &backend{
		Store:  store,
		Outbox: store.Outbox(),
		Keys:   postgres.NewIdempotencyKeyRepository(pool),
		Ready:  store.HealthCheck,
		Close:  func(context.Context) { pool.Close() },
	}, nil
}
