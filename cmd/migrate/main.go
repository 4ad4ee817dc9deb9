// Command migrate prepares the configured store: it applies the SQL
// migrations on PostgreSQL and creates the indexes on MongoDB.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wms-platform/lot-ledger/internal/config"
	mongoStore "github.com/wms-platform/lot-ledger/internal/infrastructure/mongodb"
	"github.com/wms-platform/lot-ledger/internal/infrastructure/postgres"
	"github.com/wms-platform/lot-ledger/pkg/cloudevents"
	"github.com/wms-platform/lot-ledger/pkg/idempotency"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/metrics"
	pkgmongo "github.com/wms-platform/lot-ledger/pkg/mongodb"
)

var (
	configFile = flag.String("config", os.Getenv("LEDGER_CONFIG_FILE"), "Path to the config file")
	timeout    = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logging.New(logging.DefaultConfig("lot-ledger-migrate")).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig(cfg.ServiceName + "-migrate")
	logConfig.Level = logging.ParseLevel(cfg.Log.Level)
	logger := logging.New(logConfig)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		err = migratePostgres(ctx, cfg, logger)
	case config.DriverMongoDB:
		err = migrateMongo(ctx, cfg, logger)
	default:
		logger.Info("Nothing to migrate", "driver", cfg.Store.Driver)
		return
	}
	if err != nil {
		logger.WithError(err).Error("Migration failed", "driver", cfg.Store.Driver)
		os.Exit(1)
	}
	logger.Info("Migration completed", "driver", cfg.Store.Driver)
}

func migratePostgres(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	return postgres.Migrate(ctx, pool, logger)
}

func migrateMongo(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	mongoConfig := pkgmongo.DefaultConfig()
	mongoConfig.URI = cfg.MongoDB.URI
	mongoConfig.Database = cfg.MongoDB.Database

	client, err := pkgmongo.NewClient(ctx, mongoConfig)
	if err != nil {
		return err
	}
	instrumented := pkgmongo.NewInstrumentedClient(client, metrics.NewNop(), logger)
	defer func() { _ = instrumented.Close(context.Background()) }()

	store := mongoStore.NewStore(instrumented, cloudevents.NewEventFactory("/"+cfg.ServiceName), logger)
	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}
	logger.Info("Ledger indexes ensured", "database", mongoConfig.Database)

	if err := idempotency.NewMongoKeyRepository(instrumented).EnsureIndexes(ctx); err != nil {
		return err
	}
	logger.Info("Idempotency indexes ensured")
	return nil
}
