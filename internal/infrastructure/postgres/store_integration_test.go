package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"github.com/wms-platform/lot-ledger/internal/domain"
	"github.com/wms-platform/lot-ledger/internal/infrastructure/storetest"
	"github.com/wms-platform/lot-ledger/pkg/cloudevents"
	"github.com/wms-platform/lot-ledger/pkg/idempotency"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/metrics"
	testhelpers "github.com/wms-platform/lot-ledger/pkg/testing"
)

type PostgresStoreTestSuite struct {
	storetest.StoreSuite
	container *testhelpers.PostgresContainer
	pool      *pgxpool.Pool
	store     *Store
}

func TestPostgresStore(t *testing.T) {
	testhelpers.SkipIfShort(t)
	suite.Run(t, new(PostgresStoreTestSuite))
}

func (s *PostgresStoreTestSuite) SetupSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testhelpers.NewPostgresContainer(ctx)
	s.Require().NoError(err)
	s.container = container

	pool, err := pgxpool.New(ctx, container.DSN)
	s.Require().NoError(err)
	s.pool = pool

	s.Require().NoError(Migrate(ctx, pool, logging.NewNop()))
	// a second run finds nothing to apply
	s.Require().NoError(Migrate(ctx, pool, logging.NewNop()))

	s.store = NewStore(pool, cloudevents.NewEventFactory("/lot-ledger/test"), metrics.NewNop(), logging.NewNop())
	s.Store = s.store
}

func (s *PostgresStoreTestSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Close(context.Background())
	}
}

func (s *PostgresStoreTestSuite) outboxCount() int64 {
	var n int64
	err := s.pool.QueryRow(context.Background(),
		`SELECT count(*) FROM outbox_events WHERE aggregate_id = $1`, s.ItemID()).Scan(&n)
	s.Require().NoError(err)
	return n
}

func (s *PostgresStoreTestSuite) TestEventsCommitWithLedger() {
	before := s.outboxCount()

	// two entries commit, the oversized sale rolls back
	s.TestInsufficientStockWritesNothing()

	s.Equal(before+2, s.outboxCount())
}

func (s *PostgresStoreTestSuite) TestOutboxLifecycle() {
	ctx := context.Background()
	repo := s.store.Outbox()

	s.TestFIFOSaleAcrossLots()

	pending, err := repo.FindUnpublished(ctx, 1000)
	s.Require().NoError(err)
	s.Require().NotEmpty(pending)
	first := pending[0]
	s.Equal("ledger.movements.events", first.Topic)

	ce, err := first.ToCloudEvent()
	s.Require().NoError(err)
	s.Equal(first.EventType, ce.Type)

	s.Require().NoError(repo.IncrementRetry(ctx, first.ID, "broker down"))
	s.Require().NoError(repo.MarkPublished(ctx, first.ID, time.Now()))

	deleted, err := repo.DeletePublished(ctx, time.Now().Add(time.Minute))
	s.Require().NoError(err)
	s.GreaterOrEqual(deleted, int64(1))

	s.Error(repo.MarkPublished(ctx, first.ID, time.Now()))
}

func (s *PostgresStoreTestSuite) TestEventTopicOption() {
	ctx := context.Background()
	custom := *s.store
	WithEventTopic("ledger.custom.events")(&custom)

	aggregateID := domain.NewID()
	err := custom.Scope().Execute(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Events().Record(ctx, aggregateID, &domain.ItemCreatedEvent{
			ItemID: aggregateID, OwnerID: "owner-topic", Name: "Rice", SKU: "RICE-1", CreatedAt: time.Now().UTC(),
		})
	})
	s.Require().NoError(err)

	var topic string
	s.Require().NoError(s.pool.QueryRow(ctx, `SELECT topic FROM outbox_events WHERE aggregate_id = $1`, aggregateID).Scan(&topic))
	s.Equal("ledger.custom.events", topic)
}

func (s *PostgresStoreTestSuite) TestCostColumnsUseLedgerScale() {
	rows, err := s.pool.Query(context.Background(), `
		SELECT table_name::text, numeric_precision::int, numeric_scale::int
		FROM information_schema.columns
		WHERE column_name = 'unit_cost' AND table_name IN ('inventory_items', 'movements')`)
	s.Require().NoError(err)
	defer rows.Close()

	seen := 0
	for rows.Next() {
		var table string
		var precision, scale int32
		s.Require().NoError(rows.Scan(&table, &precision, &scale))
		s.Equal(int32(18), precision, table)
		s.Equal(int32(domain.CostScale), scale, table)
		seen++
	}
	s.Require().NoError(rows.Err())
	s.Equal(2, seen)
}

func (s *PostgresStoreTestSuite) TestIdempotencyKeys() {
	ctx := context.Background()
	repo := NewIdempotencyKeyRepository(s.pool)
	now := time.Now().UTC()

	candidate := func() *idempotency.IdempotencyKey {
		return &idempotency.IdempotencyKey{
			ID:                 uuid.NewString(),
			Key:                "retry-me",
			OwnerID:            s.ItemID(),
			ServiceID:          "lot-ledger",
			RequestPath:        "/api/v1/movements",
			RequestMethod:      "POST",
			RequestFingerprint: "abc",
			CreatedAt:          now,
			ExpiresAt:          now.Add(time.Hour),
		}
	}

	first, created, err := repo.AcquireLock(ctx, candidate())
	s.Require().NoError(err)
	s.True(created)
	s.True(first.IsLocked())

	again, created, err := repo.AcquireLock(ctx, candidate())
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, again.ID)
	s.True(again.IsLocked())

	s.Require().NoError(repo.StoreResponse(ctx, first.ID, 201, []byte(`{"data":{}}`), map[string]string{"X-Request-ID": "r-1"}))

	done, created, err := repo.AcquireLock(ctx, candidate())
	s.Require().NoError(err)
	s.False(created)
	s.True(done.IsCompleted())
	s.Equal(201, done.ResponseCode)
	s.JSONEq(`{"data":{}}`, string(done.ResponseBody))
	s.Equal("r-1", done.ResponseHeaders["X-Request-ID"])

	removed, err := repo.Clean(ctx, now.Add(2*time.Hour))
	s.Require().NoError(err)
	s.GreaterOrEqual(removed, int64(1))

	_, created, err = repo.AcquireLock(ctx, candidate())
	s.Require().NoError(err)
	s.True(created)
}
