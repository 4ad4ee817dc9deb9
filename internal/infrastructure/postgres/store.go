// Package postgres implements the ledger store on PostgreSQL with pgx.
// Ledger transactions lock the item row with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/lot-ledger/internal/domain"
	"github.com/wms-platform/lot-ledger/pkg/cloudevents"
	"github.com/wms-platform/lot-ledger/pkg/kafka"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/metrics"
)

const driverName = "postgres"

// SQLSTATE codes the store reacts to
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// querier is satisfied by both the pool and a pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store implements domain.Store on PostgreSQL
type Store struct {
	pool         *pgxpool.Pool
	eventFactory *cloudevents.EventFactory
	topic        string
	metrics      *metrics.Metrics
	logger       *logging.Logger
}

// NewStore creates a Postgres store. The schema must already be migrated.
func NewStore(pool *pgxpool.Pool, eventFactory *cloudevents.EventFactory, m *metrics.Metrics, logger *logging.Logger, opts ...StoreOption) *Store {
	s := &Store{
		pool:         pool,
		eventFactory: eventFactory,
		metrics:      m,
		topic:        kafka.LedgerEventsTopic,
		logger:       logger.WithComponent("postgres-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithEventTopic sets the topic recorded on outbox events
func WithEventTopic(topic string) StoreOption {
	return func(s *Store) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// Outbox returns the outbox repository the publisher drains
func (s *Store) Outbox() *OutboxRepository {
	return newOutboxRepository(s.pool)
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Scope() domain.TransactionScope { return scope{s} }
func (s *Store) Items() domain.ItemReader       { return itemReader{s} }
func (s *Store) Movements() domain.MovementReader {
	return movementReader{s}
}
func (s *Store) Reports() domain.ReportRepository { return reports{s} }

func (s *Store) observe(table, op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	success := err == nil || errors.Is(err, pgx.ErrNoRows)
	s.metrics.RecordStoreOperation(driverName, table, op, success, time.Since(start))
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

func isConflict(err error) bool {
	switch sqlState(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}

// storeError translates driver errors into the ledger's error kinds
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConflict(err) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrTransactionConflict, err)
	}
	return domain.StorageError(op, err)
}

// numeric renders a decimal for a NUMERIC parameter. Strings are sent in
// text format, which avoids any float conversion.
func numeric(d decimal.Decimal) string {
	return d.String()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

const itemColumns = `id, owner_id, name, sku, profit_margin, on_hand_qty, unit_cost, last_entry_at, status, version, created_at, updated_at`

func scanItem(row pgx.Row) (*domain.InventoryItem, error) {
	var (
		item   domain.InventoryItem
		status string
	)
	err := row.Scan(&item.ID, &item.OwnerID, &item.Name, &item.SKU, &item.ProfitMargin,
		&item.OnHandQty, &item.UnitCost, &item.LastEntryAt, &status, &item.Version,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Status = domain.Status(status)
	item.LastEntryAt = utcPtr(item.LastEntryAt)
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

func collectItems(rows pgx.Rows) ([]*domain.InventoryItem, error) {
	defer rows.Close()
	items := make([]*domain.InventoryItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const movementColumns = `m.id, m.owner_id, m.item_id, m.type, m.quantity, m.unit_cost, m.batch_code, m.remaining_quantity, m.description, m.expiration_date, m.status, m.created_at, m.updated_at`

func movementTargets(m *domain.Movement, movementType, status *string) []any {
	return []any{&m.ID, &m.OwnerID, &m.ItemID, movementType, &m.Quantity, &m.UnitCost,
		&m.BatchCode, &m.RemainingQuantity, &m.Description, &m.ExpirationDate, status,
		&m.CreatedAt, &m.UpdatedAt}
}

func normalizeMovement(m *domain.Movement, movementType, status string) {
	m.Type = domain.MovementType(movementType)
	m.Status = domain.Status(status)
	m.ExpirationDate = utcPtr(m.ExpirationDate)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
}

func scanMovement(row pgx.Row) (*domain.Movement, error) {
	var (
		m                    domain.Movement
		movementType, status string
	)
	if err := row.Scan(movementTargets(&m, &movementType, &status)...); err != nil {
		return nil, err
	}
	normalizeMovement(&m, movementType, status)
	return &m, nil
}

func collectMovements(rows pgx.Rows) ([]*domain.Movement, error) {
	defer rows.Close()
	movements := make([]*domain.Movement, 0)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func collectRows(rows pgx.Rows) ([]domain.MovementRow, error) {
	defer rows.Close()
	out := make([]domain.MovementRow, 0)
	for rows.Next() {
		var (
			m                    domain.Movement
			movementType, status string
			productName          string
		)
		if err := rows.Scan(append(movementTargets(&m, &movementType, &status), &productName)...); err != nil {
			return nil, err
		}
		normalizeMovement(&m, movementType, status)
		out = append(out, domain.MovementRow{Movement: &m, ProductName: productName})
	}
	return out, rows.Err()
}

func findItem(ctx context.Context, q querier, where string, args ...any) (*domain.InventoryItem, error) {
	item, err := scanItem(q.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE `+where, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, storeError("find item", err)
	}
	return item, nil
}

func findMovement(ctx context.Context, q querier, notFound error, where string, args ...any) (*domain.Movement, error) {
	m, err := scanMovement(q.QueryRow(ctx, `SELECT `+movementColumns+` FROM movements m WHERE `+where, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, storeError("find movement", err)
	}
	return m, nil
}

func queryMovements(ctx context.Context, q querier, op, query string, args ...any) ([]*domain.Movement, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError(op, err)
	}
	movements, err := collectMovements(rows)
	if err != nil {
		return nil, storeError(op, err)
	}
	return movements, nil
}
