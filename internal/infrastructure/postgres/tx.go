package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/wms-platform/lot-ledger/internal/domain"
	"github.com/wms-platform/lot-ledger/pkg/outbox"
	"github.com/wms-platform/lot-ledger/pkg/tracing"
)

// itemAggregate is the CloudEvent subject prefix of ledger events
const itemAggregate = "inventory-item"

type scope struct {
	s *Store
}

// Execute runs fn in a READ COMMITTED transaction. Item rows are locked with
// FOR UPDATE, so concurrent operations on one item wait for each other. A
// deadlock or serialization failure is reported as domain.ErrTransactionConflict.
func (sc scope) Execute(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	ctx, span := otel.Tracer("postgres").Start(ctx, "postgres.transaction")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(tracing.DatabaseSpanAttributes("postgresql", sc.s.pool.Config().ConnConfig.Database, "transaction", "")...)

	start := time.Now()
	defer func() { sc.s.observe("transaction", "execute", start, err) }()

	pgTx, err := sc.s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return storeError("begin transaction", err)
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	if err := fn(ctx, &tx{s: sc.s, q: pgTx}); err != nil {
		return sc.conflict(err)
	}
	if err := pgTx.Commit(ctx); err != nil {
		return sc.conflict(storeError("commit", err))
	}
	return nil
}

func (sc scope) conflict(err error) error {
	if errors.Is(err, domain.ErrTransactionConflict) && sc.s.metrics != nil {
		sc.s.metrics.RecordTransactionConflict(driverName)
	}
	return err
}

type tx struct {
	s *Store
	q pgx.Tx
}

func (t *tx) Lots() domain.LotStore        { return lotStore{t.q} }
func (t *tx) Items() domain.ItemStore      { return itemStore{t.q} }
func (t *tx) Events() domain.EventRecorder { return eventRecorder{s: t.s, q: t.q} }

type lotStore struct {
	q querier
}

func (l lotStore) FindActiveEntries(ctx context.Context, ownerID, itemID string) ([]*domain.Movement, error) {
	return queryMovements(ctx, l.q, "find active entries", `
		SELECT `+movementColumns+` FROM movements m
		WHERE m.owner_id = $1 AND m.item_id = $2 AND m.type = 'ENTRY' AND m.status = 'ACTIVE'
		  AND m.remaining_quantity > 0
		ORDER BY m.created_at, m.id COLLATE "C"`, ownerID, itemID)
}

func (l lotStore) FindActiveEntryByBatch(ctx context.Context, ownerID, itemID, batchCode string) (*domain.Movement, error) {
	return findMovement(ctx, l.q, domain.ErrBatchNotFound,
		`m.owner_id = $1 AND m.item_id = $2 AND m.batch_code = $3 AND m.type = 'ENTRY' AND m.status = 'ACTIVE'`,
		ownerID, itemID, batchCode)
}

func (l lotStore) CreateMovement(ctx context.Context, m *domain.Movement) error {
	_, err := l.q.Exec(ctx, `
		INSERT INTO movements (id, owner_id, item_id, type, quantity, unit_cost, batch_code,
			remaining_quantity, description, expiration_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		m.ID, m.OwnerID, m.ItemID, string(m.Type), m.Quantity, numeric(m.UnitCost), m.BatchCode,
		m.RemainingQuantity, m.Description, utcPtr(m.ExpirationDate), string(m.Status),
		m.CreatedAt.UTC(), m.UpdatedAt.UTC())
	if err != nil {
		if sqlState(err) == codeUniqueViolation && constraintName(err) == "uniq_active_batch" {
			return domain.WithRef(domain.ErrDuplicateBatch, m.BatchCode)
		}
		return storeError("insert movement", err)
	}
	return nil
}

func (l lotStore) UpdateRemainingQuantity(ctx context.Context, movementID string, remaining int64) error {
	if remaining < 0 {
		return domain.StorageError("update remaining", fmt.Errorf("negative remaining %d for %s", remaining, movementID))
	}
	tag, err := l.q.Exec(ctx,
		`UPDATE movements SET remaining_quantity = $2 WHERE id = $1 AND status = 'ACTIVE'`,
		movementID, remaining)
	if err != nil {
		return storeError("update remaining", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.WithRef(domain.ErrMovementNotFound, movementID)
	}
	return nil
}

func (l lotStore) FindByID(ctx context.Context, ownerID, movementID string) (*domain.Movement, error) {
	return findMovement(ctx, l.q, domain.ErrMovementNotFound,
		`m.id = $1 AND m.owner_id = $2 AND m.status = 'ACTIVE'`, movementID, ownerID)
}

func (l lotStore) UpdateDetails(ctx context.Context, m *domain.Movement) error {
	tag, err := l.q.Exec(ctx, `
		UPDATE movements SET description = $2, expiration_date = $3, status = $4, updated_at = $5
		WHERE id = $1`,
		m.ID, m.Description, utcPtr(m.ExpirationDate), string(m.Status), m.UpdatedAt.UTC())
	if err != nil {
		return storeError("update movement", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.WithRef(domain.ErrMovementNotFound, m.ID)
	}
	return nil
}

type itemStore struct {
	q querier
}

func (i itemStore) Lock(ctx context.Context, ownerID, itemID string) (*domain.InventoryItem, error) {
	return findItem(ctx, i.q, `id = $1 AND owner_id = $2 AND status = 'ACTIVE' FOR UPDATE`, itemID, ownerID)
}

func (i itemStore) ApplyEntryEffect(ctx context.Context, itemID string, newCost decimal.Decimal, deltaQty int64, at time.Time) error {
	return i.update(ctx, itemID, `
		UPDATE inventory_items
		SET on_hand_qty = on_hand_qty + $2, unit_cost = $3, last_entry_at = $4, updated_at = $4, version = version + 1
		WHERE id = $1`, deltaQty, numeric(newCost), at.UTC())
}

func (i itemStore) ApplyConsumptionEffect(ctx context.Context, itemID string, deltaQty int64, newCost *decimal.Decimal, at time.Time) error {
	if newCost == nil {
		return i.update(ctx, itemID, `
			UPDATE inventory_items
			SET on_hand_qty = on_hand_qty - $2, updated_at = $3, version = version + 1
			WHERE id = $1`, deltaQty, at.UTC())
	}
	return i.update(ctx, itemID, `
		UPDATE inventory_items
		SET on_hand_qty = on_hand_qty - $2, unit_cost = $3, updated_at = $4, version = version + 1
		WHERE id = $1`, deltaQty, numeric(*newCost), at.UTC())
}

func (i itemStore) update(ctx context.Context, itemID, query string, args ...any) error {
	tag, err := i.q.Exec(ctx, query, append([]any{itemID}, args...)...)
	if err != nil {
		return storeError("update item", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.WithRef(domain.ErrItemNotFound, itemID)
	}
	return nil
}

func (i itemStore) Create(ctx context.Context, item *domain.InventoryItem) error {
	_, err := i.q.Exec(ctx, `
		INSERT INTO inventory_items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		item.ID, item.OwnerID, item.Name, item.SKU, numeric(item.ProfitMargin), item.OnHandQty,
		numeric(item.UnitCost), utcPtr(item.LastEntryAt), string(item.Status), item.Version,
		item.CreatedAt.UTC(), item.UpdatedAt.UTC())
	if err != nil {
		if sqlState(err) == codeUniqueViolation && constraintName(err) == "uniq_active_sku" {
			return domain.ErrDuplicateSKU
		}
		return storeError("insert item", err)
	}
	return nil
}

func (i itemStore) UpdateDetails(ctx context.Context, item *domain.InventoryItem) error {
	err := i.update(ctx, item.ID, `
		UPDATE inventory_items
		SET name = $2, sku = $3, profit_margin = $4, status = $5, updated_at = $6, version = version + 1
		WHERE id = $1`,
		item.Name, item.SKU, numeric(item.ProfitMargin), string(item.Status), item.UpdatedAt.UTC())
	if sqlState(err) == codeUniqueViolation {
		return domain.ErrDuplicateSKU
	}
	return err
}

type eventRecorder struct {
	s *Store
	q querier
}

// Record writes CloudEvent-wrapped events to outbox_events in the ledger transaction
func (r eventRecorder) Record(ctx context.Context, aggregateID string, events ...domain.DomainEvent) error {
	outboxEvents := make([]*outbox.OutboxEvent, 0, len(events))
	for _, event := range events {
		ce := r.s.eventFactory.FromDomainEvent(ctx, itemAggregate, aggregateID, event)
		oe, err := outbox.NewOutboxEvent(itemAggregate, aggregateID, r.s.topic, ce)
		if err != nil {
			return domain.StorageError("encode event", err)
		}
		outboxEvents = append(outboxEvents, oe)
	}
	if err := newOutboxRepository(r.q).Save(ctx, outboxEvents...); err != nil {
		return storeError("save outbox events", err)
	}
	return nil
}
