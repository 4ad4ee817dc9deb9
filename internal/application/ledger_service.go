package application

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/lot-ledger/internal/domain"
	"github.com/wms-platform/lot-ledger/pkg/errors"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/metrics"
	"github.com/wms-platform/lot-ledger/pkg/tracing"
)

// LedgerResult is the committed movement, the item state it produced and
// the lots it drew down
type LedgerResult struct {
	Movement *domain.Movement
	Item     *domain.InventoryItem
	LotsUsed []domain.LotConsumption
}

// LedgerService is the ledger engine: every operation runs in exactly one
// transaction, holds the item lock for its whole duration and mutates the
// aggregate last. Nothing here retries; TRANSACTION_CONFLICT is returned to
// the caller, who may repeat the whole operation.
type LedgerService struct {
	scope   domain.TransactionScope
	logger  *logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// LedgerOption configures a LedgerService
type LedgerOption func(*LedgerService)

// WithClock replaces the wall clock, used by tests to pin movement timestamps
func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerService) {
		s.now = now
	}
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(scope domain.TransactionScope, logger *logging.Logger, m *metrics.Metrics, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		scope:   scope,
		logger:  logger.WithComponent("ledger"),
		metrics: m,
		tracer:  otel.Tracer("lot-ledger/ledger"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Entry records a new lot and folds its cost into the item's weighted average
func (s *LedgerService) Entry(ctx context.Context, cmd EntryCommand) (*LedgerResult, error) {
	now := s.now()
	movement, err := domain.NewEntryMovement(cmd.OwnerID, cmd.ItemID, cmd.BatchCode, cmd.Quantity, cmd.UnitCost, cmd.Description, cmd.ExpirationDate, now)
	if err != nil {
		return nil, toAppError(err)
	}

	return s.execute(ctx, movement, func(ctx context.Context, tx domain.Tx, item *domain.InventoryItem) (*LedgerResult, error) {
		if err := item.CanReceive(movement.Quantity); err != nil {
			return nil, err
		}
		lots := tx.Lots()

		_, err := lots.FindActiveEntryByBatch(ctx, cmd.OwnerID, cmd.ItemID, movement.BatchCode)
		switch {
		case err == nil:
			return nil, domain.WithRef(domain.ErrDuplicateBatch, movement.BatchCode)
		case !stderrors.Is(err, domain.ErrBatchNotFound):
			return nil, err
		}

		snapshot, err := lots.FindActiveEntries(ctx, cmd.OwnerID, cmd.ItemID)
		if err != nil {
			return nil, err
		}

		if err := lots.CreateMovement(ctx, movement); err != nil {
			return nil, err
		}

		newCost := domain.WeightedAverageCost(domain.LotsFromMovements(snapshot), movement.Quantity, movement.UnitCost)
		s.metrics.RecordCostRecompute(movement.Type.String())

		if err := tx.Items().ApplyEntryEffect(ctx, item.ID, newCost, movement.Quantity, now); err != nil {
			return nil, err
		}
		item.ApplyEntry(newCost, movement.Quantity, now)

		return &LedgerResult{Movement: movement, Item: item}, nil
	})
}

// Sale consumes stock in FIFO order. The item cost is recomputed from the
// remaining lots only when the sale spanned more than one lot.
func (s *LedgerService) Sale(ctx context.Context, cmd SaleCommand) (*LedgerResult, error) {
	now := s.now()
	movement, err := domain.NewConsumptionMovement(domain.MovementSale, cmd.OwnerID, cmd.ItemID, "", cmd.Quantity, cmd.UnitCost, cmd.Description, now)
	if err != nil {
		return nil, toAppError(err)
	}

	return s.execute(ctx, movement, func(ctx context.Context, tx domain.Tx, item *domain.InventoryItem) (*LedgerResult, error) {
		used, multiple, err := s.consume(ctx, tx, cmd.OwnerID, cmd.ItemID, cmd.Quantity)
		if err != nil {
			return nil, err
		}
		s.metrics.ObserveLotsPerSale(len(used))

		movement.BatchCode = domain.BatchSummary(used)
		if err := tx.Lots().CreateMovement(ctx, movement); err != nil {
			return nil, err
		}

		var newCost *decimal.Decimal
		if multiple {
			if newCost, err = s.recomputeCost(ctx, tx, movement); err != nil {
				return nil, err
			}
		}

		if err := tx.Items().ApplyConsumptionEffect(ctx, item.ID, movement.Quantity, newCost, now); err != nil {
			return nil, err
		}
		item.ApplyConsumption(movement.Quantity, newCost, now)

		return &LedgerResult{Movement: movement, Item: item, LotsUsed: used}, nil
	})
}

// Exit removes stock from one named lot. The movement carries the lot's
// cost, and the item cost is recomputed only when the lot is emptied.
func (s *LedgerService) Exit(ctx context.Context, cmd ExitCommand) (*LedgerResult, error) {
	now := s.now()
	movement, err := domain.NewConsumptionMovement(domain.MovementExit, cmd.OwnerID, cmd.ItemID, cmd.BatchCode, cmd.Quantity, decimal.Zero, cmd.Description, now)
	if err != nil {
		return nil, toAppError(err)
	}
	if strings.TrimSpace(cmd.BatchCode) == "" {
		return nil, toAppError(domain.NewValidationError("batchCode", "is required"))
	}

	return s.execute(ctx, movement, func(ctx context.Context, tx domain.Tx, item *domain.InventoryItem) (*LedgerResult, error) {
		lot, err := s.findLot(ctx, tx, cmd.OwnerID, cmd.ItemID, cmd.BatchCode)
		if err != nil {
			return nil, err
		}

		newRemaining := lot.RemainingQuantity - cmd.Quantity
		if newRemaining < 0 {
			return nil, domain.NewLotShortfall(lot.BatchCode, cmd.Quantity, lot.RemainingQuantity)
		}
		if err := tx.Lots().UpdateRemainingQuantity(ctx, lot.ID, newRemaining); err != nil {
			return nil, err
		}

		movement.BatchCode = lot.BatchCode
		movement.UnitCost = lot.UnitCost
		if err := tx.Lots().CreateMovement(ctx, movement); err != nil {
			return nil, err
		}

		var newCost *decimal.Decimal
		if newRemaining == 0 {
			if newCost, err = s.recomputeCost(ctx, tx, movement); err != nil {
				return nil, err
			}
		}

		if err := tx.Items().ApplyConsumptionEffect(ctx, item.ID, movement.Quantity, newCost, now); err != nil {
			return nil, err
		}
		item.ApplyConsumption(movement.Quantity, newCost, now)

		used := []domain.LotConsumption{{MovementID: lot.ID, BatchCode: lot.BatchCode, Quantity: movement.Quantity}}
		return &LedgerResult{Movement: movement, Item: item, LotsUsed: used}, nil
	})
}

// Expire writes off a lot: its remaining quantity drops to zero whatever
// quantity was requested, and the item cost is recomputed from the other lots.
func (s *LedgerService) Expire(ctx context.Context, cmd ExpireCommand) (*LedgerResult, error) {
	now := s.now()
	movement, err := domain.NewConsumptionMovement(domain.MovementExpiration, cmd.OwnerID, cmd.ItemID, cmd.BatchCode, cmd.Quantity, cmd.UnitCost, cmd.Description, now)
	if err != nil {
		return nil, toAppError(err)
	}
	if strings.TrimSpace(cmd.BatchCode) == "" {
		return nil, toAppError(domain.NewValidationError("batchCode", "is required"))
	}

	return s.execute(ctx, movement, func(ctx context.Context, tx domain.Tx, item *domain.InventoryItem) (*LedgerResult, error) {
		lot, err := s.findLot(ctx, tx, cmd.OwnerID, cmd.ItemID, cmd.BatchCode)
		if err != nil {
			return nil, err
		}
		if cmd.Quantity > lot.RemainingQuantity {
			return nil, domain.NewLotShortfall(lot.BatchCode, cmd.Quantity, lot.RemainingQuantity)
		}

		written := lot.RemainingQuantity
		if err := tx.Lots().UpdateRemainingQuantity(ctx, lot.ID, 0); err != nil {
			return nil, err
		}

		movement.BatchCode = lot.BatchCode
		if err := tx.Lots().CreateMovement(ctx, movement); err != nil {
			return nil, err
		}

		newCost, err := s.recomputeCost(ctx, tx, movement)
		if err != nil {
			return nil, err
		}

		// KNOWN DEVIATION: the lot loses its whole remaining balance but the
		// item only loses the requested quantity, so a partial expiration
		// leaves onHandQty above the sum of the lots by (remaining - quantity).
		if err := tx.Items().ApplyConsumptionEffect(ctx, item.ID, movement.Quantity, newCost, now); err != nil {
			return nil, err
		}
		item.ApplyConsumption(movement.Quantity, newCost, now)

		if written != movement.Quantity {
			s.logger.WithContext(ctx).Warn("Partial expiration zeroed lot",
				"itemId", item.ID,
				"batchCode", lot.BatchCode,
				"requested", movement.Quantity,
				"lotRemaining", written,
			)
		}

		used := []domain.LotConsumption{{MovementID: lot.ID, BatchCode: lot.BatchCode, Quantity: written}}
		return &LedgerResult{Movement: movement, Item: item, LotsUsed: used}, nil
	})
}

// consume takes qty units from the item's lots in FIFO order, persisting
// each decrement. On a shortfall it returns ErrInsufficientStock and the
// decrements already written are discarded with the transaction.
func (s *LedgerService) consume(ctx context.Context, tx domain.Tx, ownerID, itemID string, qty int64) ([]domain.LotConsumption, bool, error) {
	lots, err := tx.Lots().FindActiveEntries(ctx, ownerID, itemID)
	if err != nil {
		return nil, false, err
	}

	pending := qty
	used := make([]domain.LotConsumption, 0, 1)
	for _, lot := range lots {
		if pending == 0 {
			break
		}

		taken := lot.Take(pending)
		if taken == 0 {
			continue
		}
		if err := tx.Lots().UpdateRemainingQuantity(ctx, lot.ID, lot.RemainingQuantity); err != nil {
			return nil, false, err
		}

		used = append(used, domain.LotConsumption{MovementID: lot.ID, BatchCode: lot.BatchCode, Quantity: taken})
		pending -= taken
	}

	if pending > 0 {
		return nil, false, domain.ErrInsufficientStock
	}
	return used, len(used) > 1, nil
}

func (s *LedgerService) findLot(ctx context.Context, tx domain.Tx, ownerID, itemID, batchCode string) (*domain.Movement, error) {
	lot, err := tx.Lots().FindActiveEntryByBatch(ctx, ownerID, itemID, strings.TrimSpace(batchCode))
	if err != nil {
		if stderrors.Is(err, domain.ErrBatchNotFound) {
			return nil, domain.WithRef(domain.ErrBatchNotFound, batchCode)
		}
		return nil, err
	}
	// an exhausted lot can no longer be targeted
	if lot.RemainingQuantity == 0 {
		return nil, domain.WithRef(domain.ErrBatchNotFound, batchCode)
	}
	return lot, nil
}

// recomputeCost returns the weighted average of the lots that still hold stock
func (s *LedgerService) recomputeCost(ctx context.Context, tx domain.Tx, movement *domain.Movement) (*decimal.Decimal, error) {
	remaining, err := tx.Lots().FindActiveEntries(ctx, movement.OwnerID, movement.ItemID)
	if err != nil {
		return nil, err
	}
	cost := domain.WeightedAverageCost(domain.LotsFromMovements(remaining), 0, decimal.Zero)
	s.metrics.RecordCostRecompute(movement.Type.String())
	return &cost, nil
}

type ledgerFunc func(ctx context.Context, tx domain.Tx, item *domain.InventoryItem) (*LedgerResult, error)

// execute locks the item, runs fn and records the movement event inside one
// transaction, then reports the outcome
func (s *LedgerService) execute(ctx context.Context, movement *domain.Movement, fn ledgerFunc) (*LedgerResult, error) {
	movementType := movement.Type.String()
	ctx, span := s.tracer.Start(ctx, "ledger."+strings.ToLower(movementType),
		trace.WithAttributes(tracing.LedgerSpanAttributes(movement.OwnerID, movement.ItemID, movementType, movement.Quantity)...),
	)
	defer span.End()

	var result *LedgerResult
	err := s.scope.Execute(ctx, func(ctx context.Context, tx domain.Tx) error {
		item, err := tx.Items().Lock(ctx, movement.OwnerID, movement.ItemID)
		if err != nil {
			if stderrors.Is(err, domain.ErrItemNotFound) {
				return domain.WithRef(domain.ErrItemNotFound, movement.ItemID)
			}
			return err
		}

		r, err := fn(ctx, tx, item)
		if err != nil {
			return err
		}

		event := domain.NewMovementRecordedEvent(r.Movement, r.Item, r.LotsUsed)
		if err := tx.Events().Record(ctx, r.Item.ID, event); err != nil {
			return err
		}

		result = r
		return nil
	})
	if err != nil {
		appErr := toAppError(err)
		s.metrics.RecordMovement(movementType, appErr.Code, movement.Quantity)
		span.RecordError(err)
		span.SetStatus(codes.Error, appErr.Code)
		s.logFailure(ctx, movement, appErr)
		return nil, appErr
	}

	s.metrics.RecordMovement(movementType, "success", movement.Quantity)
	s.logger.Movement(ctx, movementType, result.Item.ID, result.Movement.BatchCode, result.Movement.Quantity,
		formatCost(result.Movement.UnitCost), result.Item.OnHandQty, formatCost(result.Item.UnitCost))
	return result, nil
}

func (s *LedgerService) logFailure(ctx context.Context, movement *domain.Movement, appErr *errors.AppError) {
	logger := s.logger.WithContext(ctx).WithOperation("record-" + strings.ToLower(movement.Type.String()))
	attrs := []any{
		"itemId", movement.ItemID,
		"quantity", movement.Quantity,
		"code", appErr.Code,
		"error", appErr,
	}
	if appErr.HTTPStatus >= 500 {
		logger.Error("Failed to record movement", attrs...)
		return
	}
	logger.Warn("Movement rejected", attrs...)
}
