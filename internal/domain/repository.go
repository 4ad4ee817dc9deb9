package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LotStore gives the ledger access to movement records inside a transaction.
// Every query excludes INACTIVE movements.
type LotStore interface {
	// FindActiveEntries returns the item's lots with remaining stock, oldest first (createdAt, then ID)
	FindActiveEntries(ctx context.Context, ownerID, itemID string) ([]*Movement, error)

	// FindActiveEntryByBatch returns the active entry with the batch code, or ErrBatchNotFound
	FindActiveEntryByBatch(ctx context.Context, ownerID, itemID, batchCode string) (*Movement, error)

	// CreateMovement inserts a movement. A second active entry with the same batch returns ErrDuplicateBatch.
	CreateMovement(ctx context.Context, movement *Movement) error

	// UpdateRemainingQuantity sets the unconsumed balance of a lot
	UpdateRemainingQuantity(ctx context.Context, movementID string, remaining int64) error

	// FindByID returns an active movement, or ErrMovementNotFound
	FindByID(ctx context.Context, ownerID, movementID string) (*Movement, error)

	// UpdateDetails persists description, expiration date and status
	UpdateDetails(ctx context.Context, movement *Movement) error
}

// ItemStore gives the ledger access to inventory items inside a transaction
type ItemStore interface {
	// Lock returns the active item and holds it against concurrent ledger
	// operations until the transaction ends. Returns ErrItemNotFound.
	Lock(ctx context.Context, ownerID, itemID string) (*InventoryItem, error)

	// ApplyEntryEffect adds deltaQty, sets the unit cost and the last entry time
	ApplyEntryEffect(ctx context.Context, itemID string, newCost decimal.Decimal, deltaQty int64, at time.Time) error

	// ApplyConsumptionEffect subtracts deltaQty. A nil cost leaves the unit cost unchanged.
	ApplyConsumptionEffect(ctx context.Context, itemID string, deltaQty int64, newCost *decimal.Decimal, at time.Time) error

	// Create inserts a new item. A duplicate active SKU for the owner returns ErrDuplicateSKU.
	Create(ctx context.Context, item *InventoryItem) error

	// UpdateDetails persists name, SKU, margin and status
	UpdateDetails(ctx context.Context, item *InventoryItem) error
}

// EventRecorder stores domain events with the transaction that produced them
type EventRecorder interface {
	Record(ctx context.Context, aggregateID string, events ...DomainEvent) error
}

// Tx is the explicit transaction handle passed to every store call
type Tx interface {
	Lots() LotStore
	Items() ItemStore
	Events() EventRecorder
}

// TransactionScope runs fn inside one atomic transaction. If fn returns an
// error every write made through tx is discarded. The ctx handed to fn must be
// used for all calls on tx.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// ItemReader serves item queries outside the ledger
type ItemReader interface {
	FindByID(ctx context.Context, ownerID, itemID string) (*InventoryItem, error)
	FindAll(ctx context.Context, ownerID string) ([]*InventoryItem, error)
}

// MovementReader serves movement queries outside the ledger
type MovementReader interface {
	FindByID(ctx context.Context, ownerID, movementID string) (*Movement, error)
	// FindAll returns active movements, newest first
	FindAll(ctx context.Context, ownerID string) ([]*Movement, error)
	// FindEntries returns active lots with remaining stock, oldest first
	FindEntries(ctx context.Context, ownerID string, withExpirationOnly bool) ([]*Movement, error)
}

// ReportRepository runs the paginated report queries
type ReportRepository interface {
	CurrentStock(ctx context.Context, ownerID string, filter CurrentStockFilter, page Pagination) ([]*InventoryItem, int64, error)
	MovementHistory(ctx context.Context, ownerID string, filter MovementHistoryFilter, page Pagination) ([]MovementRow, int64, error)
	ExpiringStock(ctx context.Context, ownerID string, filter ExpiringStockFilter, page Pagination) ([]MovementRow, int64, error)
}

// Store bundles the ports a storage driver provides
type Store interface {
	Scope() TransactionScope
	Items() ItemReader
	Movements() MovementReader
	Reports() ReportRepository
}
