package application

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wms-platform/lot-ledger/pkg/api"
)

// EntryCommand records a new lot
type EntryCommand struct {
	OwnerID        string
	ItemID         string
	BatchCode      string
	Quantity       int64
	UnitCost       decimal.Decimal
	Description    string
	ExpirationDate *time.Time
}

// SaleCommand consumes stock in FIFO order
type SaleCommand struct {
	OwnerID     string
	ItemID      string
	Quantity    int64
	UnitCost    decimal.Decimal
	Description string
}

// ExitCommand removes stock from one lot. The lot's own cost is recorded.
type ExitCommand struct {
	OwnerID     string
	ItemID      string
	BatchCode   string
	Quantity    int64
	Description string
}

// ExpireCommand writes off one lot
type ExpireCommand struct {
	OwnerID     string
	ItemID      string
	BatchCode   string
	Quantity    int64
	UnitCost    decimal.Decimal
	Description string
}

// RecordMovementCommand is the single entry point the HTTP layer uses; Type selects the operation
type RecordMovementCommand struct {
	OwnerID        string
	ItemID         string
	Type           string
	Quantity       int64
	UnitCost       decimal.Decimal
	BatchCode      string
	Description    string
	ExpirationDate *time.Time
}

// UpdateMovementCommand edits the non-ledger attributes of a movement
type UpdateMovementCommand struct {
	OwnerID        string
	MovementID     string
	Description    *string
	ExpirationDate *time.Time
}

// CreateItemCommand creates an inventory item
type CreateItemCommand struct {
	OwnerID      string
	Name         string
	SKU          string
	ProfitMargin decimal.Decimal
}

// UpdateItemCommand edits item details. Nil fields are left unchanged.
type UpdateItemCommand struct {
	OwnerID      string
	ItemID       string
	Name         *string
	SKU          *string
	ProfitMargin *decimal.Decimal
}

// CurrentStockQuery filters the current stock report
type CurrentStockQuery struct {
	OwnerID  string
	Page     api.PageRequest
	ItemID   *string
	ItemName *string
	MinQty   *int64
	MaxQty   *int64
}

// MovementHistoryQuery filters the movement history report
type MovementHistoryQuery struct {
	OwnerID   string
	Page      api.PageRequest
	StartDate time.Time
	EndDate   time.Time
	ItemID    *string
	Type      *string
	BatchCode *string
}

// ExpiringStockQuery filters the expiring stock report
type ExpiringStockQuery struct {
	OwnerID             string
	Page                api.PageRequest
	Status              string
	DaysUntilExpiration *int
	ItemID              *string
}
