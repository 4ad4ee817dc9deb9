package application

import "time"

// ItemDTO represents an inventory item
type ItemDTO struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"ownerId"`
	Name         string     `json:"name"`
	SKU          string     `json:"sku"`
	ProfitMargin string     `json:"profitMargin"`
	OnHandQty    int64      `json:"onHandQty"`
	UnitCost     string     `json:"unitCost"`
	TotalValue   string     `json:"totalValue"`
	LastEntryAt  *time.Time `json:"lastEntryAt"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// MovementDTO represents a ledger movement
type MovementDTO struct {
	ID                string     `json:"id"`
	OwnerID           string     `json:"ownerId"`
	ItemID            string     `json:"itemId"`
	Type              string     `json:"type"`
	Quantity          int64      `json:"quantity"`
	UnitCost          string     `json:"unitCost"`
	BatchCode         string     `json:"batchCode"`
	RemainingQuantity int64      `json:"remainingQuantity"`
	Description       string     `json:"description"`
	ExpirationDate    *time.Time `json:"expirationDate"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// LotConsumptionDTO is one lot drawn down by a movement
type LotConsumptionDTO struct {
	MovementID string `json:"movementId"`
	BatchCode  string `json:"batchCode"`
	Quantity   int64  `json:"quantity"`
}

// MovementResultDTO is the outcome of a ledger operation: the movement and
// the item state it produced
type MovementResultDTO struct {
	Movement MovementDTO         `json:"movement"`
	Item     ItemDTO             `json:"item"`
	LotsUsed []LotConsumptionDTO `json:"lotsUsed,omitempty"`
}

// CurrentStockRowDTO is a row of the current stock report
type CurrentStockRowDTO struct {
	ItemID            string     `json:"itemId"`
	Name              string     `json:"name"`
	SKU               string     `json:"sku"`
	OnHandQty         int64      `json:"onHandQty"`
	UnitCost          string     `json:"unitCost"`
	CurrentTotalValue string     `json:"currentTotalValue"`
	LastEntryAt       *time.Time `json:"lastEntryAt"`
}

// MovementHistoryRowDTO is a row of the movement history report
type MovementHistoryRowDTO struct {
	MovementID        string     `json:"movementId"`
	ItemID            string     `json:"itemId"`
	ProductName       string     `json:"productName"`
	Type              string     `json:"type"`
	Quantity          int64      `json:"quantity"`
	UnitCost          string     `json:"unitCost"`
	BatchCode         string     `json:"batchCode"`
	RemainingQuantity int64      `json:"remainingQuantity"`
	Description       string     `json:"description"`
	ExpirationDate    *time.Time `json:"expirationDate"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// ExpiringStockRowDTO is a row of the expiring stock report
type ExpiringStockRowDTO struct {
	MovementID          string     `json:"movementId"`
	ItemID              string     `json:"itemId"`
	ProductName         string     `json:"productName"`
	BatchCode           string     `json:"batchCode"`
	Quantity            int64      `json:"quantity"`
	RemainingQuantity   int64      `json:"remainingQuantity"`
	UnitCost            string     `json:"unitCost"`
	ExpirationDate      *time.Time `json:"expirationDate"`
	IsExpired           bool       `json:"isExpired"`
	DaysUntilExpiration *int       `json:"daysUntilExpiration"`
}
