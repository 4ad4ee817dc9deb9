package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem is the aggregate root of the ledger. OnHandQty and UnitCost are
// derived from the item's lots and are changed only by ledger operations.
type InventoryItem struct {
	ID           string
	OwnerID      string
	Name         string
	SKU          string
	ProfitMargin decimal.Decimal
	OnHandQty    int64
	UnitCost     decimal.Decimal
	LastEntryAt  *time.Time
	Status       Status
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DomainEvents []DomainEvent
}

// NewInventoryItem creates an item with zero quantity and zero cost
func NewInventoryItem(ownerID, name, sku string, profitMargin decimal.Decimal, now time.Time) (*InventoryItem, error) {
	name = strings.TrimSpace(name)
	sku = strings.TrimSpace(sku)
	if err := validateItemDetails(name, sku, profitMargin); err != nil {
		return nil, err
	}

	item := &InventoryItem{
		ID:           NewID(),
		OwnerID:      ownerID,
		Name:         name,
		SKU:          sku,
		ProfitMargin: profitMargin,
		OnHandQty:    0,
		UnitCost:     decimal.Zero,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	item.addDomainEvent(&ItemCreatedEvent{
		ItemID:    item.ID,
		OwnerID:   ownerID,
		Name:      name,
		SKU:       sku,
		CreatedAt: now,
	})

	return item, nil
}

func validateItemDetails(name, sku string, profitMargin decimal.Decimal) error {
	if name == "" {
		return NewValidationError("name", "is required")
	}
	if sku == "" {
		return NewValidationError("sku", "is required")
	}
	if profitMargin.IsNegative() {
		return NewValidationError("profitMargin", "cannot be negative")
	}
	return nil
}

// IsActive returns true unless the item was soft-deleted
func (i *InventoryItem) IsActive() bool {
	return i.Status == StatusActive
}

// UpdateDetails edits name, SKU and margin. Nil fields are left unchanged.
func (i *InventoryItem) UpdateDetails(name, sku *string, profitMargin *decimal.Decimal, now time.Time) error {
	newName, newSKU, newMargin := i.Name, i.SKU, i.ProfitMargin
	if name != nil {
		newName = strings.TrimSpace(*name)
	}
	if sku != nil {
		newSKU = strings.TrimSpace(*sku)
	}
	if profitMargin != nil {
		newMargin = *profitMargin
	}
	if err := validateItemDetails(newName, newSKU, newMargin); err != nil {
		return err
	}

	i.Name, i.SKU, i.ProfitMargin = newName, newSKU, newMargin
	i.UpdatedAt = now
	return nil
}

// Deactivate soft-deletes the item
func (i *InventoryItem) Deactivate(now time.Time) {
	if !i.IsActive() {
		return
	}
	i.Status = StatusInactive
	i.UpdatedAt = now
	i.addDomainEvent(&ItemDeactivatedEvent{
		ItemID:        i.ID,
		OwnerID:       i.OwnerID,
		DeactivatedAt: now,
	})
}

// CanReceive rejects an entry whose quantity would overflow the on-hand total
func (i *InventoryItem) CanReceive(qty int64) error {
	if i.OnHandQty > math.MaxInt64-qty {
		return NewValidationError("quantity", "would overflow the on-hand quantity")
	}
	return nil
}

// ApplyEntry records the effect of a new lot on the aggregate
func (i *InventoryItem) ApplyEntry(newCost decimal.Decimal, deltaQty int64, at time.Time) {
	i.OnHandQty += deltaQty
	i.UnitCost = RoundCost(newCost)
	entryAt := at
	i.LastEntryAt = &entryAt
	i.UpdatedAt = at
}

// ApplyConsumption records the effect of a sale, exit or expiration. A nil cost leaves the unit cost unchanged.
func (i *InventoryItem) ApplyConsumption(deltaQty int64, newCost *decimal.Decimal, at time.Time) {
	i.OnHandQty -= deltaQty
	if newCost != nil {
		i.UnitCost = RoundCost(*newCost)
	}
	i.UpdatedAt = at
}

// TotalValue returns onHandQty * unitCost
func (i *InventoryItem) TotalValue() decimal.Decimal {
	return i.UnitCost.Mul(decimal.NewFromInt(i.OnHandQty))
}

func (i *InventoryItem) addDomainEvent(event DomainEvent) {
	i.DomainEvents = append(i.DomainEvents, event)
}

// PullEvents returns pending domain events and clears them
func (i *InventoryItem) PullEvents() []DomainEvent {
	events := i.DomainEvents
	i.DomainEvents = nil
	return events
}
