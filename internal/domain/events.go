package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// Event type names
const (
	EventMovementRecorded    = "ledger.movement.recorded"
	EventMovementDeactivated = "ledger.movement.deactivated"
	EventItemCreated         = "ledger.item.created"
	EventItemDeactivated     = "ledger.item.deactivated"
)

// MovementRecordedEvent is published for every committed entry, sale, exit or expiration
type MovementRecordedEvent struct {
	MovementID   string           `json:"movementId"`
	OwnerID      string           `json:"ownerId"`
	ItemID       string           `json:"itemId"`
	Type         MovementType     `json:"type"`
	Quantity     int64            `json:"quantity"`
	UnitCost     string           `json:"unitCost"`
	BatchCode    string           `json:"batchCode"`
	LotsUsed     []LotConsumption `json:"lotsUsed,omitempty"`
	OnHandQty    int64            `json:"onHandQty"`
	ItemUnitCost string           `json:"itemUnitCost"`
	RecordedAt   time.Time        `json:"recordedAt"`
}

func (e *MovementRecordedEvent) EventType() string     { return EventMovementRecorded }
func (e *MovementRecordedEvent) OccurredAt() time.Time { return e.RecordedAt }

// NewMovementRecordedEvent builds the event from the committed movement and item state
func NewMovementRecordedEvent(m *Movement, item *InventoryItem, used []LotConsumption) *MovementRecordedEvent {
	return &MovementRecordedEvent{
		MovementID:   m.ID,
		OwnerID:      m.OwnerID,
		ItemID:       m.ItemID,
		Type:         m.Type,
		Quantity:     m.Quantity,
		UnitCost:     m.UnitCost.StringFixed(CostScale),
		BatchCode:    m.BatchCode,
		LotsUsed:     used,
		OnHandQty:    item.OnHandQty,
		ItemUnitCost: item.UnitCost.StringFixed(CostScale),
		RecordedAt:   m.CreatedAt,
	}
}

// MovementDeactivatedEvent is published when a movement is soft-deleted
type MovementDeactivatedEvent struct {
	MovementID    string       `json:"movementId"`
	OwnerID       string       `json:"ownerId"`
	ItemID        string       `json:"itemId"`
	Type          MovementType `json:"type"`
	DeactivatedAt time.Time    `json:"deactivatedAt"`
}

func (e *MovementDeactivatedEvent) EventType() string     { return EventMovementDeactivated }
func (e *MovementDeactivatedEvent) OccurredAt() time.Time { return e.DeactivatedAt }

// ItemCreatedEvent is published when an inventory item is created
type ItemCreatedEvent struct {
	ItemID    string    `json:"itemId"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	SKU       string    `json:"sku"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e *ItemCreatedEvent) EventType() string     { return EventItemCreated }
func (e *ItemCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// ItemDeactivatedEvent is published when an inventory item is soft-deleted
type ItemDeactivatedEvent struct {
	ItemID        string    `json:"itemId"`
	OwnerID       string    `json:"ownerId"`
	DeactivatedAt time.Time `json:"deactivatedAt"`
}

func (e *ItemDeactivatedEvent) EventType() string     { return EventItemDeactivated }
func (e *ItemDeactivatedEvent) OccurredAt() time.Time { return e.DeactivatedAt }
