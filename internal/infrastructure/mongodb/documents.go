package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/wms-platform/lot-ledger/internal/domain"
	pkgmongo "github.com/wms-platform/lot-ledger/pkg/mongodb"
)

// Collection names
const (
	ItemsCollection     = "inventory_items"
	MovementsCollection = "movements"
)

type itemDocument struct {
	ID           string               `bson:"_id"`
	OwnerID      string               `bson:"ownerId"`
	Name         string               `bson:"name"`
	SKU          string               `bson:"sku"`
	ProfitMargin primitive.Decimal128 `bson:"profitMargin"`
	OnHandQty    int64                `bson:"onHandQty"`
	UnitCost     primitive.Decimal128 `bson:"unitCost"`
	LastEntryAt  *time.Time           `bson:"lastEntryAt"`
	Status       string               `bson:"status"`
	Version      int64                `bson:"version"`
	CreatedAt    time.Time            `bson:"createdAt"`
	UpdatedAt    time.Time            `bson:"updatedAt"`
}

func newItemDocument(item *domain.InventoryItem) (*itemDocument, error) {
	margin, err := pkgmongo.DecimalToBSON(item.ProfitMargin)
	if err != nil {
		return nil, err
	}
	cost, err := pkgmongo.DecimalToBSON(item.UnitCost)
	if err != nil {
		return nil, err
	}
	return &itemDocument{
		ID:           item.ID,
		OwnerID:      item.OwnerID,
		Name:         item.Name,
		SKU:          item.SKU,
		ProfitMargin: margin,
		OnHandQty:    item.OnHandQty,
		UnitCost:     cost,
		LastEntryAt:  utcPtr(item.LastEntryAt),
		Status:       string(item.Status),
		Version:      item.Version,
		CreatedAt:    item.CreatedAt.UTC(),
		UpdatedAt:    item.UpdatedAt.UTC(),
	}, nil
}

func (d *itemDocument) toDomain() (*domain.InventoryItem, error) {
	margin, err := pkgmongo.DecimalFromBSON(d.ProfitMargin)
	if err != nil {
		return nil, err
	}
	cost, err := pkgmongo.DecimalFromBSON(d.UnitCost)
	if err != nil {
		return nil, err
	}
	return &domain.InventoryItem{
		ID:           d.ID,
		OwnerID:      d.OwnerID,
		Name:         d.Name,
		SKU:          d.SKU,
		ProfitMargin: margin,
		OnHandQty:    d.OnHandQty,
		UnitCost:     cost,
		LastEntryAt:  d.LastEntryAt,
		Status:       domain.Status(d.Status),
		Version:      d.Version,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

type movementDocument struct {
	ID                string               `bson:"_id"`
	OwnerID           string               `bson:"ownerId"`
	ItemID            string               `bson:"itemId"`
	Type              string               `bson:"type"`
	Quantity          int64                `bson:"quantity"`
	UnitCost          primitive.Decimal128 `bson:"unitCost"`
	BatchCode         string               `bson:"batchCode"`
	RemainingQuantity int64                `bson:"remainingQuantity"`
	Description       string               `bson:"description,omitempty"`
	ExpirationDate    *time.Time           `bson:"expirationDate"`
	Status            string               `bson:"status"`
	CreatedAt         time.Time            `bson:"createdAt"`
	UpdatedAt         time.Time            `bson:"updatedAt"`
}

func newMovementDocument(m *domain.Movement) (*movementDocument, error) {
	cost, err := pkgmongo.DecimalToBSON(m.UnitCost)
	if err != nil {
		return nil, err
	}
	return &movementDocument{
		ID:                m.ID,
		OwnerID:           m.OwnerID,
		ItemID:            m.ItemID,
		Type:              string(m.Type),
		Quantity:          m.Quantity,
		UnitCost:          cost,
		BatchCode:         m.BatchCode,
		RemainingQuantity: m.RemainingQuantity,
		Description:       m.Description,
		ExpirationDate:    utcPtr(m.ExpirationDate),
		Status:            string(m.Status),
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}, nil
}

func (d *movementDocument) toDomain() (*domain.Movement, error) {
	cost, err := pkgmongo.DecimalFromBSON(d.UnitCost)
	if err != nil {
		return nil, err
	}
	return &domain.Movement{
		ID:                d.ID,
		OwnerID:           d.OwnerID,
		ItemID:            d.ItemID,
		Type:              domain.MovementType(d.Type),
		Quantity:          d.Quantity,
		UnitCost:          cost,
		BatchCode:         d.BatchCode,
		RemainingQuantity: d.RemainingQuantity,
		Description:       d.Description,
		ExpirationDate:    d.ExpirationDate,
		Status:            domain.Status(d.Status),
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}, nil
}

// movementRowDocument is a movement with the item name joined by $lookup
type movementRowDocument struct {
	movementDocument `bson:",inline"`
	ProductName      string `bson:"productName"`
}

func (d *movementRowDocument) toDomain() (domain.MovementRow, error) {
	m, err := d.movementDocument.toDomain()
	if err != nil {
		return domain.MovementRow{}, err
	}
	return domain.MovementRow{Movement: m, ProductName: d.ProductName}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
