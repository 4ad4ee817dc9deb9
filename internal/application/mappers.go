package application

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wms-platform/lot-ledger/internal/domain"
)

func formatCost(d decimal.Decimal) string {
	return d.StringFixed(domain.CostScale)
}

// ToItemDTO converts a domain InventoryItem to ItemDTO
func ToItemDTO(item *domain.InventoryItem) *ItemDTO {
	if item == nil {
		return nil
	}

	return &ItemDTO{
		ID:           item.ID,
		OwnerID:      item.OwnerID,
		Name:         item.Name,
		SKU:          item.SKU,
		ProfitMargin: item.ProfitMargin.String(),
		OnHandQty:    item.OnHandQty,
		UnitCost:     formatCost(item.UnitCost),
		TotalValue:   formatCost(item.TotalValue()),
		LastEntryAt:  item.LastEntryAt,
		Status:       string(item.Status),
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}
}

// ToItemDTOs converts a slice of items
func ToItemDTOs(items []*domain.InventoryItem) []ItemDTO {
	dtos := make([]ItemDTO, 0, len(items))
	for _, item := range items {
		if dto := ToItemDTO(item); dto != nil {
			dtos = append(dtos, *dto)
		}
	}
	return dtos
}

// ToMovementDTO converts a domain Movement to MovementDTO
func ToMovementDTO(m *domain.Movement) *MovementDTO {
	if m == nil {
		return nil
	}

	return &MovementDTO{
		ID:                m.ID,
		OwnerID:           m.OwnerID,
		ItemID:            m.ItemID,
		Type:              m.Type.String(),
		Quantity:          m.Quantity,
		UnitCost:          formatCost(m.UnitCost),
		BatchCode:         m.BatchCode,
		RemainingQuantity: m.RemainingQuantity,
		Description:       m.Description,
		ExpirationDate:    m.ExpirationDate,
		Status:            string(m.Status),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// ToMovementDTOs converts a slice of movements
func ToMovementDTOs(movements []*domain.Movement) []MovementDTO {
	dtos := make([]MovementDTO, 0, len(movements))
	for _, m := range movements {
		if dto := ToMovementDTO(m); dto != nil {
			dtos = append(dtos, *dto)
		}
	}
	return dtos
}

// ToMovementResultDTO converts the outcome of a ledger operation
func ToMovementResultDTO(result *LedgerResult) *MovementResultDTO {
	if result == nil {
		return nil
	}

	dto := &MovementResultDTO{
		Movement: *ToMovementDTO(result.Movement),
		Item:     *ToItemDTO(result.Item),
	}
	for _, u := range result.LotsUsed {
		dto.LotsUsed = append(dto.LotsUsed, LotConsumptionDTO{
			MovementID: u.MovementID,
			BatchCode:  u.BatchCode,
			Quantity:   u.Quantity,
		})
	}
	return dto
}

// ToCurrentStockRow converts an item to a current stock report row
func ToCurrentStockRow(item *domain.InventoryItem) CurrentStockRowDTO {
	return CurrentStockRowDTO{
		ItemID:            item.ID,
		Name:              item.Name,
		SKU:               item.SKU,
		OnHandQty:         item.OnHandQty,
		UnitCost:          formatCost(item.UnitCost),
		CurrentTotalValue: formatCost(domain.StockValue(item.OnHandQty, item.UnitCost)),
		LastEntryAt:       item.LastEntryAt,
	}
}

// ToMovementHistoryRow converts a joined movement to a history report row
func ToMovementHistoryRow(row domain.MovementRow) MovementHistoryRowDTO {
	m := row.Movement
	return MovementHistoryRowDTO{
		MovementID:        m.ID,
		ItemID:            m.ItemID,
		ProductName:       row.ProductName,
		Type:              m.Type.String(),
		Quantity:          m.Quantity,
		UnitCost:          formatCost(m.UnitCost),
		BatchCode:         m.BatchCode,
		RemainingQuantity: m.RemainingQuantity,
		Description:       m.Description,
		ExpirationDate:    m.ExpirationDate,
		CreatedAt:         m.CreatedAt,
	}
}

// ToExpiringStockRow converts a lot to an expiring stock report row. A lot
// is expired once its expiration instant has passed; days are counted
// between calendar days, so a lot expiring later today reports 0.
func ToExpiringStockRow(r domain.MovementRow, now time.Time) ExpiringStockRowDTO {
	m := r.Movement
	row := ExpiringStockRowDTO{
		MovementID:        m.ID,
		ItemID:            m.ItemID,
		ProductName:       r.ProductName,
		BatchCode:         m.BatchCode,
		Quantity:          m.Quantity,
		RemainingQuantity: m.RemainingQuantity,
		UnitCost:          formatCost(m.UnitCost),
		ExpirationDate:    m.ExpirationDate,
	}

	if m.ExpirationDate != nil {
		row.IsExpired = m.ExpirationDate.Before(now)
		days := daysBetween(domain.StartOfDay(now), domain.StartOfDay(m.ExpirationDate.In(now.Location())))
		row.DaysUntilExpiration = &days
	}
	return row
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Round(time.Hour).Hours() / 24)
}
