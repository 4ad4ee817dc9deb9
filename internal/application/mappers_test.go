package application

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/lot-ledger/internal/domain"
)

func TestToItemDTO(t *testing.T) {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	item := &domain.InventoryItem{
		ID:           "item-1",
		OwnerID:      testOwner,
		Name:         "Coffee",
		SKU:          "CF-1",
		ProfitMargin: decimal.RequireFromString("0.35"),
		OnHandQty:    12,
		UnitCost:     decimal.RequireFromString("3.3333"),
		LastEntryAt:  &now,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	dto := ToItemDTO(item)
	require.NotNil(t, dto)
	assert.Equal(t, "item-1", dto.ID)
	assert.Equal(t, "0.35", dto.ProfitMargin)
	assert.Equal(t, "3.3333", dto.UnitCost)
	assert.Equal(t, "39.9996", dto.TotalValue)
	assert.Equal(t, "ACTIVE", dto.Status)
	assert.Equal(t, &now, dto.LastEntryAt)

	assert.Nil(t, ToItemDTO(nil))
	assert.Empty(t, ToItemDTOs(nil))
}

func TestToMovementResultDTO(t *testing.T) {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	result := &LedgerResult{
		Movement: &domain.Movement{
			ID: "mv-1", ItemID: "item-1", Type: domain.MovementSale, Quantity: 7,
			UnitCost: decimal.NewFromInt(5), BatchCode: "A,B", Status: domain.StatusActive, CreatedAt: now,
		},
		Item: &domain.InventoryItem{ID: "item-1", OnHandQty: 3, UnitCost: decimal.NewFromInt(2), Status: domain.StatusActive},
		LotsUsed: []domain.LotConsumption{
			{MovementID: "lot-a", BatchCode: "A", Quantity: 5},
			{MovementID: "lot-b", BatchCode: "B", Quantity: 2},
		},
	}

	dto := ToMovementResultDTO(result)
	require.NotNil(t, dto)
	assert.Equal(t, "SALE", dto.Movement.Type)
	assert.Equal(t, "5.0000", dto.Movement.UnitCost)
	assert.Equal(t, "A,B", dto.Movement.BatchCode)
	assert.Equal(t, int64(3), dto.Item.OnHandQty)
	assert.Equal(t, []LotConsumptionDTO{
		{MovementID: "lot-a", BatchCode: "A", Quantity: 5},
		{MovementID: "lot-b", BatchCode: "B", Quantity: 2},
	}, dto.LotsUsed)

	assert.Nil(t, ToMovementResultDTO(nil))
}

func TestToExpiringStockRow(t *testing.T) {
	now := time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		exp     *time.Time
		expired bool
		days    *int
	}{
		{"tomorrow morning", ptr(time.Date(2026, 4, 3, 1, 0, 0, 0, time.UTC)), false, ptr(1)},
		{"earlier today", ptr(time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)), true, ptr(0)},
		{"last week", ptr(time.Date(2026, 3, 26, 12, 0, 0, 0, time.UTC)), true, ptr(-7)},
		{"no date", nil, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := ToExpiringStockRow(domain.MovementRow{
				Movement:    &domain.Movement{ID: "lot", BatchCode: "B1", Quantity: 5, RemainingQuantity: 2, UnitCost: decimal.NewFromInt(1), ExpirationDate: tt.exp},
				ProductName: "Milk",
			}, now)
			assert.Equal(t, tt.expired, row.IsExpired)
			assert.Equal(t, tt.days, row.DaysUntilExpiration)
			assert.Equal(t, "Milk", row.ProductName)
			assert.Equal(t, int64(2), row.RemainingQuantity)
		})
	}
}

func TestToCurrentStockRow(t *testing.T) {
	row := ToCurrentStockRow(&domain.InventoryItem{ID: "item-1", Name: "Tea", OnHandQty: 4, UnitCost: decimal.RequireFromString("1.25")})
	assert.Equal(t, "1.2500", row.UnitCost)
	assert.Equal(t, "5.0000", row.CurrentTotalValue)
	assert.Nil(t, row.LastEntryAt)
}
