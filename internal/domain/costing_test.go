package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestWeightedAverageCost(t *testing.T) {
	tests := []struct {
		name             string
		lots             Lots
		incomingQty      int64
		incomingUnitCost decimal.Decimal
		expected         string
	}{
		{
			name:     "no lots and no incoming quantity",
			lots:     nil,
			expected: "0",
		},
		{
			name:             "first entry",
			lots:             nil,
			incomingQty:      10,
			incomingUnitCost: dec("2"),
			expected:         "2",
		},
		{
			name:             "second entry averages with first",
			lots:             Lots{{BatchCode: "L1", Quantity: 10, UnitCost: dec("2")}},
			incomingQty:      10,
			incomingUnitCost: dec("4"),
			expected:         "3",
		},
		{
			name: "recompute from remaining lots only",
			lots: Lots{
				{BatchCode: "L1", Quantity: 0, UnitCost: dec("2")},
				{BatchCode: "L2", Quantity: 5, UnitCost: dec("4")},
			},
			expected: "4",
		},
		{
			name: "uneven quantities",
			lots: Lots{
				{BatchCode: "A", Quantity: 3, UnitCost: dec("1.10")},
				{BatchCode: "B", Quantity: 7, UnitCost: dec("2.35")},
			},
			expected: "1.975",
		},
		{
			name:             "rounds half up to four digits",
			lots:             Lots{{BatchCode: "A", Quantity: 2, UnitCost: dec("1")}},
			incomingQty:      1,
			incomingUnitCost: dec("2"),
			expected:         "1.3333",
		},
		{
			name:             "zero cost entry",
			lots:             Lots{{BatchCode: "A", Quantity: 5, UnitCost: dec("10")}},
			incomingQty:      5,
			incomingUnitCost: decimal.Zero,
			expected:         "5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAverageCost(tt.lots, tt.incomingQty, tt.incomingUnitCost)
			if !got.Equal(dec(tt.expected)) {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestWeightedAverageCost_StableUnderRecompute(t *testing.T) {
	lots := Lots{
		{BatchCode: "A", Quantity: 3, UnitCost: dec("0.3333")},
		{BatchCode: "B", Quantity: 7, UnitCost: dec("0.6667")},
	}

	first := WeightedAverageCost(lots, 0, decimal.Zero)
	for i := 0; i < 10; i++ {
		again := WeightedAverageCost(lots, 0, decimal.Zero)
		if !again.Equal(first) {
			t.Fatalf("recompute drifted: %s != %s", again, first)
		}
	}
	if first.Exponent() < -CostScale {
		t.Errorf("expected at most %d fractional digits, got %s", CostScale, first)
	}
}

func TestLotsFromMovements(t *testing.T) {
	active := &Movement{Type: MovementEntry, Status: StatusActive, BatchCode: "L1", Quantity: 10, RemainingQuantity: 4, UnitCost: dec("2")}
	inactive := &Movement{Type: MovementEntry, Status: StatusInactive, BatchCode: "L2", Quantity: 10, RemainingQuantity: 10, UnitCost: dec("9")}
	sale := &Movement{Type: MovementSale, Status: StatusActive, BatchCode: "L1", Quantity: 6, UnitCost: dec("5")}

	lots := LotsFromMovements([]*Movement{active, inactive, sale})

	if len(lots) != 1 {
		t.Fatalf("expected 1 lot, got %d", len(lots))
	}
	if lots[0].Quantity != 4 {
		t.Errorf("expected lot weighted by remaining quantity 4, got %d", lots[0].Quantity)
	}
	if lots.TotalQuantity() != 4 {
		t.Errorf("expected total quantity 4, got %d", lots.TotalQuantity())
	}
	if !lots.TotalValue().Equal(dec("8")) {
		t.Errorf("expected total value 8, got %s", lots.TotalValue())
	}
}
