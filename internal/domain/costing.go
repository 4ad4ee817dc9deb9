package domain

import "github.com/shopspring/decimal"

// CostScale is the number of fractional digits kept for unit costs. Every store
// persists costs at this scale, so recomputing from stored values is stable.
const CostScale int32 = 4

// Lot is the costing view of an entry: its remaining quantity and unit cost
type Lot struct {
	BatchCode string
	Quantity  int64
	UnitCost  decimal.Decimal
}

// Lots is a collection of lots with helper methods
type Lots []Lot

// LotsFromMovements projects entries onto their remaining balances
func LotsFromMovements(movements []*Movement) Lots {
	lots := make(Lots, 0, len(movements))
	for _, m := range movements {
		if !m.IsLot() {
			continue
		}
		lots = append(lots, Lot{
			BatchCode: m.BatchCode,
			Quantity:  m.RemainingQuantity,
			UnitCost:  m.UnitCost,
		})
	}
	return lots
}

// TotalQuantity returns the total quantity across all lots
func (ls Lots) TotalQuantity() int64 {
	var total int64
	for _, l := range ls {
		total += l.Quantity
	}
	return total
}

// TotalValue returns sum(quantity * unitCost) across all lots
func (ls Lots) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, l := range ls {
		total = total.Add(l.UnitCost.Mul(decimal.NewFromInt(l.Quantity)))
	}
	return total
}

// WeightedAverageCost computes
//
//	(sum(qty*cost) + incomingQty*incomingUnitCost) / (sum(qty) + incomingQty)
//
// rounded half-up to CostScale. It returns zero when the combined quantity is zero.
func WeightedAverageCost(lots Lots, incomingQty int64, incomingUnitCost decimal.Decimal) decimal.Decimal {
	totalQty := lots.TotalQuantity() + incomingQty
	if totalQty <= 0 {
		return decimal.Zero
	}

	totalValue := lots.TotalValue().Add(incomingUnitCost.Mul(decimal.NewFromInt(incomingQty)))
	return totalValue.DivRound(decimal.NewFromInt(totalQty), CostScale)
}

// RoundCost rounds a unit cost to CostScale
func RoundCost(cost decimal.Decimal) decimal.Decimal {
	return cost.Round(CostScale)
}
