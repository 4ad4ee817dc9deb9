package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination holds page parameters for report queries
type Pagination struct {
	Page     int64
	PageSize int64
}

// Skip returns the number of records to skip
func (p Pagination) Skip() int64 {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Limit returns the page size
func (p Pagination) Limit() int64 {
	return p.PageSize
}

// CurrentStockFilter narrows the current stock report. Nil fields do not filter.
type CurrentStockFilter struct {
	ItemID   *string
	ItemName *string // case-insensitive substring
	MinQty   *int64
	MaxQty   *int64
}

// MovementHistoryFilter narrows the movement history report. The date range is required.
type MovementHistoryFilter struct {
	StartDate time.Time
	EndDate   time.Time
	ItemID    *string
	Type      *MovementType
	BatchCode *string // case-insensitive substring
}

// MovementRow is a movement joined with the name of its item
type MovementRow struct {
	Movement    *Movement
	ProductName string
}

// ExpiringStatus selects which lots the expiring stock report returns
type ExpiringStatus string

const (
	ExpiringStatusExpired ExpiringStatus = "expired"
	ExpiringStatusSoon    ExpiringStatus = "expiring-soon"
	ExpiringStatusAll     ExpiringStatus = "all"
)

// IsValid checks if the status is known
func (s ExpiringStatus) IsValid() bool {
	switch s {
	case ExpiringStatusExpired, ExpiringStatusSoon, ExpiringStatusAll:
		return true
	default:
		return false
	}
}

// ExpiringStockFilter narrows the expiring stock report over active entries
type ExpiringStockFilter struct {
	Status              ExpiringStatus
	DaysUntilExpiration int
	ItemID              *string
	Now                 time.Time
}

// ExpirationWindow returns the inclusive expiration bounds the status implies
// and whether only lots with remaining stock qualify. Nil bounds are open.
func (f ExpiringStockFilter) ExpirationWindow() (from, to *time.Time, requireStock bool) {
	today := StartOfDay(f.Now)
	switch f.Status {
	case ExpiringStatusExpired:
		return nil, &today, false
	case ExpiringStatusSoon:
		end := EndOfDay(today.AddDate(0, 0, f.DaysUntilExpiration))
		return &today, &end, true
	default:
		return nil, nil, false
	}
}

// StartOfDay truncates t to midnight in its location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last instant of t's day
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StockValue returns qty * unitCost for report rows
func StockValue(qty int64, unitCost decimal.Decimal) decimal.Decimal {
	return unitCost.Mul(decimal.NewFromInt(qty))
}
