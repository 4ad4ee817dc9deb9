package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/lot-ledger/pkg/api"
	apperrors "github.com/wms-platform/lot-ledger/pkg/errors"
	"github.com/wms-platform/lot-ledger/pkg/logging"
)

func newReportService(t *testing.T, now time.Time) (*ReportService, *ledgerFixture) {
	t.Helper()
	f := newLedgerFixture(t)
	svc := NewReportService(f.store, logging.NewNop())
	svc.now = func() time.Time { return now }
	return svc, f
}

func ptr[T any](v T) *T { return &v }

func TestReportService_CurrentStock(t *testing.T) {
	svc, f := newReportService(t, time.Now())
	ctx := context.Background()
	f.entry(t, "L1", 10, "2")
	f.entry(t, "L2", 10, "4")

	page, err := svc.CurrentStock(ctx, CurrentStockQuery{OwnerID: testOwner})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, int64(1), page.Page)
	assert.Equal(t, int64(10), page.PageSize)
	require.Len(t, page.Data, 1)

	row := page.Data[0]
	assert.Equal(t, f.itemID, row.ItemID)
	assert.Equal(t, int64(20), row.OnHandQty)
	assert.Equal(t, "3.0000", row.UnitCost)
	assert.Equal(t, "60.0000", row.CurrentTotalValue)
	assert.NotNil(t, row.LastEntryAt)

	page, err = svc.CurrentStock(ctx, CurrentStockQuery{OwnerID: testOwner, MinQty: ptr(int64(21))})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, int64(0), page.TotalPages)

	page, err = svc.CurrentStock(ctx, CurrentStockQuery{OwnerID: testOwner, ItemName: ptr("OLIVE")})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)

	_, err = svc.CurrentStock(ctx, CurrentStockQuery{OwnerID: testOwner, MinQty: ptr(int64(5)), MaxQty: ptr(int64(1))})
	requireCode(t, err, apperrors.CodeValidationError)
}

func TestReportService_MovementHistory(t *testing.T) {
	svc, f := newReportService(t, time.Now())
	ctx := context.Background()
	f.entry(t, "LOT-A", 10, "2")
	f.entry(t, "LOT-B", 10, "4")
	_, err := f.sale(3)
	require.NoError(t, err)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	page, err := svc.MovementHistory(ctx, MovementHistoryQuery{OwnerID: testOwner, StartDate: from, EndDate: to})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Data, 3)
	assert.Equal(t, "SALE", page.Data[0].Type)
	assert.Equal(t, "Olive oil", page.Data[0].ProductName)

	page, err = svc.MovementHistory(ctx, MovementHistoryQuery{OwnerID: testOwner, StartDate: from, EndDate: to, Type: ptr("entry"), BatchCode: ptr("lot-b")})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "LOT-B", page.Data[0].BatchCode)

	page, err = svc.MovementHistory(ctx, MovementHistoryQuery{OwnerID: testOwner, StartDate: from, EndDate: to, Page: api.PageRequest{Page: 2, PageSize: 2}})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, int64(2), page.TotalPages)

	tests := []struct {
		name string
		q    MovementHistoryQuery
	}{
		{"start after end", MovementHistoryQuery{StartDate: to, EndDate: from}},
		{"missing range", MovementHistoryQuery{}},
		{"unknown type", MovementHistoryQuery{StartDate: from, EndDate: to, Type: ptr("GIFT")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.q.OwnerID = testOwner
			_, err := svc.MovementHistory(ctx, tt.q)
			requireCode(t, err, apperrors.CodeValidationError)
		})
	}
}

func TestReportService_ExpiringStock(t *testing.T) {
	now := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)
	svc, f := newReportService(t, now)
	ctx := context.Background()

	entry := func(batch string, exp *time.Time) {
		_, err := f.ledger.Entry(ctx, EntryCommand{
			OwnerID: testOwner, ItemID: f.itemID, BatchCode: batch, Quantity: 4, UnitCost: decimal.NewFromInt(1), ExpirationDate: exp,
		})
		require.NoError(t, err)
	}
	entry("EXPIRED", ptr(now.Add(-48*time.Hour)))
	entry("TODAY", ptr(now.Add(-time.Hour)))
	entry("IN5", ptr(now.AddDate(0, 0, 5)))
	entry("IN20", ptr(now.AddDate(0, 0, 20)))
	entry("NODATE", nil)

	batches := func(q ExpiringStockQuery) []string {
		q.OwnerID = testOwner
		page, err := svc.ExpiringStock(ctx, q)
		require.NoError(t, err)
		out := make([]string, 0, len(page.Data))
		for _, r := range page.Data {
			out = append(out, r.BatchCode)
		}
		return out
	}

	assert.Equal(t, []string{"TODAY", "IN5"}, batches(ExpiringStockQuery{}))
	assert.Equal(t, []string{"TODAY", "IN5", "IN20"}, batches(ExpiringStockQuery{DaysUntilExpiration: ptr(30)}))
	assert.Equal(t, []string{"EXPIRED"}, batches(ExpiringStockQuery{Status: "expired"}))
	assert.Equal(t, []string{"EXPIRED", "TODAY", "IN5", "IN20", "NODATE"}, batches(ExpiringStockQuery{Status: "ALL"}))

	page, err := svc.ExpiringStock(ctx, ExpiringStockQuery{OwnerID: testOwner, Status: "all"})
	require.NoError(t, err)
	rows := page.Data
	assert.True(t, rows[0].IsExpired)
	require.NotNil(t, rows[0].DaysUntilExpiration)
	assert.Equal(t, -2, *rows[0].DaysUntilExpiration)
	assert.True(t, rows[1].IsExpired, "expired earlier today")
	assert.Equal(t, 0, *rows[1].DaysUntilExpiration)
	assert.False(t, rows[2].IsExpired)
	assert.Equal(t, 5, *rows[2].DaysUntilExpiration)
	assert.Nil(t, rows[4].DaysUntilExpiration)
	assert.Equal(t, "Olive oil", rows[0].ProductName)

	_, err = svc.ExpiringStock(ctx, ExpiringStockQuery{OwnerID: testOwner, Status: "stale"})
	requireCode(t, err, apperrors.CodeValidationError)
	_, err = svc.ExpiringStock(ctx, ExpiringStockQuery{OwnerID: testOwner, DaysUntilExpiration: ptr(-1)})
	requireCode(t, err, apperrors.CodeValidationError)
}
