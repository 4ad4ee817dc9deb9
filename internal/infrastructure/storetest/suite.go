// Package storetest holds the behaviour every domain.Store driver must show
// when driven through the application services.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/wms-platform/lot-ledger/internal/application"
	"github.com/wms-platform/lot-ledger/internal/domain"
	"github.com/wms-platform/lot-ledger/pkg/api"
	apperrors "github.com/wms-platform/lot-ledger/pkg/errors"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/metrics"
	testhelpers "github.com/wms-platform/lot-ledger/pkg/testing"
)

// StoreSuite runs ledger scenarios against a real driver. Drivers embed it
// and set Store in SetupSuite. Each test works under a fresh owner, so the
// database never needs truncating.
type StoreSuite struct {
	suite.Suite
	Store domain.Store

	ctx     context.Context
	owner   string
	itemID  string
	items   *application.ItemService
	ledger  *application.LedgerService
	reports *application.ReportService
}

func (s *StoreSuite) SetupTest() {
	s.Require().NotNil(s.Store, "driver suite must set Store")
	s.ctx = context.Background()
	s.owner = "owner-" + uuid.NewString()

	logger := logging.NewNop()
	s.items = application.NewItemService(s.Store, logger)
	s.ledger = application.NewLedgerService(s.Store.Scope(), logger, metrics.NewNop())
	s.reports = application.NewReportService(s.Store, logger)

	item, err := s.items.CreateItem(s.ctx, application.CreateItemCommand{
		OwnerID: s.owner, Name: "Canned tomato", SKU: "TOM-1", ProfitMargin: decimal.RequireFromString("0.2"),
	})
	s.Require().NoError(err)
	s.itemID = item.ID
}

// ItemID returns the item created for the current test
func (s *StoreSuite) ItemID() string {
	return s.itemID
}

func (s *StoreSuite) entry(batch string, qty int64, cost string, exp *time.Time) *application.LedgerResult {
	r, err := s.ledger.Entry(s.ctx, application.EntryCommand{
		OwnerID: s.owner, ItemID: s.itemID, BatchCode: batch, Quantity: qty,
		UnitCost: decimal.RequireFromString(cost), ExpirationDate: exp,
	})
	s.Require().NoError(err)
	return r
}

func (s *StoreSuite) sale(qty int64) (*application.LedgerResult, error) {
	return s.ledger.Sale(s.ctx, application.SaleCommand{OwnerID: s.owner, ItemID: s.itemID, Quantity: qty})
}

func (s *StoreSuite) lots() map[string]int64 {
	entries, err := s.Store.Movements().FindEntries(s.ctx, s.owner, false)
	s.Require().NoError(err)
	out := make(map[string]int64, len(entries))
	for _, m := range entries {
		out[m.BatchCode] = m.RemainingQuantity
	}
	return out
}

func (s *StoreSuite) item() *domain.InventoryItem {
	item, err := s.Store.Items().FindByID(s.ctx, s.owner, s.itemID)
	s.Require().NoError(err)
	return item
}

func (s *StoreSuite) requireCode(err error, code string) {
	s.Require().Error(err)
	appErr, ok := apperrors.AsAppError(err)
	s.Require().True(ok, "expected AppError, got %T: %v", err, err)
	s.Equal(code, appErr.Code)
}

func (s *StoreSuite) TestFIFOSaleAcrossLots() {
	s.entry("A", 10, "2", nil)
	s.entry("B", 10, "4", nil)
	s.entry("C", 10, "6", nil)

	r, err := s.sale(15)
	s.Require().NoError(err)
	s.Equal("A,B", r.Movement.BatchCode)
	s.Equal(map[string]int64{"B": 5, "C": 10}, s.lots())

	item := s.item()
	s.Equal(int64(15), item.OnHandQty)
	testhelpers.AssertDecimalEqual(s.T(), "5.3333", item.UnitCost)
	s.NotNil(item.LastEntryAt)
}

func (s *StoreSuite) TestFIFOTieBreakOnSameInstant() {
	instant := time.Now().UTC().Truncate(time.Millisecond)
	s.ledger = application.NewLedgerService(s.Store.Scope(), logging.NewNop(), metrics.NewNop(),
		application.WithClock(func() time.Time { return instant }))

	const lotCount = 25
	batches := make([]string, 0, lotCount)
	for i := 0; i < lotCount; i++ {
		batch := fmt.Sprintf("S%02d", i)
		s.entry(batch, 2, "1", nil)
		batches = append(batches, batch)
	}

	r, err := s.sale(2*lotCount - 1)
	s.Require().NoError(err)
	s.Equal(strings.Join(batches, ","), r.Movement.BatchCode)
	s.Require().Len(r.LotsUsed, lotCount)
	s.Equal(int64(1), r.LotsUsed[lotCount-1].Quantity)
	s.Equal(map[string]int64{batches[lotCount-1]: 1}, s.lots())
}

func (s *StoreSuite) TestDuplicateActiveBatchRejected() {
	s.entry("LOT-1", 5, "1", nil)

	_, err := s.ledger.Entry(s.ctx, application.EntryCommand{
		OwnerID: s.owner, ItemID: s.itemID, BatchCode: "LOT-1", Quantity: 1, UnitCost: decimal.NewFromInt(1),
	})
	s.requireCode(err, apperrors.CodeDuplicateBatch)
	s.Equal(int64(5), s.item().OnHandQty)
}

func (s *StoreSuite) TestInsufficientStockWritesNothing() {
	s.entry("A", 3, "2", nil)
	s.entry("B", 3, "4", nil)

	_, err := s.sale(7)
	s.requireCode(err, apperrors.CodeInsufficientStock)

	s.Equal(map[string]int64{"A": 3, "B": 3}, s.lots())
	item := s.item()
	s.Equal(int64(6), item.OnHandQty)
	testhelpers.AssertDecimalEqual(s.T(), "3.0000", item.UnitCost)

	all, err := s.Store.Movements().FindAll(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *StoreSuite) TestExitAndExpire() {
	s.entry("A", 10, "2", nil)
	s.entry("B", 10, "4", nil)

	r, err := s.ledger.Exit(s.ctx, application.ExitCommand{OwnerID: s.owner, ItemID: s.itemID, BatchCode: "A", Quantity: 10})
	s.Require().NoError(err)
	testhelpers.AssertDecimalEqual(s.T(), "2", r.Movement.UnitCost)
	testhelpers.AssertDecimalEqual(s.T(), "4.0000", r.Item.UnitCost)

	_, err = s.ledger.Exit(s.ctx, application.ExitCommand{OwnerID: s.owner, ItemID: s.itemID, BatchCode: "A", Quantity: 1})
	s.requireCode(err, apperrors.CodeBatchNotFound)

	_, err = s.ledger.Expire(s.ctx, application.ExpireCommand{OwnerID: s.owner, ItemID: s.itemID, BatchCode: "B", Quantity: 11})
	s.requireCode(err, apperrors.CodeExceedsLotStock)

	r, err = s.ledger.Expire(s.ctx, application.ExpireCommand{OwnerID: s.owner, ItemID: s.itemID, BatchCode: "B", Quantity: 10})
	s.Require().NoError(err)
	s.Equal(int64(0), r.Item.OnHandQty)
	testhelpers.AssertDecimalEqual(s.T(), "0", s.item().UnitCost)
	s.Empty(s.lots())
}

func (s *StoreSuite) TestDeactivatedSKUCanBeReused() {
	_, err := s.items.CreateItem(s.ctx, application.CreateItemCommand{OwnerID: s.owner, Name: "Other", SKU: "TOM-1"})
	s.requireCode(err, apperrors.CodeDuplicateSKU)

	s.Require().NoError(s.items.DeactivateItem(s.ctx, s.owner, s.itemID))

	_, err = s.items.CreateItem(s.ctx, application.CreateItemCommand{OwnerID: s.owner, Name: "Other", SKU: "TOM-1"})
	s.Require().NoError(err)

	_, err = s.sale(1)
	s.requireCode(err, apperrors.CodeItemNotFound)
}

func (s *StoreSuite) TestReports() {
	today := time.Now().UTC()
	soon := today.AddDate(0, 0, 3)
	later := today.AddDate(0, 0, 40)
	s.entry("SOON", 4, "1", &soon)
	s.entry("LATER", 4, "1", &later)
	s.entry("NODATE", 4, "1", nil)
	_, err := s.sale(1)
	s.Require().NoError(err)

	stock, err := s.reports.CurrentStock(s.ctx, application.CurrentStockQuery{OwnerID: s.owner, ItemName: ptr("tomato")})
	s.Require().NoError(err)
	s.Require().Len(stock.Data, 1)
	s.Equal(int64(11), stock.Data[0].OnHandQty)

	history, err := s.reports.MovementHistory(s.ctx, application.MovementHistoryQuery{
		OwnerID: s.owner, StartDate: today.Add(-time.Hour), EndDate: today.Add(time.Hour),
		Page: api.PageRequest{Page: 1, PageSize: 3},
	})
	s.Require().NoError(err)
	s.Equal(int64(4), history.Total)
	s.Require().Len(history.Data, 3)
	s.Equal("SALE", history.Data[0].Type)
	s.Equal("Canned tomato", history.Data[0].ProductName)

	expiring, err := s.reports.ExpiringStock(s.ctx, application.ExpiringStockQuery{OwnerID: s.owner, Status: "all"})
	s.Require().NoError(err)
	s.Require().Len(expiring.Data, 3)
	s.Equal("SOON", expiring.Data[0].BatchCode)
	s.Equal(int64(3), expiring.Data[0].RemainingQuantity)
	s.Equal("LATER", expiring.Data[1].BatchCode)
	s.Equal("NODATE", expiring.Data[2].BatchCode)

	soonOnly, err := s.reports.ExpiringStock(s.ctx, application.ExpiringStockQuery{OwnerID: s.owner})
	s.Require().NoError(err)
	s.Require().Len(soonOnly.Data, 1)
	s.Equal("SOON", soonOnly.Data[0].BatchCode)
}

// TestConcurrentSalesNeverOversell retries conflicts the way a client would
// and checks that stock is never sold twice.
func (s *StoreSuite) TestConcurrentSalesNeverOversell() {
	s.entry("A", 10, "1", nil)

	const workers = 15
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 0; attempt < 50; attempt++ {
				_, err := s.sale(1)
				if err == nil {
					mu.Lock()
					sold++
					mu.Unlock()
					return
				}
				var appErr *apperrors.AppError
				if errors.As(err, &appErr) && appErr.Retryable() {
					time.Sleep(time.Duration(attempt+1) * 5 * time.Millisecond)
					continue
				}
				return
			}
		}()
	}
	wg.Wait()

	s.Equal(10, sold)
	s.Equal(int64(0), s.item().OnHandQty)
	s.Empty(s.lots())
}

func ptr[T any](v T) *T { return &v }
