package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/lot-ledger/internal/domain"
)

const owner = "owner-1"

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedItem(t *testing.T, s *Store, name, sku string) *domain.InventoryItem {
	t.Helper()
	item, err := domain.NewInventoryItem(owner, name, sku, decimal.Zero, t0)
	require.NoError(t, err)
	err = s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Items().Create(ctx, item)
	})
	require.NoError(t, err)
	return item
}

func seedLot(t *testing.T, s *Store, itemID, batch string, qty int64, cost string, at time.Time) *domain.Movement {
	t.Helper()
	lot, err := domain.NewEntryMovement(owner, itemID, batch, qty, decimal.RequireFromString(cost), "", nil, at)
	require.NoError(t, err)
	err = s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Lots().CreateMovement(ctx, lot)
	})
	require.NoError(t, err)
	return lot
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	s := NewStore()
	item := seedItem(t, s, "Widget", "W-1")
	lot := seedLot(t, s, item.ID, "B1", 10, "2.00", t0)

	boom := errors.New("boom")
	err := s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Items().Lock(ctx, owner, item.ID)
		require.NoError(t, err)
		require.NoError(t, tx.Lots().UpdateRemainingQuantity(ctx, lot.ID, 3))
		require.NoError(t, tx.Items().ApplyConsumptionEffect(ctx, item.ID, 7, nil, t0))
		require.NoError(t, tx.Events().Record(ctx, item.ID, &domain.ItemDeactivatedEvent{ItemID: item.ID}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := s.Movements().FindByID(context.Background(), owner, lot.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.RemainingQuantity)

	storedItem, err := s.Items().FindByID(context.Background(), owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), storedItem.OnHandQty)
	assert.Empty(t, s.Events())
}

func TestStore_ReadsSeeOwnWrites(t *testing.T) {
	s := NewStore()
	item := seedItem(t, s, "Widget", "W-1")
	seedLot(t, s, item.ID, "B1", 5, "1.00", t0)

	err := s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		lot, err := domain.NewEntryMovement(owner, item.ID, "B2", 4, decimal.NewFromInt(2), "", nil, t0.Add(time.Minute))
		require.NoError(t, err)
		require.NoError(t, tx.Lots().CreateMovement(ctx, lot))

		lots, err := tx.Lots().FindActiveEntries(ctx, owner, item.ID)
		require.NoError(t, err)
		require.Len(t, lots, 2)
		assert.Equal(t, "B1", lots[0].BatchCode)
		assert.Equal(t, "B2", lots[1].BatchCode)

		// not visible outside the transaction yet
		outside, err := s.Movements().FindEntries(context.Background(), owner, false)
		require.NoError(t, err)
		assert.Len(t, outside, 1)
		return nil
	})
	require.NoError(t, err)

	entries, err := s.Movements().FindEntries(context.Background(), owner, false)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStore_DuplicateBatch(t *testing.T) {
	s := NewStore()
	item := seedItem(t, s, "Widget", "W-1")
	seedLot(t, s, item.ID, "B1", 5, "1.00", t0)

	dup, err := domain.NewEntryMovement(owner, item.ID, "B1", 1, decimal.NewFromInt(1), "", nil, t0)
	require.NoError(t, err)
	err = s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Lots().CreateMovement(ctx, dup)
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateBatch)
}

func TestStore_DuplicateBatchDetectedOnCommit(t *testing.T) {
	s := NewStore()
	item := seedItem(t, s, "Widget", "W-1")

	first, err := domain.NewEntryMovement(owner, item.ID, "B1", 1, decimal.NewFromInt(1), "", nil, t0)
	require.NoError(t, err)
	second, err := domain.NewEntryMovement(owner, item.ID, "B1", 2, decimal.NewFromInt(1), "", nil, t0)
	require.NoError(t, err)

	err = s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		require.NoError(t, tx.Lots().CreateMovement(ctx, first))
		// a concurrent transaction commits the same batch first
		return s.Scope().Execute(ctx, func(ctx context.Context, inner domain.Tx) error {
			return inner.Lots().CreateMovement(ctx, second)
		})
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateBatch)

	entries, err := s.Movements().FindEntries(context.Background(), owner, false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, second.ID, entries[0].ID)
}

func TestStore_DuplicateSKU(t *testing.T) {
	s := NewStore()
	seedItem(t, s, "Widget", "W-1")

	other, err := domain.NewInventoryItem(owner, "Other", "W-1", decimal.Zero, t0)
	require.NoError(t, err)
	err = s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Items().Create(ctx, other)
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateSKU)

	// another owner may reuse the SKU
	foreign, err := domain.NewInventoryItem("owner-2", "Widget", "W-1", decimal.Zero, t0)
	require.NoError(t, err)
	err = s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Items().Create(ctx, foreign)
	})
	assert.NoError(t, err)
}

func TestStore_LockFiltersOwnerAndStatus(t *testing.T) {
	s := NewStore()
	item := seedItem(t, s, "Widget", "W-1")

	err := s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Items().Lock(ctx, "owner-2", item.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrItemNotFound)

	err = s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		locked, err := tx.Items().Lock(ctx, owner, item.ID)
		if err != nil {
			return err
		}
		locked.Deactivate(t0)
		return tx.Items().UpdateDetails(ctx, locked)
	})
	require.NoError(t, err)

	err = s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Items().Lock(ctx, owner, item.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestStore_LockSerializesTransactions(t *testing.T) {
	s := NewStore()
	item := seedItem(t, s, "Widget", "W-1")

	const workers = 20
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
				locked, err := tx.Items().Lock(ctx, owner, item.ID)
				if err != nil {
					return err
				}
				// read-modify-write that would lose updates without the lock
				return tx.Items().ApplyEntryEffect(ctx, item.ID, locked.UnitCost, 1, t0)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := s.Items().FindByID(context.Background(), owner, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), stored.OnHandQty)
	assert.Zero(t, s.lockCount())
}

func TestStore_LocksAreReleasedForUnknownItems(t *testing.T) {
	s := NewStore()

	for i := 0; i < 50; i++ {
		err := s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
			_, err := tx.Items().Lock(ctx, owner, domain.NewID())
			return err
		})
		assert.ErrorIs(t, err, domain.ErrItemNotFound)
	}
	assert.Zero(t, s.lockCount())
}

func TestStore_LockHonoursContext(t *testing.T) {
	s := NewStore()
	item := seedItem(t, s, "Widget", "W-1")

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
			_, err := tx.Items().Lock(ctx, owner, item.ID)
			close(held)
			<-done
			return err
		})
	}()
	<-held
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Scope().Execute(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Items().Lock(ctx, owner, item.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the waiter gave up, only the holder keeps the entry alive
	assert.Equal(t, 1, s.lockCount())
}

func TestStore_Readers(t *testing.T) {
	s := NewStore()
	b := seedItem(t, s, "Bolt", "B-1")
	a := seedItem(t, s, "Anchor", "A-1")
	seedLot(t, s, b.ID, "L1", 5, "1.00", t0)
	seedLot(t, s, a.ID, "L2", 5, "1.00", t0.Add(time.Hour))

	items, err := s.Items().FindAll(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Anchor", items[0].Name)

	all, err := s.Movements().FindAll(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "L2", all[0].BatchCode, "newest first")

	_, err = s.Movements().FindByID(context.Background(), "owner-2", all[0].ID)
	assert.ErrorIs(t, err, domain.ErrMovementNotFound)
}

func TestReports_ExpiringStockOrdering(t *testing.T) {
	s := NewStore()
	item := seedItem(t, s, "Milk", "M-1")
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	mk := func(batch string, exp *time.Time, qty int64) {
		lot, err := domain.NewEntryMovement(owner, item.ID, batch, qty, decimal.NewFromInt(1), "", exp, t0)
		require.NoError(t, err)
		require.NoError(t, s.Scope().Execute(context.Background(), func(ctx context.Context, tx domain.Tx) error {
			return tx.Lots().CreateMovement(ctx, lot)
		}))
	}
	past := now.AddDate(0, 0, -3)
	soon := now.AddDate(0, 0, 2)
	later := now.AddDate(0, 0, 30)
	mk("PAST", &past, 1)
	mk("SOON", &soon, 1)
	mk("LATER", &later, 1)
	mk("NONE", nil, 1)

	batches := func(status domain.ExpiringStatus) []string {
		rows, _, err := s.Reports().ExpiringStock(context.Background(), owner, domain.ExpiringStockFilter{
			Status: status, DaysUntilExpiration: 10, Now: now,
		}, domain.Pagination{Page: 1, PageSize: 10})
		require.NoError(t, err)
		out := make([]string, 0, len(rows))
		for _, r := range rows {
			assert.Equal(t, "Milk", r.ProductName)
			out = append(out, r.Movement.BatchCode)
		}
		return out
	}

	assert.Equal(t, []string{"PAST"}, batches(domain.ExpiringStatusExpired))
	assert.Equal(t, []string{"SOON"}, batches(domain.ExpiringStatusSoon))
	assert.Equal(t, []string{"PAST", "SOON", "LATER", "NONE"}, batches(domain.ExpiringStatusAll))
}

func TestReports_CurrentStockPaging(t *testing.T) {
	s := NewStore()
	for _, name := range []string{"Delta", "alpha", "Charlie", "bravo"} {
		seedItem(t, s, name, "SKU-"+name)
	}

	rows, total, err := s.Reports().CurrentStock(context.Background(), owner, domain.CurrentStockFilter{}, domain.Pagination{Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, rows, 1)

	name := "HARL"
	rows, total, err = s.Reports().CurrentStock(context.Background(), owner, domain.CurrentStockFilter{ItemName: &name}, domain.Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Charlie", rows[0].Name)
}
