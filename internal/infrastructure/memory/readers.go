package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/wms-platform/lot-ledger/internal/domain"
)

type itemReader struct {
	s *Store
}

func (r itemReader) FindByID(_ context.Context, ownerID, itemID string) (*domain.InventoryItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	item, ok := r.s.items[itemID]
	if !ok || !item.IsActive() || item.OwnerID != ownerID {
		return nil, domain.ErrItemNotFound
	}
	return cloneItem(item), nil
}

func (r itemReader) FindAll(_ context.Context, ownerID string) ([]*domain.InventoryItem, error) {
	out := make([]*domain.InventoryItem, 0)
	for _, item := range r.s.snapshotItems(nil) {
		if item.OwnerID == ownerID && item.IsActive() {
			out = append(out, item)
		}
	}
	sortByName(out)
	return out, nil
}

type movementReader struct {
	s *Store
}

func (r movementReader) FindByID(_ context.Context, ownerID, movementID string) (*domain.Movement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.movements[movementID]
	if !ok || !m.IsActive() || m.OwnerID != ownerID {
		return nil, domain.ErrMovementNotFound
	}
	return cloneMovement(m), nil
}

func (r movementReader) FindAll(_ context.Context, ownerID string) ([]*domain.Movement, error) {
	out := make([]*domain.Movement, 0)
	for _, m := range r.s.snapshotMovements(nil) {
		if m.OwnerID == ownerID && m.IsActive() {
			out = append(out, m)
		}
	}
	sortNewest(out)
	return out, nil
}

func (r movementReader) FindEntries(_ context.Context, ownerID string, withExpirationOnly bool) ([]*domain.Movement, error) {
	return activeEntries(r.s.snapshotMovements(nil), ownerID, withExpirationOnly), nil
}

type reports struct {
	s *Store
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func page[T any](rows []T, p domain.Pagination) []T {
	skip := p.Skip()
	if skip >= int64(len(rows)) {
		return []T{}
	}
	end := skip + p.Limit()
	if p.Limit() <= 0 || end > int64(len(rows)) {
		end = int64(len(rows))
	}
	return rows[skip:end]
}

func (r reports) CurrentStock(_ context.Context, ownerID string, f domain.CurrentStockFilter, p domain.Pagination) ([]*domain.InventoryItem, int64, error) {
	out := make([]*domain.InventoryItem, 0)
	for _, item := range r.s.snapshotItems(nil) {
		if item.OwnerID != ownerID || !item.IsActive() {
			continue
		}
		if f.ItemID != nil && item.ID != *f.ItemID {
			continue
		}
		if f.ItemName != nil && !containsFold(item.Name, *f.ItemName) {
			continue
		}
		if f.MinQty != nil && item.OnHandQty < *f.MinQty {
			continue
		}
		if f.MaxQty != nil && item.OnHandQty > *f.MaxQty {
			continue
		}
		out = append(out, item)
	}
	sortByName(out)
	return page(out, p), int64(len(out)), nil
}

func (r reports) MovementHistory(_ context.Context, ownerID string, f domain.MovementHistoryFilter, p domain.Pagination) ([]domain.MovementRow, int64, error) {
	matched := make([]*domain.Movement, 0)
	for _, m := range r.s.snapshotMovements(nil) {
		if m.OwnerID != ownerID || !m.IsActive() {
			continue
		}
		if m.CreatedAt.Before(f.StartDate) || m.CreatedAt.After(f.EndDate) {
			continue
		}
		if f.ItemID != nil && m.ItemID != *f.ItemID {
			continue
		}
		if f.Type != nil && m.Type != *f.Type {
			continue
		}
		if f.BatchCode != nil && !containsFold(m.BatchCode, *f.BatchCode) {
			continue
		}
		matched = append(matched, m)
	}
	sortNewest(matched)
	return r.rows(ownerID, page(matched, p)), int64(len(matched)), nil
}

func (r reports) ExpiringStock(_ context.Context, ownerID string, f domain.ExpiringStockFilter, p domain.Pagination) ([]domain.MovementRow, int64, error) {
	from, to, requireStock := f.ExpirationWindow()

	matched := make([]*domain.Movement, 0)
	for _, m := range r.s.snapshotMovements(nil) {
		if m.OwnerID != ownerID || !m.IsLot() {
			continue
		}
		if f.ItemID != nil && m.ItemID != *f.ItemID {
			continue
		}
		if requireStock && m.RemainingQuantity <= 0 {
			continue
		}
		if from != nil || to != nil {
			if m.ExpirationDate == nil {
				continue
			}
			if from != nil && m.ExpirationDate.Before(*from) {
				continue
			}
			if to != nil && m.ExpirationDate.After(*to) {
				continue
			}
		}
		matched = append(matched, m)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i].ExpirationDate, matched[j].ExpirationDate
		switch {
		case a == nil && b == nil:
			return matched[i].ID < matched[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		default:
			return matched[i].ID < matched[j].ID
		}
	})
	return r.rows(ownerID, page(matched, p)), int64(len(matched)), nil
}

func (r reports) rows(ownerID string, movements []*domain.Movement) []domain.MovementRow {
	names := r.s.itemNames(ownerID)
	rows := make([]domain.MovementRow, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, domain.MovementRow{Movement: m, ProductName: names[m.ItemID]})
	}
	return rows
}
