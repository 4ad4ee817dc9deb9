package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/lot-ledger/internal/domain"
)

type scope struct {
	store *Store
}

// Execute runs fn against a fresh overlay. The overlay is applied only when
// fn succeeds and the uniqueness rules still hold against committed data.
func (sc scope) Execute(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	t := &tx{
		store:     sc.store,
		items:     make(map[string]*domain.InventoryItem),
		movements: make(map[string]*domain.Movement),
		held:      make(map[string]struct{}),
	}
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit()
}

type tx struct {
	store     *Store
	items     map[string]*domain.InventoryItem
	movements map[string]*domain.Movement
	events    []RecordedEvent
	held      map[string]struct{}
}

func (t *tx) Lots() domain.LotStore        { return lotStore{t} }
func (t *tx) Items() domain.ItemStore      { return itemStore{t} }
func (t *tx) Events() domain.EventRecorder { return eventRecorder{t} }

func (t *tx) release() {
	for itemID := range t.held {
		t.store.unlock(itemID)
	}
	t.held = nil
}

func (t *tx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range t.movements {
		if !m.IsLot() {
			continue
		}
		for id, other := range s.movements {
			if id != m.ID && other.IsLot() && other.OwnerID == m.OwnerID && other.ItemID == m.ItemID && other.BatchCode == m.BatchCode {
				return domain.WithRef(domain.ErrDuplicateBatch, m.BatchCode)
			}
		}
	}
	for _, item := range t.items {
		if !item.IsActive() {
			continue
		}
		for id, other := range s.items {
			if id != item.ID && other.IsActive() && other.OwnerID == item.OwnerID && other.SKU == item.SKU {
				return domain.ErrDuplicateSKU
			}
		}
	}

	for id, m := range t.movements {
		s.movements[id] = m
	}
	for id, item := range t.items {
		s.items[id] = item
	}
	s.events = append(s.events, t.events...)
	return nil
}

// item returns the overlay copy of the item, staging one if needed
func (t *tx) item(itemID string) (*domain.InventoryItem, bool) {
	if item, ok := t.items[itemID]; ok {
		return item, true
	}
	t.store.mu.RLock()
	committed, ok := t.store.items[itemID]
	t.store.mu.RUnlock()
	if !ok {
		return nil, false
	}
	item := cloneItem(committed)
	t.items[itemID] = item
	return item, true
}

func (t *tx) movement(movementID string) (*domain.Movement, bool) {
	if m, ok := t.movements[movementID]; ok {
		return m, true
	}
	t.store.mu.RLock()
	committed, ok := t.store.movements[movementID]
	t.store.mu.RUnlock()
	if !ok {
		return nil, false
	}
	m := cloneMovement(committed)
	t.movements[movementID] = m
	return m, true
}

type lotStore struct {
	t *tx
}

func (l lotStore) FindActiveEntries(_ context.Context, ownerID, itemID string) ([]*domain.Movement, error) {
	out := make([]*domain.Movement, 0)
	for _, m := range l.t.store.snapshotMovements(l.t.movements) {
		if isActiveEntryWithStock(m, ownerID, itemID) {
			out = append(out, m)
		}
	}
	sortFIFO(out)
	return out, nil
}

func (l lotStore) FindActiveEntryByBatch(_ context.Context, ownerID, itemID, batchCode string) (*domain.Movement, error) {
	for _, m := range l.t.store.snapshotMovements(l.t.movements) {
		if m.IsLot() && m.OwnerID == ownerID && m.ItemID == itemID && m.BatchCode == batchCode {
			return m, nil
		}
	}
	return nil, domain.ErrBatchNotFound
}

func (l lotStore) CreateMovement(ctx context.Context, movement *domain.Movement) error {
	if movement.IsLot() {
		if _, err := l.FindActiveEntryByBatch(ctx, movement.OwnerID, movement.ItemID, movement.BatchCode); err == nil {
			return domain.WithRef(domain.ErrDuplicateBatch, movement.BatchCode)
		}
	}
	l.t.movements[movement.ID] = cloneMovement(movement)
	return nil
}

func (l lotStore) UpdateRemainingQuantity(_ context.Context, movementID string, remaining int64) error {
	m, ok := l.t.movement(movementID)
	if !ok || !m.IsActive() {
		return domain.WithRef(domain.ErrMovementNotFound, movementID)
	}
	if remaining < 0 {
		return domain.StorageError("update remaining", fmt.Errorf("negative remaining %d for %s", remaining, movementID))
	}
	m.RemainingQuantity = remaining
	return nil
}

func (l lotStore) FindByID(_ context.Context, ownerID, movementID string) (*domain.Movement, error) {
	m, ok := l.t.movements[movementID]
	if !ok {
		l.t.store.mu.RLock()
		m, ok = l.t.store.movements[movementID]
		l.t.store.mu.RUnlock()
	}
	if !ok || !m.IsActive() || m.OwnerID != ownerID {
		return nil, domain.ErrMovementNotFound
	}
	return cloneMovement(m), nil
}

func (l lotStore) UpdateDetails(_ context.Context, movement *domain.Movement) error {
	m, ok := l.t.movement(movement.ID)
	if !ok {
		return domain.WithRef(domain.ErrMovementNotFound, movement.ID)
	}
	m.Description = movement.Description
	m.ExpirationDate = movement.ExpirationDate
	m.Status = movement.Status
	m.UpdatedAt = movement.UpdatedAt
	return nil
}

type itemStore struct {
	t *tx
}

func (i itemStore) Lock(ctx context.Context, ownerID, itemID string) (*domain.InventoryItem, error) {
	if _, ok := i.t.held[itemID]; !ok {
		if err := i.t.store.lock(ctx, itemID); err != nil {
			return nil, domain.StorageError("lock item", err)
		}
		i.t.held[itemID] = struct{}{}
	}

	item, ok := i.t.item(itemID)
	if !ok || !item.IsActive() || item.OwnerID != ownerID {
		return nil, domain.ErrItemNotFound
	}
	return cloneItem(item), nil
}

func (i itemStore) ApplyEntryEffect(_ context.Context, itemID string, newCost decimal.Decimal, deltaQty int64, at time.Time) error {
	item, ok := i.t.item(itemID)
	if !ok {
		return domain.WithRef(domain.ErrItemNotFound, itemID)
	}
	item.ApplyEntry(newCost, deltaQty, at)
	item.Version++
	return nil
}

func (i itemStore) ApplyConsumptionEffect(_ context.Context, itemID string, deltaQty int64, newCost *decimal.Decimal, at time.Time) error {
	item, ok := i.t.item(itemID)
	if !ok {
		return domain.WithRef(domain.ErrItemNotFound, itemID)
	}
	item.ApplyConsumption(deltaQty, newCost, at)
	item.Version++
	return nil
}

func (i itemStore) Create(_ context.Context, item *domain.InventoryItem) error {
	for _, other := range i.t.store.snapshotItems(i.t.items) {
		if other.IsActive() && other.OwnerID == item.OwnerID && other.SKU == item.SKU {
			return domain.ErrDuplicateSKU
		}
	}
	i.t.items[item.ID] = cloneItem(item)
	return nil
}

func (i itemStore) UpdateDetails(_ context.Context, item *domain.InventoryItem) error {
	if item.IsActive() {
		for _, other := range i.t.store.snapshotItems(i.t.items) {
			if other.ID != item.ID && other.IsActive() && other.OwnerID == item.OwnerID && other.SKU == item.SKU {
				return domain.ErrDuplicateSKU
			}
		}
	}

	stored, ok := i.t.item(item.ID)
	if !ok {
		return domain.WithRef(domain.ErrItemNotFound, item.ID)
	}
	stored.Name = item.Name
	stored.SKU = item.SKU
	stored.ProfitMargin = item.ProfitMargin
	stored.Status = item.Status
	stored.UpdatedAt = item.UpdatedAt
	stored.Version++
	return nil
}

type eventRecorder struct {
	t *tx
}

func (e eventRecorder) Record(_ context.Context, aggregateID string, events ...domain.DomainEvent) error {
	for _, event := range events {
		e.t.events = append(e.t.events, RecordedEvent{AggregateID: aggregateID, Event: event})
	}
	return nil
}
