// Package memory is an in-process ledger store. Transactions stage their
// writes in an overlay that is applied atomically on commit; items are
// serialized with per-item locks held until the transaction ends.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/wms-platform/lot-ledger/internal/domain"
)

// RecordedEvent is a domain event committed together with its transaction
type RecordedEvent struct {
	AggregateID string
	Event       domain.DomainEvent
}

// Store keeps committed items, movements and events in memory
type Store struct {
	mu        sync.RWMutex
	items     map[string]*domain.InventoryItem
	movements map[string]*domain.Movement
	events    []RecordedEvent

	locksMu sync.Mutex
	locks   map[string]*itemLock
}

// itemLock is dropped from Store.locks once no transaction holds or waits for it
type itemLock struct {
	ch   chan struct{}
	refs int
}

var _ domain.Store = (*Store)(nil)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		items:     make(map[string]*domain.InventoryItem),
		movements: make(map[string]*domain.Movement),
		locks:     make(map[string]*itemLock),
	}
}

// Scope returns the transaction scope of the store
func (s *Store) Scope() domain.TransactionScope { return scope{s} }

// Items returns the item read model
func (s *Store) Items() domain.ItemReader { return itemReader{s} }

// Movements returns the movement read model
func (s *Store) Movements() domain.MovementReader { return movementReader{s} }

// Reports returns the report queries
func (s *Store) Reports() domain.ReportRepository { return reports{s} }

// Events returns a copy of every committed event in commit order
func (s *Store) Events() []RecordedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RecordedEvent(nil), s.events...)
}

// lock acquires the item's lock or gives up when ctx is done
func (s *Store) lock(ctx context.Context, itemID string) error {
	s.locksMu.Lock()
	l, ok := s.locks[itemID]
	if !ok {
		l = &itemLock{ch: make(chan struct{}, 1)}
		s.locks[itemID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		s.release(itemID, l)
		return ctx.Err()
	}
}

func (s *Store) unlock(itemID string) {
	s.locksMu.Lock()
	l := s.locks[itemID]
	s.locksMu.Unlock()
	<-l.ch
	s.release(itemID, l)
}

func (s *Store) release(itemID string, l *itemLock) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, itemID)
	}
}

func (s *Store) lockCount() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

// snapshot returns copies of the committed records, with overlay records
// replacing committed ones of the same ID
func (s *Store) snapshotMovements(overlay map[string]*domain.Movement) []*domain.Movement {
	s.mu.RLock()
	out := make([]*domain.Movement, 0, len(s.movements)+len(overlay))
	for id, m := range s.movements {
		if _, ok := overlay[id]; ok {
			continue
		}
		out = append(out, cloneMovement(m))
	}
	s.mu.RUnlock()

	for _, m := range overlay {
		out = append(out, cloneMovement(m))
	}
	return out
}

func (s *Store) snapshotItems(overlay map[string]*domain.InventoryItem) []*domain.InventoryItem {
	s.mu.RLock()
	out := make([]*domain.InventoryItem, 0, len(s.items)+len(overlay))
	for id, item := range s.items {
		if _, ok := overlay[id]; ok {
			continue
		}
		out = append(out, cloneItem(item))
	}
	s.mu.RUnlock()

	for _, item := range overlay {
		out = append(out, cloneItem(item))
	}
	return out
}

func (s *Store) itemNames(ownerID string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make(map[string]string, len(s.items))
	for id, item := range s.items {
		if item.OwnerID == ownerID {
			names[id] = item.Name
		}
	}
	return names
}

func cloneMovement(m *domain.Movement) *domain.Movement {
	c := *m
	if m.ExpirationDate != nil {
		exp := *m.ExpirationDate
		c.ExpirationDate = &exp
	}
	return &c
}

func cloneItem(item *domain.InventoryItem) *domain.InventoryItem {
	c := *item
	if item.LastEntryAt != nil {
		at := *item.LastEntryAt
		c.LastEntryAt = &at
	}
	c.DomainEvents = nil
	return &c
}

// sortFIFO orders lots by createdAt, then ID
func sortFIFO(movements []*domain.Movement) {
	sort.Slice(movements, func(i, j int) bool {
		a, b := movements[i], movements[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// sortNewest orders movements by createdAt descending, then ID descending
func sortNewest(movements []*domain.Movement) {
	sort.Slice(movements, func(i, j int) bool {
		a, b := movements[i], movements[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

func sortByName(items []*domain.InventoryItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
}

func isActiveEntryWithStock(m *domain.Movement, ownerID, itemID string) bool {
	return m.OwnerID == ownerID && m.ItemID == itemID && m.HasStock()
}

func activeEntries(movements []*domain.Movement, ownerID string, withExpirationOnly bool) []*domain.Movement {
	out := make([]*domain.Movement, 0)
	for _, m := range movements {
		if m.OwnerID != ownerID || !m.HasStock() {
			continue
		}
		if withExpirationOnly && m.ExpirationDate == nil {
			continue
		}
		out = append(out, m)
	}
	sortFIFO(out)
	return out
}
