package application

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/wms-platform/lot-ledger/internal/domain"
	"github.com/wms-platform/lot-ledger/pkg/logging"
)

// ItemService handles inventory item use cases. Quantity and cost are never
// written here; they belong to the ledger.
type ItemService struct {
	scope  domain.TransactionScope
	reader domain.ItemReader
	logger *logging.Logger
	now    func() time.Time
}

// NewItemService creates a new ItemService
func NewItemService(store domain.Store, logger *logging.Logger) *ItemService {
	return &ItemService{
		scope:  store.Scope(),
		reader: store.Items(),
		logger: logger.WithComponent("items"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateItem creates an item with zero stock and zero cost
func (s *ItemService) CreateItem(ctx context.Context, cmd CreateItemCommand) (*ItemDTO, error) {
	item, err := domain.NewInventoryItem(cmd.OwnerID, cmd.Name, cmd.SKU, cmd.ProfitMargin, s.now())
	if err != nil {
		return nil, toAppError(err)
	}

	err = s.scope.Execute(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Items().Create(ctx, item); err != nil {
			return err
		}
		return tx.Events().Record(ctx, item.ID, item.PullEvents()...)
	})
	if err != nil {
		if stderrors.Is(err, domain.ErrDuplicateSKU) {
			err = domain.WithRef(domain.ErrDuplicateSKU, item.SKU)
		}
		s.logger.WithContext(ctx).Error("Failed to create item", "sku", cmd.SKU, "error", err)
		return nil, toAppError(err)
	}

	s.logger.WithContext(ctx).Info("Created inventory item", "itemId", item.ID, "sku", item.SKU)
	return ToItemDTO(item), nil
}

// GetItem returns an active item
func (s *ItemService) GetItem(ctx context.Context, ownerID, itemID string) (*ItemDTO, error) {
	item, err := s.reader.FindByID(ctx, ownerID, itemID)
	if err != nil {
		return nil, toAppError(refItem(err, itemID))
	}
	return ToItemDTO(item), nil
}

// ListItems returns the owner's active items ordered by name
func (s *ItemService) ListItems(ctx context.Context, ownerID string) ([]ItemDTO, error) {
	items, err := s.reader.FindAll(ctx, ownerID)
	if err != nil {
		s.logger.WithContext(ctx).Error("Failed to list items", "error", err)
		return nil, toAppError(err)
	}
	return ToItemDTOs(items), nil
}

// UpdateItem edits name, SKU and margin
func (s *ItemService) UpdateItem(ctx context.Context, cmd UpdateItemCommand) (*ItemDTO, error) {
	var updated *domain.InventoryItem
	err := s.scope.Execute(ctx, func(ctx context.Context, tx domain.Tx) error {
		item, err := tx.Items().Lock(ctx, cmd.OwnerID, cmd.ItemID)
		if err != nil {
			return refItem(err, cmd.ItemID)
		}
		if err := item.UpdateDetails(cmd.Name, cmd.SKU, cmd.ProfitMargin, s.now()); err != nil {
			return err
		}
		if err := tx.Items().UpdateDetails(ctx, item); err != nil {
			if stderrors.Is(err, domain.ErrDuplicateSKU) {
				return domain.WithRef(domain.ErrDuplicateSKU, item.SKU)
			}
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, toAppError(err)
	}

	s.logger.WithContext(ctx).Info("Updated inventory item", "itemId", updated.ID)
	return ToItemDTO(updated), nil
}

// DeactivateItem soft-deletes an item. Its lots are left untouched.
func (s *ItemService) DeactivateItem(ctx context.Context, ownerID, itemID string) error {
	err := s.scope.Execute(ctx, func(ctx context.Context, tx domain.Tx) error {
		item, err := tx.Items().Lock(ctx, ownerID, itemID)
		if err != nil {
			return refItem(err, itemID)
		}
		item.Deactivate(s.now())
		if err := tx.Items().UpdateDetails(ctx, item); err != nil {
			return err
		}
		return tx.Events().Record(ctx, item.ID, item.PullEvents()...)
	})
	if err != nil {
		return toAppError(err)
	}

	s.logger.Audit(ctx, "deactivate", "inventory-item", itemID, ownerID, nil)
	return nil
}

func refItem(err error, itemID string) error {
	if stderrors.Is(err, domain.ErrItemNotFound) {
		return domain.WithRef(domain.ErrItemNotFound, itemID)
	}
	return err
}
