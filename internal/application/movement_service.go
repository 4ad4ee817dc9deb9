package application

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/wms-platform/lot-ledger/internal/domain"
	"github.com/wms-platform/lot-ledger/pkg/logging"
)

// MovementService is the movement surface of the ledger: it routes recorded
// movements to the engine and serves the movement queries
type MovementService struct {
	ledger *LedgerService
	scope  domain.TransactionScope
	reader domain.MovementReader
	logger *logging.Logger
	now    func() time.Time
}

// NewMovementService creates a new MovementService
func NewMovementService(ledger *LedgerService, store domain.Store, logger *logging.Logger) *MovementService {
	return &MovementService{
		ledger: ledger,
		scope:  store.Scope(),
		reader: store.Movements(),
		logger: logger.WithComponent("movements"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RecordMovement runs the ledger operation selected by cmd.Type
func (s *MovementService) RecordMovement(ctx context.Context, cmd RecordMovementCommand) (*MovementResultDTO, error) {
	movementType, err := domain.ParseMovementType(cmd.Type)
	if err != nil {
		return nil, toAppError(err)
	}

	var result *LedgerResult
	switch movementType {
	case domain.MovementEntry:
		result, err = s.ledger.Entry(ctx, EntryCommand{
			OwnerID:        cmd.OwnerID,
			ItemID:         cmd.ItemID,
			BatchCode:      cmd.BatchCode,
			Quantity:       cmd.Quantity,
			UnitCost:       cmd.UnitCost,
			Description:    cmd.Description,
			ExpirationDate: cmd.ExpirationDate,
		})
	case domain.MovementSale:
		result, err = s.ledger.Sale(ctx, SaleCommand{
			OwnerID:     cmd.OwnerID,
			ItemID:      cmd.ItemID,
			Quantity:    cmd.Quantity,
			UnitCost:    cmd.UnitCost,
			Description: cmd.Description,
		})
	case domain.MovementExit:
		result, err = s.ledger.Exit(ctx, ExitCommand{
			OwnerID:     cmd.OwnerID,
			ItemID:      cmd.ItemID,
			BatchCode:   cmd.BatchCode,
			Quantity:    cmd.Quantity,
			Description: cmd.Description,
		})
	case domain.MovementExpiration:
		result, err = s.ledger.Expire(ctx, ExpireCommand{
			OwnerID:     cmd.OwnerID,
			ItemID:      cmd.ItemID,
			BatchCode:   cmd.BatchCode,
			Quantity:    cmd.Quantity,
			UnitCost:    cmd.UnitCost,
			Description: cmd.Description,
		})
	default:
		return nil, toAppError(domain.NewValidationError("type", "unsupported movement type"))
	}
	if err != nil {
		return nil, err
	}
	return ToMovementResultDTO(result), nil
}

// GetMovement returns an active movement
func (s *MovementService) GetMovement(ctx context.Context, ownerID, movementID string) (*MovementDTO, error) {
	m, err := s.reader.FindByID(ctx, ownerID, movementID)
	if err != nil {
		return nil, toAppError(refMovement(err, movementID))
	}
	return ToMovementDTO(m), nil
}

// ListMovements returns the owner's active movements, newest first
func (s *MovementService) ListMovements(ctx context.Context, ownerID string) ([]MovementDTO, error) {
	movements, err := s.reader.FindAll(ctx, ownerID)
	if err != nil {
		s.logger.WithContext(ctx).Error("Failed to list movements", "error", err)
		return nil, toAppError(err)
	}
	return ToMovementDTOs(movements), nil
}

// ListEntries returns the lots that still hold stock, oldest first
func (s *MovementService) ListEntries(ctx context.Context, ownerID string) ([]MovementDTO, error) {
	return s.listEntries(ctx, ownerID, false)
}

// ListEntriesByExpiration returns the lots with stock that carry an expiration date
func (s *MovementService) ListEntriesByExpiration(ctx context.Context, ownerID string) ([]MovementDTO, error) {
	return s.listEntries(ctx, ownerID, true)
}

func (s *MovementService) listEntries(ctx context.Context, ownerID string, withExpirationOnly bool) ([]MovementDTO, error) {
	entries, err := s.reader.FindEntries(ctx, ownerID, withExpirationOnly)
	if err != nil {
		s.logger.WithContext(ctx).Error("Failed to list entries", "error", err)
		return nil, toAppError(err)
	}
	return ToMovementDTOs(entries), nil
}

// UpdateMovement edits description and expiration date. Quantities, costs,
// type and batch code cannot change once recorded.
func (s *MovementService) UpdateMovement(ctx context.Context, cmd UpdateMovementCommand) (*MovementDTO, error) {
	var updated *domain.Movement
	err := s.scope.Execute(ctx, func(ctx context.Context, tx domain.Tx) error {
		m, err := s.lockedMovement(ctx, tx, cmd.OwnerID, cmd.MovementID)
		if err != nil {
			return err
		}
		m.UpdateDetails(cmd.Description, cmd.ExpirationDate, s.now())
		if err := tx.Lots().UpdateDetails(ctx, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return nil, toAppError(err)
	}

	s.logger.WithContext(ctx).Info("Updated movement", "movementId", updated.ID)
	return ToMovementDTO(updated), nil
}

// DeactivateMovement soft-deletes a movement. Consumed lots are not
// re-credited and the item aggregate is left as it is.
func (s *MovementService) DeactivateMovement(ctx context.Context, ownerID, movementID string) error {
	var audit map[string]any
	err := s.scope.Execute(ctx, func(ctx context.Context, tx domain.Tx) error {
		m, err := s.lockedMovement(ctx, tx, ownerID, movementID)
		if err != nil {
			return err
		}
		audit = map[string]any{"itemId": m.ItemID, "movementType": m.Type.String()}

		now := s.now()
		m.Deactivate(now)
		if err := tx.Lots().UpdateDetails(ctx, m); err != nil {
			return err
		}
		return tx.Events().Record(ctx, m.ItemID, &domain.MovementDeactivatedEvent{
			MovementID:    m.ID,
			OwnerID:       m.OwnerID,
			ItemID:        m.ItemID,
			Type:          m.Type,
			DeactivatedAt: now,
		})
	})
	if err != nil {
		return toAppError(err)
	}

	s.logger.Audit(ctx, "deactivate", "movement", movementID, ownerID, audit)
	return nil
}

// lockedMovement loads a movement for editing. Lots are re-read under their
// item's lock so edits serialize with the ledger operations on that item.
func (s *MovementService) lockedMovement(ctx context.Context, tx domain.Tx, ownerID, movementID string) (*domain.Movement, error) {
	m, err := tx.Lots().FindByID(ctx, ownerID, movementID)
	if err != nil {
		return nil, refMovement(err, movementID)
	}
	if !m.IsLot() {
		return m, nil
	}

	if _, err := tx.Items().Lock(ctx, ownerID, m.ItemID); err != nil && !stderrors.Is(err, domain.ErrItemNotFound) {
		return nil, err
	}
	m, err = tx.Lots().FindByID(ctx, ownerID, movementID)
	if err != nil {
		return nil, refMovement(err, movementID)
	}
	return m, nil
}

func refMovement(err error, movementID string) error {
	if stderrors.Is(err, domain.ErrMovementNotFound) {
		return domain.WithRef(domain.ErrMovementNotFound, movementID)
	}
	return err
}
