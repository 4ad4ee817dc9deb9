package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/lot-ledger/internal/domain"
	pkgmongo "github.com/wms-platform/lot-ledger/pkg/mongodb"
	"github.com/wms-platform/lot-ledger/pkg/outbox"
)

// itemAggregate is the CloudEvent subject prefix of ledger events
const itemAggregate = "inventory-item"

type scope struct {
	s *Store
}

// Execute runs fn in one MongoDB transaction. The session context handed to
// fn binds every store call to the transaction. A write conflict with another
// transaction is reported as domain.ErrTransactionConflict and not retried.
func (sc scope) Execute(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	err := sc.s.client.RunTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		return fn(sessCtx, &tx{s: sc.s})
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrTransactionConflict) {
		return err
	}
	if pkgmongo.IsTransactionConflict(err) {
		return fmt.Errorf("commit: %w: %v", domain.ErrTransactionConflict, err)
	}
	if isDomainError(err) {
		return err
	}
	return domain.StorageError("transaction", err)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrValidation, domain.ErrDuplicateBatch, domain.ErrBatchNotFound, domain.ErrInsufficientStock,
		domain.ErrExceedsLotStock, domain.ErrItemNotFound, domain.ErrMovementNotFound,
		domain.ErrDuplicateSKU, domain.ErrStorageFailure,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type tx struct {
	s *Store
}

func (t *tx) Lots() domain.LotStore        { return lotStore{t.s} }
func (t *tx) Items() domain.ItemStore      { return itemStore{t.s} }
func (t *tx) Events() domain.EventRecorder { return eventRecorder{t.s} }

type lotStore struct {
	s *Store
}

func (l lotStore) FindActiveEntries(ctx context.Context, ownerID, itemID string) ([]*domain.Movement, error) {
	filter := lotsFilter(ownerID)
	filter["itemId"] = itemID
	filter["remainingQuantity"] = bson.M{"$gt": 0}

	cursor, err := l.s.movements.Find(ctx, filter, options.Find().SetSort(fifoSort))
	if err != nil {
		return nil, storeError("find active entries", err)
	}
	lots, err := decodeMovements(ctx, cursor)
	if err != nil {
		return nil, storeError("decode active entries", err)
	}
	return lots, nil
}

func (l lotStore) FindActiveEntryByBatch(ctx context.Context, ownerID, itemID, batchCode string) (*domain.Movement, error) {
	filter := lotsFilter(ownerID)
	filter["itemId"] = itemID
	filter["batchCode"] = batchCode
	return findMovement(ctx, l.s.movements, filter, domain.ErrBatchNotFound)
}

func (l lotStore) CreateMovement(ctx context.Context, movement *domain.Movement) error {
	doc, err := newMovementDocument(movement)
	if err != nil {
		return domain.StorageError("encode movement", err)
	}
	if _, err := l.s.movements.InsertOne(ctx, doc); err != nil {
		if pkgmongo.IsDuplicateKey(err) && movement.IsLot() {
			return domain.WithRef(domain.ErrDuplicateBatch, movement.BatchCode)
		}
		return storeError("insert movement", err)
	}
	return nil
}

func (l lotStore) UpdateRemainingQuantity(ctx context.Context, movementID string, remaining int64) error {
	if remaining < 0 {
		return domain.StorageError("update remaining", fmt.Errorf("negative remaining %d for %s", remaining, movementID))
	}
	result, err := l.s.movements.UpdateOne(ctx,
		bson.M{"_id": movementID, "status": string(domain.StatusActive)},
		bson.M{"$set": bson.M{"remainingQuantity": remaining}},
	)
	if err != nil {
		return storeError("update remaining", err)
	}
	if result.MatchedCount == 0 {
		return domain.WithRef(domain.ErrMovementNotFound, movementID)
	}
	return nil
}

func (l lotStore) FindByID(ctx context.Context, ownerID, movementID string) (*domain.Movement, error) {
	filter := activeFilter(ownerID)
	filter["_id"] = movementID
	return findMovement(ctx, l.s.movements, filter, domain.ErrMovementNotFound)
}

func (l lotStore) UpdateDetails(ctx context.Context, movement *domain.Movement) error {
	result, err := l.s.movements.UpdateOne(ctx,
		bson.M{"_id": movement.ID},
		bson.M{"$set": bson.M{
			"description":    movement.Description,
			"expirationDate": utcPtr(movement.ExpirationDate),
			"status":         string(movement.Status),
			"updatedAt":      movement.UpdatedAt.UTC(),
		}},
	)
	if err != nil {
		return storeError("update movement", err)
	}
	if result.MatchedCount == 0 {
		return domain.WithRef(domain.ErrMovementNotFound, movement.ID)
	}
	return nil
}

type itemStore struct {
	s *Store
}

// Lock bumps the item version inside the transaction. A second transaction
// touching the same item then fails with a write conflict until this one ends.
func (i itemStore) Lock(ctx context.Context, ownerID, itemID string) (*domain.InventoryItem, error) {
	filter := activeFilter(ownerID)
	filter["_id"] = itemID

	var doc itemDocument
	err := i.s.items.FindOneAndUpdate(ctx, filter,
		bson.M{"$inc": bson.M{"version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if pkgmongo.IsNotFound(err) {
			return nil, domain.ErrItemNotFound
		}
		return nil, storeError("lock item", err)
	}
	return doc.toDomain()
}

func (i itemStore) ApplyEntryEffect(ctx context.Context, itemID string, newCost decimal.Decimal, deltaQty int64, at time.Time) error {
	cost, err := pkgmongo.DecimalToBSON(newCost)
	if err != nil {
		return domain.StorageError("encode cost", err)
	}
	return i.update(ctx, itemID, bson.M{
		"$inc": bson.M{"onHandQty": deltaQty, "version": 1},
		"$set": bson.M{"unitCost": cost, "lastEntryAt": at.UTC(), "updatedAt": at.UTC()},
	})
}

func (i itemStore) ApplyConsumptionEffect(ctx context.Context, itemID string, deltaQty int64, newCost *decimal.Decimal, at time.Time) error {
	set := bson.M{"updatedAt": at.UTC()}
	if newCost != nil {
		cost, err := pkgmongo.DecimalToBSON(*newCost)
		if err != nil {
			return domain.StorageError("encode cost", err)
		}
		set["unitCost"] = cost
	}
	return i.update(ctx, itemID, bson.M{
		"$inc": bson.M{"onHandQty": -deltaQty, "version": 1},
		"$set": set,
	})
}

func (i itemStore) update(ctx context.Context, itemID string, update bson.M) error {
	result, err := i.s.items.UpdateOne(ctx, bson.M{"_id": itemID}, update)
	if err != nil {
		return storeError("update item", err)
	}
	if result.MatchedCount == 0 {
		return domain.WithRef(domain.ErrItemNotFound, itemID)
	}
	return nil
}

func (i itemStore) Create(ctx context.Context, item *domain.InventoryItem) error {
	doc, err := newItemDocument(item)
	if err != nil {
		return domain.StorageError("encode item", err)
	}
	if _, err := i.s.items.InsertOne(ctx, doc); err != nil {
		if pkgmongo.IsDuplicateKey(err) {
			return domain.ErrDuplicateSKU
		}
		return storeError("insert item", err)
	}
	return nil
}

func (i itemStore) UpdateDetails(ctx context.Context, item *domain.InventoryItem) error {
	margin, err := pkgmongo.DecimalToBSON(item.ProfitMargin)
	if err != nil {
		return domain.StorageError("encode margin", err)
	}
	result, err := i.s.items.UpdateOne(ctx,
		bson.M{"_id": item.ID},
		bson.M{
			"$set": bson.M{
				"name":         item.Name,
				"sku":          item.SKU,
				"profitMargin": margin,
				"status":       string(item.Status),
				"updatedAt":    item.UpdatedAt.UTC(),
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		if pkgmongo.IsDuplicateKey(err) {
			return domain.ErrDuplicateSKU
		}
		return storeError("update item", err)
	}
	if result.MatchedCount == 0 {
		return domain.WithRef(domain.ErrItemNotFound, item.ID)
	}
	return nil
}

type eventRecorder struct {
	s *Store
}

// Record wraps each event in a CloudEvent and saves it to the outbox with
// the session context, so it commits or aborts with the ledger write.
func (r eventRecorder) Record(ctx context.Context, aggregateID string, events ...domain.DomainEvent) error {
	outboxEvents := make([]*outbox.OutboxEvent, 0, len(events))
	for _, event := range events {
		ce := r.s.eventFactory.FromDomainEvent(ctx, itemAggregate, aggregateID, event)
		oe, err := outbox.NewOutboxEvent(itemAggregate, aggregateID, r.s.topic, ce)
		if err != nil {
			return domain.StorageError("encode event", err)
		}
		outboxEvents = append(outboxEvents, oe)
	}
	if err := r.s.outbox.Save(ctx, outboxEvents...); err != nil {
		return storeError("save outbox events", err)
	}
	return nil
}
