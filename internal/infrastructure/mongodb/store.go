package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/lot-ledger/internal/domain"
	"github.com/wms-platform/lot-ledger/pkg/cloudevents"
	"github.com/wms-platform/lot-ledger/pkg/kafka"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	pkgmongo "github.com/wms-platform/lot-ledger/pkg/mongodb"
	outboxMongo "github.com/wms-platform/lot-ledger/pkg/outbox/mongodb"
)

// Store implements domain.Store on MongoDB. Ledger transactions run as
// multi-document transactions and need a replica set.
type Store struct {
	client       *pkgmongo.InstrumentedClient
	items        *pkgmongo.InstrumentedCollection
	movements    *pkgmongo.InstrumentedCollection
	outbox       *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
	topic        string
	logger       *logging.Logger
}

// NewStore creates a MongoDB store. Events recorded in a ledger transaction
// are written to the outbox collection in the same transaction.
func NewStore(client *pkgmongo.InstrumentedClient, eventFactory *cloudevents.EventFactory, logger *logging.Logger, opts ...StoreOption) *Store {
	s := &Store{
		client:       client,
		items:        client.Collection(ItemsCollection),
		movements:    client.Collection(MovementsCollection),
		outbox:       outboxMongo.NewOutboxRepository(client),
		eventFactory: eventFactory,
		topic:        kafka.LedgerEventsTopic,
		logger:       logger.WithComponent("mongodb-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithEventTopic sets the topic recorded on outbox events
func WithEventTopic(topic string) StoreOption {
	return func(s *Store) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// Outbox returns the outbox repository the publisher drains
func (s *Store) Outbox() *outboxMongo.OutboxRepository {
	return s.outbox
}

func (s *Store) Scope() domain.TransactionScope { return scope{s} }
func (s *Store) Items() domain.ItemReader       { return itemReader{s} }
func (s *Store) Movements() domain.MovementReader {
	return movementReader{s}
}
func (s *Store) Reports() domain.ReportRepository { return reports{s} }

// EnsureIndexes creates the uniqueness and lookup indexes the ledger relies on.
// The partial unique indexes only cover ACTIVE documents so a deactivated
// batch or SKU can be reused.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	movementIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "itemId", Value: 1}, {Key: "batchCode", Value: 1}},
			Options: options.Index().
				SetName("uniq_active_batch").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"type": string(domain.MovementEntry), "status": string(domain.StatusActive)}),
		},
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "itemId", Value: 1}, {Key: "type", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("fifo_lots"),
		},
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("owner_history"),
		},
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "expirationDate", Value: 1}},
			Options: options.Index().SetName("owner_expiration"),
		},
	}
	if _, err := s.movements.CreateIndexes(ctx, movementIndexes); err != nil {
		return fmt.Errorf("failed to create movement indexes: %w", err)
	}

	itemIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "sku", Value: 1}},
			Options: options.Index().
				SetName("uniq_active_sku").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": string(domain.StatusActive)}),
		},
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetName("owner_name"),
		},
	}
	if _, err := s.items.CreateIndexes(ctx, itemIndexes); err != nil {
		return fmt.Errorf("failed to create item indexes: %w", err)
	}

	return s.outbox.EnsureIndexes(ctx)
}

// storeError translates driver errors into the ledger's error kinds
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if pkgmongo.IsTransactionConflict(err) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrTransactionConflict, err)
	}
	return domain.StorageError(op, err)
}

func decodeItems(ctx context.Context, cursor *mongo.Cursor) ([]*domain.InventoryItem, error) {
	defer cursor.Close(ctx)

	var docs []itemDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]*domain.InventoryItem, 0, len(docs))
	for i := range docs {
		item, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeMovements(ctx context.Context, cursor *mongo.Cursor) ([]*domain.Movement, error) {
	defer cursor.Close(ctx)

	var docs []movementDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	movements := make([]*domain.Movement, 0, len(docs))
	for i := range docs {
		m, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, nil
}

func findItem(ctx context.Context, coll *pkgmongo.InstrumentedCollection, filter bson.M) (*domain.InventoryItem, error) {
	var doc itemDocument
	if err := coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if pkgmongo.IsNotFound(err) {
			return nil, domain.ErrItemNotFound
		}
		return nil, storeError("find item", err)
	}
	return doc.toDomain()
}

func findMovement(ctx context.Context, coll *pkgmongo.InstrumentedCollection, filter bson.M, notFound error) (*domain.Movement, error) {
	var doc movementDocument
	if err := coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound
		}
		return nil, storeError("find movement", err)
	}
	return doc.toDomain()
}

func activeFilter(ownerID string) bson.M {
	return bson.M{"ownerId": ownerID, "status": string(domain.StatusActive)}
}

func lotsFilter(ownerID string) bson.M {
	f := activeFilter(ownerID)
	f["type"] = string(domain.MovementEntry)
	return f
}

var (
	fifoSort   = pkgmongo.SortMultiple(pkgmongo.SortField{Field: "createdAt"}, pkgmongo.SortField{Field: "_id"})
	newestSort = pkgmongo.SortMultiple(pkgmongo.SortField{Field: "createdAt", Descending: true}, pkgmongo.SortField{Field: "_id", Descending: true})
	nameSort   = pkgmongo.SortMultiple(pkgmongo.SortField{Field: "name"}, pkgmongo.SortField{Field: "_id"})
)
