package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	pkgmongo "github.com/wms-platform/lot-ledger/pkg/mongodb"
	"github.com/wms-platform/lot-ledger/pkg/outbox"
)

// DefaultCollectionName is the default name for the outbox collection
const DefaultCollectionName = "outbox_events"

// OutboxRepository implements outbox.Repository for MongoDB. Save called with
// a session context joins the caller's transaction.
type OutboxRepository struct {
	collection *pkgmongo.InstrumentedCollection
}

// NewOutboxRepository creates a new MongoDB outbox repository
func NewOutboxRepository(client *pkgmongo.InstrumentedClient) *OutboxRepository {
	return &OutboxRepository{collection: client.Collection(DefaultCollectionName)}
}

func retryable() bson.M {
	return bson.M{
		"publishedAt": bson.M{"$exists": false},
		"$expr":       bson.M{"$lt": bson.A{"$retryCount", "$maxRetries"}},
	}
}

// Save saves outbox events
func (r *OutboxRepository) Save(ctx context.Context, events ...*outbox.OutboxEvent) error {
	for _, event := range events {
		if _, err := r.collection.InsertOne(ctx, event); err != nil {
			return fmt.Errorf("failed to save outbox event: %w", err)
		}
	}
	return nil
}

// FindUnpublished retrieves unpublished events up to the specified limit
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, retryable(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find unpublished events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*outbox.OutboxEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode outbox events: %w", err)
	}
	return events, nil
}

// CountPending counts retryable unpublished events
func (r *OutboxRepository) CountPending(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, retryable())
}

// MarkPublished marks an event as published
func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string, at time.Time) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": eventID},
		bson.M{"$set": bson.M{"publishedAt": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("event not found: %s", eventID)
	}
	return nil
}

// IncrementRetry increments the retry count and updates last error
func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": eventID},
		bson.M{
			"$inc": bson.M{"retryCount": 1},
			"$set": bson.M{"lastError": errorMsg},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("event not found: %s", eventID)
	}
	return nil
}

// DeletePublished deletes events published before the given time
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.collection.Underlying().DeleteMany(ctx, bson.M{
		"publishedAt": bson.M{"$exists": true, "$lt": before},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete published events: %w", err)
	}
	return result.DeletedCount, nil
}

// EnsureIndexes creates necessary indexes for the outbox collection
func (r *OutboxRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "publishedAt", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_publishedAt_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "aggregateId", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("idx_aggregateId_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "eventType", Value: 1}},
			Options: options.Index().SetName("idx_ownerId_eventType"),
		},
	}

	if _, err := r.collection.CreateIndexes(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
