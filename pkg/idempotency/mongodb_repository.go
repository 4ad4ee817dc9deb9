package idempotency

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	pkgmongo "github.com/wms-platform/lot-ledger/pkg/mongodb"
)

const idempotencyKeysCollection = "idempotency_keys"

// MongoKeyRepository implements KeyRepository using MongoDB
type MongoKeyRepository struct {
	collection *pkgmongo.InstrumentedCollection
}

// NewMongoKeyRepository creates a new MongoDB-backed key repository
func NewMongoKeyRepository(client *pkgmongo.InstrumentedClient) *MongoKeyRepository {
	return &MongoKeyRepository{collection: client.Collection(idempotencyKeysCollection)}
}

// AcquireLock upserts the key. The unique (serviceId, ownerId, key) index
// resolves concurrent inserts: the loser's upsert fails with a duplicate key
// error and is retried once as a plain lookup-and-lock.
func (r *MongoKeyRepository) AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	result, err := r.acquire(ctx, key)
	if pkgmongo.IsDuplicateKey(err) {
		result, err = r.acquire(ctx, key)
	}
	if err != nil {
		return nil, false, err
	}
	return result, result.ID == key.ID, nil
}

func (r *MongoKeyRepository) acquire(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"serviceId": key.ServiceID,
		"ownerId":   key.OwnerID,
		"key":       key.Key,
	}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":                key.ID,
			"requestPath":        key.RequestPath,
			"requestMethod":      key.RequestMethod,
			"requestFingerprint": key.RequestFingerprint,
			"createdAt":          key.CreatedAt,
			"expiresAt":          key.ExpiresAt,
			"lockedAt":           now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var result IdempotencyKey
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&result); err != nil {
		return nil, err
	}

	// Take over a stale lock on an unfinished key
	if result.ID != key.ID && result.CompletedAt == nil && result.LockedAt != nil && now.Sub(*result.LockedAt) >= DefaultLockTimeout {
		if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": result.ID}, bson.M{"$set": bson.M{"lockedAt": now}}); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

// ReleaseLock deletes the key so a retry starts fresh
func (r *MongoKeyRepository) ReleaseLock(ctx context.Context, keyID string) error {
	_, err := r.collection.Underlying().DeleteOne(ctx, bson.M{"_id": keyID})
	return err
}

// StoreResponse stores the final response for a completed request
func (r *MongoKeyRepository) StoreResponse(ctx context.Context, keyID string, responseCode int, responseBody []byte, headers map[string]string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": keyID},
		bson.M{
			"$set": bson.M{
				"responseCode":    responseCode,
				"responseBody":    responseBody,
				"responseHeaders": headers,
				"completedAt":     time.Now().UTC(),
			},
			"$unset": bson.M{"lockedAt": ""},
		},
	)
	return err
}

// Clean removes expired idempotency keys. The TTL index does the same
// eventually; this is for callers that need it immediately.
func (r *MongoKeyRepository) Clean(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.collection.Underlying().DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lt": before}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// EnsureIndexes creates the unique key index and the TTL index
func (r *MongoKeyRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.CreateIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "serviceId", Value: 1}, {Key: "ownerId", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_service_owner_key"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_ttl"),
		},
	})
	return err
}
