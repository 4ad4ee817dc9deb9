package mongodb

import (
	"context"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/lot-ledger/internal/domain"
)

type itemReader struct {
	s *Store
}

func (r itemReader) FindByID(ctx context.Context, ownerID, itemID string) (*domain.InventoryItem, error) {
	filter := activeFilter(ownerID)
	filter["_id"] = itemID
	return findItem(ctx, r.s.items, filter)
}

func (r itemReader) FindAll(ctx context.Context, ownerID string) ([]*domain.InventoryItem, error) {
	cursor, err := r.s.items.Find(ctx, activeFilter(ownerID), options.Find().SetSort(nameSort))
	if err != nil {
		return nil, storeError("find items", err)
	}
	items, err := decodeItems(ctx, cursor)
	if err != nil {
		return nil, storeError("decode items", err)
	}
	return items, nil
}

type movementReader struct {
	s *Store
}

func (r movementReader) FindByID(ctx context.Context, ownerID, movementID string) (*domain.Movement, error) {
	filter := activeFilter(ownerID)
	filter["_id"] = movementID
	return findMovement(ctx, r.s.movements, filter, domain.ErrMovementNotFound)
}

func (r movementReader) FindAll(ctx context.Context, ownerID string) ([]*domain.Movement, error) {
	return r.find(ctx, activeFilter(ownerID), newestSort)
}

func (r movementReader) FindEntries(ctx context.Context, ownerID string, withExpirationOnly bool) ([]*domain.Movement, error) {
	filter := lotsFilter(ownerID)
	filter["remainingQuantity"] = bson.M{"$gt": 0}
	if withExpirationOnly {
		filter["expirationDate"] = bson.M{"$type": "date"}
	}
	return r.find(ctx, filter, fifoSort)
}

func (r movementReader) find(ctx context.Context, filter bson.M, sort bson.D) ([]*domain.Movement, error) {
	cursor, err := r.s.movements.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, storeError("find movements", err)
	}
	movements, err := decodeMovements(ctx, cursor)
	if err != nil {
		return nil, storeError("decode movements", err)
	}
	return movements, nil
}

type reports struct {
	s *Store
}

// containsFold matches a case-insensitive substring
func containsFold(substr string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(substr), "$options": "i"}
}

func (r reports) CurrentStock(ctx context.Context, ownerID string, f domain.CurrentStockFilter, p domain.Pagination) ([]*domain.InventoryItem, int64, error) {
	filter := activeFilter(ownerID)
	if f.ItemID != nil {
		filter["_id"] = *f.ItemID
	}
	if f.ItemName != nil {
		filter["name"] = containsFold(*f.ItemName)
	}
	qty := bson.M{}
	if f.MinQty != nil {
		qty["$gte"] = *f.MinQty
	}
	if f.MaxQty != nil {
		qty["$lte"] = *f.MaxQty
	}
	if len(qty) > 0 {
		filter["onHandQty"] = qty
	}

	total, err := r.s.items.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, storeError("count items", err)
	}

	opts := options.Find().SetSort(nameSort).SetSkip(p.Skip())
	if p.Limit() > 0 {
		opts.SetLimit(p.Limit())
	}
	cursor, err := r.s.items.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, storeError("find items", err)
	}
	items, err := decodeItems(ctx, cursor)
	if err != nil {
		return nil, 0, storeError("decode items", err)
	}
	return items, total, nil
}

func (r reports) MovementHistory(ctx context.Context, ownerID string, f domain.MovementHistoryFilter, p domain.Pagination) ([]domain.MovementRow, int64, error) {
	filter := activeFilter(ownerID)
	filter["createdAt"] = bson.M{"$gte": f.StartDate.UTC(), "$lte": f.EndDate.UTC()}
	if f.ItemID != nil {
		filter["itemId"] = *f.ItemID
	}
	if f.Type != nil {
		filter["type"] = string(*f.Type)
	}
	if f.BatchCode != nil {
		filter["batchCode"] = containsFold(*f.BatchCode)
	}

	total, err := r.s.movements.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, storeError("count movements", err)
	}
	rows, err := r.rows(ctx, ownerID, filter, newestSort, p)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r reports) ExpiringStock(ctx context.Context, ownerID string, f domain.ExpiringStockFilter, p domain.Pagination) ([]domain.MovementRow, int64, error) {
	filter := lotsFilter(ownerID)
	if f.ItemID != nil {
		filter["itemId"] = *f.ItemID
	}
	from, to, requireStock := f.ExpirationWindow()
	if requireStock {
		filter["remainingQuantity"] = bson.M{"$gt": 0}
	}
	if from != nil || to != nil {
		window := bson.M{"$type": "date"}
		if from != nil {
			window["$gte"] = from.UTC()
		}
		if to != nil {
			window["$lte"] = to.UTC()
		}
		filter["expirationDate"] = window
	}

	total, err := r.s.movements.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, storeError("count lots", err)
	}

	// lots without an expiration date sort last
	sort := bson.D{
		{Key: "noExpiration", Value: 1},
		{Key: "expirationDate", Value: 1},
		{Key: "_id", Value: 1},
	}
	rows, err := r.rows(ctx, ownerID, filter, sort, p, bson.D{{Key: "$addFields", Value: bson.M{
		"noExpiration": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{bson.M{"$type": "$expirationDate"}, "date"}}, 0, 1}},
	}}})
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// rows pages the matching movements and joins each with its item name
func (r reports) rows(ctx context.Context, ownerID string, filter bson.M, sort bson.D, p domain.Pagination, pre ...bson.D) ([]domain.MovementRow, error) {
	pipeline := []bson.D{{{Key: "$match", Value: filter}}}
	pipeline = append(pipeline, pre...)
	pipeline = append(pipeline,
		bson.D{{Key: "$sort", Value: sort}},
		bson.D{{Key: "$skip", Value: p.Skip()}},
	)
	if p.Limit() > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: p.Limit()}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$lookup", Value: bson.M{
			"from": ItemsCollection,
			"let":  bson.M{"itemId": "$itemId"},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{
					"ownerId": ownerID,
					"$expr":   bson.M{"$eq": bson.A{"$_id", "$$itemId"}},
				}},
				bson.M{"$project": bson.M{"name": 1}},
			},
			"as": "item",
		}}},
		bson.D{{Key: "$addFields", Value: bson.M{
			"productName": bson.M{"$ifNull": bson.A{bson.M{"$arrayElemAt": bson.A{"$item.name", 0}}, ""}},
		}}},
		bson.D{{Key: "$project", Value: bson.M{"item": 0, "noExpiration": 0}}},
	)

	cursor, err := r.s.movements.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, storeError("aggregate movements", err)
	}
	defer cursor.Close(ctx)

	var docs []movementRowDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storeError("decode movement rows", err)
	}
	rows := make([]domain.MovementRow, 0, len(docs))
	for i := range docs {
		row, err := docs[i].toDomain()
		if err != nil {
			return nil, storeError("decode movement row", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
