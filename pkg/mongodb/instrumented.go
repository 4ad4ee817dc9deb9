package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/metrics"
	"github.com/wms-platform/lot-ledger/pkg/tracing"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const driverName = "mongodb"

// InstrumentedClient wraps a MongoDB Client with metrics and tracing
type InstrumentedClient struct {
	client  *Client
	metrics *metrics.Metrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

// NewInstrumentedClient creates a new instrumented MongoDB client
func NewInstrumentedClient(client *Client, m *metrics.Metrics, logger *logging.Logger) *InstrumentedClient {
	return &InstrumentedClient{
		client:  client,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("mongodb"),
	}
}

// Collection returns an instrumented collection
func (c *InstrumentedClient) Collection(name string) *InstrumentedCollection {
	return &InstrumentedCollection{
		collection: c.client.Collection(name),
		name:       name,
		database:   c.client.config.Database,
		metrics:    c.metrics,
		logger:     c.logger,
		tracer:     c.tracer,
	}
}

// Database returns the underlying database handle
func (c *InstrumentedClient) Database() *mongo.Database {
	return c.client.Database()
}

// Close disconnects the client
func (c *InstrumentedClient) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// HealthCheck performs a health check with tracing
func (c *InstrumentedClient) HealthCheck(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "mongodb.ping",
		trace.WithAttributes(tracing.DatabaseSpanAttributes(driverName, c.client.config.Database, "ping", "")...),
	)
	defer span.End()

	err := c.client.HealthCheck(ctx)
	endSpan(span, err)
	return err
}

// RunTransaction runs fn in a transaction with tracing. Conflicts are counted
// but not retried.
func (c *InstrumentedClient) RunTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	ctx, span := c.tracer.Start(ctx, "mongodb.transaction",
		trace.WithAttributes(tracing.DatabaseSpanAttributes(driverName, c.client.config.Database, "transaction", "")...),
	)
	defer span.End()

	err := c.client.RunTransaction(ctx, fn)
	if IsTransactionConflict(err) && c.metrics != nil {
		c.metrics.RecordTransactionConflict(driverName)
	}
	endSpan(span, err)
	return err
}

// InstrumentedCollection wraps a MongoDB Collection with metrics and tracing
type InstrumentedCollection struct {
	collection *mongo.Collection
	name       string
	database   string
	metrics    *metrics.Metrics
	logger     *logging.Logger
	tracer     trace.Tracer
}

func (c *InstrumentedCollection) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "mongodb."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.DatabaseSpanAttributes(driverName, c.database, operation, c.name)...),
	)
}

func (c *InstrumentedCollection) record(ctx context.Context, operation string, start time.Time, err error, rowsAffected int64) {
	duration := time.Since(start)
	success := err == nil || errors.Is(err, mongo.ErrNoDocuments)
	if c.metrics != nil {
		c.metrics.RecordStoreOperation(driverName, c.name, operation, success, duration)
	}
	if c.logger != nil {
		c.logger.DatabaseQuery(ctx, c.name, operation, duration, success, rowsAffected)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// InsertOne inserts a single document with instrumentation
func (c *InstrumentedCollection) InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	start := time.Now()
	ctx, span := c.startSpan(ctx, "insertOne")
	defer span.End()

	result, err := c.collection.InsertOne(ctx, document, opts...)
	var rows int64
	if err == nil {
		rows = 1
	}
	c.record(ctx, "insertOne", start, err, rows)
	endSpan(span, err)
	return result, err
}

// FindOne finds a single document with instrumentation
func (c *InstrumentedCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult {
	start := time.Now()
	ctx, span := c.startSpan(ctx, "findOne")
	defer span.End()

	result := c.collection.FindOne(ctx, filter, opts...)
	var rows int64
	if result.Err() == nil {
		rows = 1
	}
	c.record(ctx, "findOne", start, result.Err(), rows)
	endSpan(span, result.Err())
	return result
}

// Find finds multiple documents with instrumentation
func (c *InstrumentedCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	start := time.Now()
	ctx, span := c.startSpan(ctx, "find")
	defer span.End()

	cursor, err := c.collection.Find(ctx, filter, opts...)
	c.record(ctx, "find", start, err, 0)
	endSpan(span, err)
	return cursor, err
}

// UpdateOne updates a single document with instrumentation
func (c *InstrumentedCollection) UpdateOne(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	start := time.Now()
	ctx, span := c.startSpan(ctx, "updateOne")
	defer span.End()

	result, err := c.collection.UpdateOne(ctx, filter, update, opts...)
	var rows int64
	if result != nil {
		rows = result.ModifiedCount
	}
	c.record(ctx, "updateOne", start, err, rows)
	endSpan(span, err)
	return result, err
}

// FindOneAndUpdate finds and updates a document with instrumentation
func (c *InstrumentedCollection) FindOneAndUpdate(ctx context.Context, filter any, update any, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	start := time.Now()
	ctx, span := c.startSpan(ctx, "findOneAndUpdate")
	defer span.End()

	result := c.collection.FindOneAndUpdate(ctx, filter, update, opts...)
	var rows int64
	if result.Err() == nil {
		rows = 1
	}
	c.record(ctx, "findOneAndUpdate", start, result.Err(), rows)
	endSpan(span, result.Err())
	return result
}

// CountDocuments counts documents with instrumentation
func (c *InstrumentedCollection) CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error) {
	start := time.Now()
	ctx, span := c.startSpan(ctx, "countDocuments")
	defer span.End()

	count, err := c.collection.CountDocuments(ctx, filter, opts...)
	c.record(ctx, "countDocuments", start, err, count)
	endSpan(span, err)
	return count, err
}

// Aggregate runs an aggregation pipeline with instrumentation
func (c *InstrumentedCollection) Aggregate(ctx context.Context, pipeline any, opts ...*options.AggregateOptions) (*mongo.Cursor, error) {
	start := time.Now()
	ctx, span := c.startSpan(ctx, "aggregate")
	defer span.End()

	cursor, err := c.collection.Aggregate(ctx, pipeline, opts...)
	c.record(ctx, "aggregate", start, err, 0)
	endSpan(span, err)
	return cursor, err
}

// CreateIndexes creates indexes with instrumentation
func (c *InstrumentedCollection) CreateIndexes(ctx context.Context, models []mongo.IndexModel) ([]string, error) {
	start := time.Now()
	ctx, span := c.startSpan(ctx, "createIndexes")
	defer span.End()

	names, err := c.collection.Indexes().CreateMany(ctx, models)
	c.record(ctx, "createIndexes", start, err, int64(len(names)))
	endSpan(span, err)
	return names, err
}

// Underlying returns the underlying MongoDB collection
func (c *InstrumentedCollection) Underlying() *mongo.Collection {
	return c.collection
}

// Name returns the collection name
func (c *InstrumentedCollection) Name() string {
	return c.name
}
