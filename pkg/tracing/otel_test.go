package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attrMap(attrs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

func TestDatabaseSpanAttributes(t *testing.T) {
	got := attrMap(DatabaseSpanAttributes("mongodb", "ledger", "find", "movements"))
	assert.Equal(t, map[string]string{
		"db.system":     "mongodb",
		"db.name":       "ledger",
		"db.operation":  "find",
		"db.collection": "movements",
	}, got)

	tx := attrMap(DatabaseSpanAttributes("postgresql", "ledger", "transaction", ""))
	assert.NotContains(t, tx, "db.collection")
	assert.Equal(t, "transaction", tx["db.operation"])
}

func TestLedgerSpanAttributes(t *testing.T) {
	got := attrMap(LedgerSpanAttributes("owner-1", "item-1", "SALE", 7))
	assert.Equal(t, "owner-1", got["ledger.owner_id"])
	assert.Equal(t, "SALE", got["ledger.movement_type"])
	assert.Equal(t, "7", got["ledger.quantity"])
}

func TestInjectTraceContext(t *testing.T) {
	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, span := provider.Tracer("test").Start(context.Background(), "ledger.sale")
	span.End()

	carrier := MapCarrier{}
	InjectTraceContext(ctx, carrier)

	require.Len(t, recorder.Ended(), 1)
	assert.Contains(t, carrier.Get("traceparent"), span.SpanContext().TraceID().String())
}

func TestInitializeDisabled(t *testing.T) {
	config := DefaultConfig("lot-ledger")
	tp, err := Initialize(context.Background(), config)
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}
