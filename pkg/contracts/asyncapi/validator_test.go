package asyncapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wms-platform/lot-ledger/docs"
	"github.com/wms-platform/lot-ledger/pkg/cloudevents"
)

func TestDeriveEventType(t *testing.T) {
	tests := []struct {
		schema   string
		expected string
	}{
		{"MovementRecordedData", "ledger.movement.recorded"},
		{"ItemDeactivatedData", "ledger.item.deactivated"},
		{"StockLevelChangedData", "ledger.stock.level-changed"},
		{"MovementRecorded", ""},
		{"ItemData", ""},
		{"Data", ""},
	}

	for _, tt := range tests {
		t.Run(tt.schema, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveEventType(tt.schema))
		})
	}
}

func TestEmbeddedContractRegistersLedgerEvents(t *testing.T) {
	v, err := NewEventValidatorFromBytes(docs.AsyncAPI)
	require.NoError(t, err)

	assert.Equal(t, []string{
		cloudevents.ItemCreated,
		cloudevents.ItemDeactivated,
		cloudevents.MovementDeactivated,
		cloudevents.MovementRecorded,
	}, v.SupportedEventTypes())
}

func TestValidateMovementRecorded(t *testing.T) {
	v, err := NewEventValidatorFromBytes(docs.AsyncAPI)
	require.NoError(t, err)

	valid := map[string]any{
		"movementId":   "m-1",
		"ownerId":      "owner-1",
		"itemId":       "item-1",
		"type":         "SALE",
		"quantity":     7,
		"unitCost":     "9.9900",
		"batchCode":    "L1,L2",
		"lotsUsed":     []map[string]any{{"movementId": "e-1", "batchCode": "L1", "quantity": 5}, {"movementId": "e-2", "batchCode": "L2", "quantity": 2}},
		"onHandQty":    13,
		"itemUnitCost": "3.0000",
		"recordedAt":   time.Now().UTC().Format(time.RFC3339Nano),
	}

	event := &cloudevents.LedgerCloudEvent{Type: cloudevents.MovementRecorded, Data: valid}
	assert.NoError(t, v.Validate(event))

	t.Run("unknown movement type", func(t *testing.T) {
		bad := copyMap(valid)
		bad["type"] = "RETURN"
		assert.Error(t, v.Validate(&cloudevents.LedgerCloudEvent{Type: cloudevents.MovementRecorded, Data: bad}))
	})

	t.Run("cost not at ledger scale", func(t *testing.T) {
		bad := copyMap(valid)
		bad["unitCost"] = "9.99"
		assert.Error(t, v.Validate(&cloudevents.LedgerCloudEvent{Type: cloudevents.MovementRecorded, Data: bad}))
	})

	t.Run("missing item state", func(t *testing.T) {
		bad := copyMap(valid)
		delete(bad, "onHandQty")
		assert.Error(t, v.Validate(&cloudevents.LedgerCloudEvent{Type: cloudevents.MovementRecorded, Data: bad}))
	})
}

func TestValidateEventJSON(t *testing.T) {
	v, err := NewEventValidatorFromBytes(docs.AsyncAPI)
	require.NoError(t, err)

	ok := []byte(`{"specversion":"1.0","type":"ledger.item.created","source":"/ledger","id":"1",
		"data":{"itemId":"i-1","ownerId":"o-1","name":"Shampoo","sku":"SH-1","createdAt":"2026-03-14T10:00:00Z"}}`)
	assert.NoError(t, v.ValidateEventJSON(ok))

	unknown := []byte(`{"specversion":"1.0","type":"ledger.item.renamed","source":"/ledger","id":"1","data":{}}`)
	assert.ErrorContains(t, v.ValidateEventJSON(unknown), "no schema found")

	noData := []byte(`{"specversion":"1.0","type":"ledger.item.created","source":"/ledger","id":"1"}`)
	assert.ErrorContains(t, v.ValidateEventJSON(noData), "event data is required")
}

func TestRegisterSchema(t *testing.T) {
	v, err := NewEventValidatorFromBytes(docs.AsyncAPI)
	require.NoError(t, err)

	err = v.RegisterSchema("ledger.test.pinged", []byte(`{"type":"object","required":["at"]}`))
	require.NoError(t, err)
	assert.True(t, v.HasSchema("ledger.test.pinged"))

	assert.NoError(t, v.ValidatePayload("ledger.test.pinged", []byte(`{"at":"now"}`)))
	assert.Error(t, v.ValidatePayload("ledger.test.pinged", []byte(`{}`)))
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type recordingPublisher struct {
	published []*cloudevents.LedgerCloudEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, _ string, event *cloudevents.LedgerCloudEvent) error {
	p.published = append(p.published, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestValidatingPublisher(t *testing.T) {
	v, err := NewEventValidatorFromBytes(docs.AsyncAPI)
	require.NoError(t, err)

	next := &recordingPublisher{}
	publisher := NewValidatingPublisher(next, v)
	ctx := context.Background()

	bad := &cloudevents.LedgerCloudEvent{ID: "e-1", Type: cloudevents.MovementRecorded, Data: map[string]any{"movementId": "m-1"}}
	assert.Error(t, publisher.PublishEvent(ctx, "ledger.movements.events", bad))
	assert.Empty(t, next.published)

	unknown := &cloudevents.LedgerCloudEvent{ID: "e-2", Type: "ledger.custom.event", Data: map[string]any{}}
	require.NoError(t, publisher.PublishEvent(ctx, "ledger.movements.events", unknown))
	assert.Len(t, next.published, 1)
}
