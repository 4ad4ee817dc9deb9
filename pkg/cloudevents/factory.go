package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/tenant"
	"github.com/wms-platform/lot-ledger/pkg/tracing"
)

// DomainEvent is the shape of the events the factory can wrap
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// EventFactory creates CloudEvents for ledger domain events
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new LedgerCloudEvent carrying the owner, correlation
// and trace context found in ctx
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data any) *LedgerCloudEvent {
	event := &LedgerCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		OwnerID:         tenant.OwnerID(ctx),
	}

	if correlationID, ok := ctx.Value(logging.CorrelationIDKey).(string); ok {
		event.CorrelationID = correlationID
	}

	carrier := tracing.MapCarrier{}
	tracing.InjectTraceContext(ctx, carrier)
	event.TraceParent = carrier.Get(ExtTraceParent)
	event.TraceState = carrier.Get(ExtTraceState)

	return event
}

// FromDomainEvent wraps a domain event. The subject is "<aggregate>/<id>".
func (f *EventFactory) FromDomainEvent(ctx context.Context, aggregate, aggregateID string, event DomainEvent) *LedgerCloudEvent {
	ce := f.CreateEvent(ctx, event.EventType(), aggregate+"/"+aggregateID, event)
	if at := event.OccurredAt(); !at.IsZero() {
		ce.Time = at.UTC()
	}
	return ce
}
