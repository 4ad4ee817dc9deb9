package asyncapi

import (
	"context"
	"fmt"

	"github.com/wms-platform/lot-ledger/pkg/cloudevents"
	"github.com/wms-platform/lot-ledger/pkg/kafka"
)

// ValidatingPublisher checks every event against the contract before handing
// it to the next publisher. Event types without a schema pass through.
type ValidatingPublisher struct {
	next      kafka.EventPublisher
	validator *EventValidator
}

var _ kafka.EventPublisher = (*ValidatingPublisher)(nil)

// NewValidatingPublisher wraps next with contract validation
func NewValidatingPublisher(next kafka.EventPublisher, validator *EventValidator) *ValidatingPublisher {
	return &ValidatingPublisher{next: next, validator: validator}
}

// PublishEvent validates the event and publishes it
func (p *ValidatingPublisher) PublishEvent(ctx context.Context, topic string, event *cloudevents.LedgerCloudEvent) error {
	if event != nil && p.validator.HasSchema(event.Type) {
		if err := p.validator.Validate(event); err != nil {
			return fmt.Errorf("event %s violates contract: %w", event.ID, err)
		}
	}
	return p.next.PublishEvent(ctx, topic, event)
}

// Close closes the wrapped publisher
func (p *ValidatingPublisher) Close() error {
	return p.next.Close()
}
