package outbox

import (
	"context"
	"time"
)

// Writer appends events to the outbox. Implementations bound to a ledger
// transaction make the write atomic with the movement.
type Writer interface {
	Save(ctx context.Context, events ...*OutboxEvent) error
}

// Repository defines the interface for outbox event persistence
type Repository interface {
	Writer

	// FindUnpublished retrieves retryable unpublished events, oldest first
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)

	// CountPending counts retryable unpublished events
	CountPending(ctx context.Context) (int64, error)

	// MarkPublished marks an event as published
	MarkPublished(ctx context.Context, eventID string, at time.Time) error

	// IncrementRetry increments the retry count and updates last error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error

	// DeletePublished deletes events published before the given time
	DeletePublished(ctx context.Context, before time.Time) (int64, error)
}
