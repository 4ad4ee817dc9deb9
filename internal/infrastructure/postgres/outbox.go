package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wms-platform/lot-ledger/pkg/outbox"
)

// OutboxRepository implements outbox.Repository on the outbox_events table.
// Bound to a pgx.Tx it joins the ledger transaction.
type OutboxRepository struct {
	q querier
}

var _ outbox.Repository = (*OutboxRepository)(nil)

func newOutboxRepository(q querier) *OutboxRepository {
	return &OutboxRepository{q: q}
}

// Save inserts the events
func (r *OutboxRepository) Save(ctx context.Context, events ...*outbox.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO outbox_events (id, owner_id, aggregate_id, aggregate_type, event_type, topic,
				payload, created_at, retry_count, last_error, max_retries)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			e.ID, e.OwnerID, e.AggregateID, e.AggregateType, e.EventType, e.Topic,
			string(e.Payload), e.CreatedAt.UTC(), e.RetryCount, e.LastError, e.MaxRetries)
	}
	if err := r.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

func (r *OutboxRepository) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	br := r.q.SendBatch(ctx, batch)
	for range batch.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

// FindUnpublished returns retryable unpublished events, oldest first
func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, owner_id, aggregate_id, aggregate_type, event_type, topic, payload,
			created_at, published_at, retry_count, last_error, max_retries
		FROM outbox_events
		WHERE published_at IS NULL AND retry_count < max_retries
		ORDER BY created_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find unpublished events: %w", err)
	}
	defer rows.Close()

	events := make([]*outbox.OutboxEvent, 0)
	for rows.Next() {
		var (
			e       outbox.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Topic,
			&payload, &e.CreatedAt, &e.PublishedAt, &e.RetryCount, &e.LastError, &e.MaxRetries); err != nil {
			return nil, fmt.Errorf("failed to decode outbox event: %w", err)
		}
		e.Payload = payload
		events = append(events, &e)
	}
	return events, rows.Err()
}

// CountPending counts retryable unpublished events
func (r *OutboxRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.q.QueryRow(ctx,
		`SELECT count(*) FROM outbox_events WHERE published_at IS NULL AND retry_count < max_retries`,
	).Scan(&n)
	return n, err
}

// MarkPublished marks an event as published
func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string, at time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE outbox_events SET published_at = $2 WHERE id = $1`, eventID, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event not found: %s", eventID)
	}
	return nil
}

// IncrementRetry increments the retry count and records the error
func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	_, err := r.q.Exec(ctx,
		`UPDATE outbox_events SET retry_count = retry_count + 1, last_error = $2 WHERE id = $1`,
		eventID, errorMsg)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return nil
}

// DeletePublished deletes events published before the given time
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM outbox_events WHERE published_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete published events: %w", err)
	}
	return tag.RowsAffected(), nil
}
