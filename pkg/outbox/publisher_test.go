package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/lot-ledger/pkg/cloudevents"
	"github.com/wms-platform/lot-ledger/pkg/logging"
	"github.com/wms-platform/lot-ledger/pkg/metrics"
	testhelpers "github.com/wms-platform/lot-ledger/pkg/testing"
)

type fakeRepository struct {
	mu     sync.Mutex
	events []*OutboxEvent
}

func (r *fakeRepository) Save(_ context.Context, events ...*OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *fakeRepository) FindUnpublished(_ context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*OutboxEvent
	for _, e := range r.events {
		if e.ShouldRetry() && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepository) CountPending(ctx context.Context) (int64, error) {
	events, _ := r.FindUnpublished(ctx, 1<<30)
	return int64(len(events)), nil
}

func (r *fakeRepository) find(id string) *OutboxEvent {
	for _, e := range r.events {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (r *fakeRepository) MarkPublished(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.find(id).PublishedAt = &at
	return nil
}

func (r *fakeRepository) IncrementRetry(_ context.Context, id string, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.find(id)
	e.RetryCount++
	e.LastError = msg
	return nil
}

func (r *fakeRepository) DeletePublished(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeProducer struct {
	mu        sync.Mutex
	err       error
	published []*cloudevents.LedgerCloudEvent
}

func (p *fakeProducer) PublishEvent(_ context.Context, _ string, event *cloudevents.LedgerCloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	return nil
}

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func (p *fakeProducer) Close() error { return nil }

func newOutboxEvent(t *testing.T, id string) *OutboxEvent {
	t.Helper()
	ce := cloudevents.NewEventFactory(cloudevents.SourceLedger).
		CreateEvent(context.Background(), cloudevents.MovementRecorded, "item/item-1", map[string]any{"n": 1})
	ce.ID = id
	event, err := NewOutboxEvent("item", "item-1", "ledger.movements.events", ce)
	require.NoError(t, err)
	return event
}

func TestPublisherProcessBatch(t *testing.T) {
	repo := &fakeRepository{}
	require.NoError(t, repo.Save(context.Background(), newOutboxEvent(t, "e1"), newOutboxEvent(t, "e2")))
	producer := &fakeProducer{}

	p := NewPublisher(repo, producer, logging.NewNop(), metrics.NewNop(), &PublisherConfig{PollInterval: time.Hour, BatchSize: 10})

	assert.Equal(t, 2, p.ProcessBatch(context.Background()))
	require.Len(t, producer.published, 2)
	assert.Equal(t, "e1", producer.published[0].ID)
	assert.True(t, repo.find("e1").IsPublished())

	assert.Equal(t, 0, p.ProcessBatch(context.Background()))
	assert.Equal(t, map[string]int{"published": 2, "failed": 0}, p.Stats())
}

func TestPublisherRetriesFailedEvents(t *testing.T) {
	repo := &fakeRepository{}
	event := newOutboxEvent(t, "e1")
	event.MaxRetries = 2
	require.NoError(t, repo.Save(context.Background(), event))
	producer := &fakeProducer{err: errors.New("broker down")}

	p := NewPublisher(repo, producer, logging.NewNop(), nil, &PublisherConfig{PollInterval: time.Hour, BatchSize: 10})

	assert.Equal(t, 0, p.ProcessBatch(context.Background()))
	assert.Equal(t, 1, event.RetryCount)
	assert.Contains(t, event.LastError, "broker down")

	p.ProcessBatch(context.Background())
	assert.False(t, event.ShouldRetry(), "event is parked after max retries")

	producer.err = nil
	assert.Equal(t, 0, p.ProcessBatch(context.Background()))
}

func TestPublisherStartStop(t *testing.T) {
	repo := &fakeRepository{}
	require.NoError(t, repo.Save(context.Background(), newOutboxEvent(t, "e1"), newOutboxEvent(t, "e2")))
	producer := &fakeProducer{}
	p := NewPublisher(repo, producer, logging.NewNop(), nil, &PublisherConfig{PollInterval: 10 * time.Millisecond, BatchSize: 1})

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()), "already running")

	testhelpers.AssertEventually(t, func() bool { return producer.count() == 2 }, 2*time.Second, "outbox drained")

	require.NoError(t, p.Stop())
	assert.Error(t, p.Stop(), "already stopped")
	assert.Equal(t, map[string]int{"published": 2, "failed": 0}, p.Stats())
}
