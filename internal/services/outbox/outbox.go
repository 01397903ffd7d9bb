// Package outbox implements the Transactional Outbox's producer and
// consumer primitives (C7): Producer enqueues a durable side-effect row
// alongside a domain mutation's own transaction, and Consumer is the
// claim/ack/nack surface the Worker Fleet (C8) and the Reaper's DLQ
// processor (C9) both drive against a single queue.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	domainoutbox "github.com/hustlexp/core/internal/domain/outbox"
	"github.com/hustlexp/core/internal/platform/idgen"
	"github.com/hustlexp/core/internal/storage"
)

// Producer writes outbox rows. A service calls Publish from inside the same
// txrunner.Runner transaction as the mutation it accompanies, so the
// outbox.Store's write either commits with the mutation or rolls back with
// it — the row and the state change it announces are never observed apart.
type Producer struct {
	store storage.OutboxStore
}

// New constructs a Producer over store.
func New(store storage.OutboxStore) *Producer {
	return &Producer{store: store}
}

// Publish enqueues one event onto queue. idempotencyKey must be unique per
// logical side effect (not per call) so that retrying the caller's
// transaction never double-enqueues the same effect twice.
func (p *Producer) Publish(ctx context.Context, eventType, aggregateType, aggregateID, idempotencyKey string, queue domainoutbox.Queue, payload any) (domainoutbox.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domainoutbox.Event{}, err
	}
	return p.store.Enqueue(ctx, domainoutbox.Event{
		ID:             idgen.New(),
		EventType:      eventType,
		AggregateType:  aggregateType,
		AggregateID:    aggregateID,
		EventVersion:   1,
		IdempotencyKey: idempotencyKey,
		Payload:        raw,
		QueueName:      queue,
	})
}

// Consumer claims and settles rows for exactly one queue. It is the only
// thing that touches storage.OutboxStore's claim/ack/nack/dead surface —
// internal/workers.Poller drives one Consumer per queue, and
// internal/reaper's DLQ processor reads dead rows through the same type so
// both share one notion of what "claimed", "acked" and "dead" mean.
type Consumer struct {
	store storage.OutboxStore
	queue domainoutbox.Queue
}

// NewConsumer constructs a Consumer bound to queue.
func NewConsumer(store storage.OutboxStore, queue domainoutbox.Queue) *Consumer {
	return &Consumer{store: store, queue: queue}
}

// Queue reports which queue this Consumer is bound to.
func (c *Consumer) Queue() domainoutbox.Queue { return c.queue }

// Claim pulls up to limit due rows off the queue. The underlying store
// implementation is responsible for SELECT ... FOR UPDATE SKIP LOCKED so
// two Consumer instances on the same queue never claim the same row.
func (c *Consumer) Claim(ctx context.Context, limit int) ([]domainoutbox.Event, error) {
	return c.store.Claim(ctx, c.queue, limit)
}

// Ack marks id delivered.
func (c *Consumer) Ack(ctx context.Context, id string) error {
	return c.store.MarkCompleted(ctx, id)
}

// Nack reschedules id for retry at nextAttemptAt, recording lastError.
func (c *Consumer) Nack(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	return c.store.MarkFailed(ctx, id, nextAttemptAt, lastError)
}

// Dead moves id into the dead-letter state for the Reaper's DLQ processor
// to triage.
func (c *Consumer) Dead(ctx context.Context, id, lastError string) error {
	return c.store.MarkDead(ctx, id, lastError)
}

// ListDead lists up to limit dead-lettered rows on this queue.
func (c *Consumer) ListDead(ctx context.Context, limit int) ([]domainoutbox.Event, error) {
	return c.store.ListDead(ctx, c.queue, limit)
}
