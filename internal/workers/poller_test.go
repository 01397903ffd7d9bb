package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hustlexp/core/internal/domain/outbox"
	outboxsvc "github.com/hustlexp/core/internal/services/outbox"
	"github.com/hustlexp/core/internal/storage/memory"
	"github.com/hustlexp/core/pkg/logger"
)

func TestPollerClaimsAndAcksOnWake(t *testing.T) {
	store := memory.New()
	if _, err := store.Enqueue(context.Background(), outbox.Event{
		ID: "e1", EventType: "task.progress_updated", IdempotencyKey: "k1", QueueName: outbox.QueueRealtimeFanout, Payload: []byte(`{}`),
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	var handled int32
	handler := func(ctx context.Context, e outbox.Event) error {
		atomic.AddInt32(&handled, 1)
		return nil
	}
	consumer := outboxsvc.NewConsumer(store, outbox.QueueRealtimeFanout)
	p := NewPoller("realtime_fanout", consumer, handler, time.Hour, 10, logger.NewDefault("poller_test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = p.Stop(context.Background()) }()

	p.Wake()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&handled) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&handled) != 1 {
		t.Fatal("expected Wake to trigger a tick that claims and handles the pending event")
	}

	dead, err := consumer.ListDead(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListDead: %v", err)
	}
	if len(dead) != 0 {
		t.Fatalf("expected no dead-lettered events on the success path, got %d", len(dead))
	}
}

func TestPollerNacksOnHandlerError(t *testing.T) {
	store := memory.New()
	if _, err := store.Enqueue(context.Background(), outbox.Event{
		ID: "e1", EventType: "task.progress_updated", IdempotencyKey: "k1", QueueName: outbox.QueueRealtimeFanout, Payload: []byte(`{}`),
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	handler := func(ctx context.Context, e outbox.Event) error { return context.DeadlineExceeded }
	consumer := outboxsvc.NewConsumer(store, outbox.QueueRealtimeFanout)
	p := NewPoller("realtime_fanout", consumer, handler, 20*time.Millisecond, 10, logger.NewDefault("poller_test"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	_ = p.Stop(context.Background())

	// Enqueue with the same idempotency key is a read of the existing row
	// (memory.Store.Enqueue returns the existing match unmodified), avoiding
	// any dependence on the nacked event's backoff window having elapsed.
	existing, err := store.Enqueue(context.Background(), outbox.Event{IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("Enqueue (read): %v", err)
	}
	if existing.Status != outbox.StatusPending {
		t.Fatalf("expected the failed event rescheduled to PENDING, got %s", existing.Status)
	}
	if existing.Attempts < 1 {
		t.Fatalf("expected attempts to have incremented past the first failed tick, got %d", existing.Attempts)
	}
	if !existing.NextAttemptAt.After(time.Now().UTC()) {
		t.Fatal("expected the nacked event's next attempt to be scheduled in the future")
	}
}
