package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hustlexp/core/internal/domain/outbox"
)

func TestEnqueueDefaultsStatusAndNextAttempt(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_events")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	e, err := store.Enqueue(context.Background(), outbox.Event{
		ID: "e1", EventType: "task.accepted", AggregateType: "task", AggregateID: "t1",
		IdempotencyKey: "task.accepted:t1", QueueName: outbox.QueueNotifications, Payload: []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if e.Status != outbox.StatusPending {
		t.Fatalf("expected default status PENDING, got %s", e.Status)
	}
	if e.NextAttemptAt.IsZero() {
		t.Fatal("expected NextAttemptAt to default to now")
	}
}

func TestClaimLocksDueRowsAndFlipsToInFlight(t *testing.T) {
	store, mock := newTestStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "event_type", "aggregate_type", "aggregate_id", "event_version", "idempotency_key", "payload", "queue_name", "status", "attempts", "next_attempt_at", "last_error", "created_at", "updated_at"}).
		AddRow("e1", "task.accepted", "task", "t1", 1, "task.accepted:t1", []byte(`{}`), string(outbox.QueueNotifications), string(outbox.StatusPending), 0, now, "", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(string(outbox.QueueNotifications), string(outbox.StatusPending), 10).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events SET status = $2, attempts = attempts + 1")).
		WithArgs("e1", string(outbox.StatusInFlight), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := store.Claim(context.Background(), outbox.QueueNotifications, 10)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].Status != outbox.StatusInFlight {
		t.Fatalf("expected one claimed row flipped to IN_FLIGHT, got %+v", claimed)
	}
	if claimed[0].Attempts != 1 {
		t.Fatalf("expected attempts incremented to 1, got %d", claimed[0].Attempts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
