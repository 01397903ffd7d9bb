package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hustlexp/core/internal/domain/outbox"
	"github.com/hustlexp/core/internal/domain/proof"
	"github.com/hustlexp/core/internal/domain/task"
	"github.com/hustlexp/core/internal/platform/realtime"
	"github.com/hustlexp/core/internal/provider/sandbox"
	"github.com/hustlexp/core/internal/storage/memory"
	"github.com/hustlexp/core/pkg/logger"
)

func TestXPAwardHandlerUnmarshalsTaskIDAndAwards(t *testing.T) {
	var gotTaskID string
	handler := XPAwardHandler(func(ctx context.Context, taskID string) error {
		gotTaskID = taskID
		return nil
	})

	err := handler(context.Background(), outbox.Event{Payload: []byte(`{"task_id":"t1"}`)})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if gotTaskID != "t1" {
		t.Fatalf("expected task id t1, got %q", gotTaskID)
	}
}

func TestXPAwardHandlerPropagatesAwardError(t *testing.T) {
	wantErr := errors.New("boom")
	handler := XPAwardHandler(func(ctx context.Context, taskID string) error { return wantErr })

	if err := handler(context.Background(), outbox.Event{Payload: []byte(`{"task_id":"t1"}`)}); !errors.Is(err, wantErr) {
		t.Fatalf("expected error to propagate, got %v", err)
	}
}

func TestTrustReevaluateHandlerPassesDeltaAndReason(t *testing.T) {
	var gotUser string
	var gotDelta int
	var gotReason string
	handler := TrustReevaluateHandler(func(ctx context.Context, userID string, delta int, reason string) error {
		gotUser, gotDelta, gotReason = userID, delta, reason
		return nil
	})

	payload := []byte(`{"user_id":"u1","delta":-5,"reason":"dispute_lost"}`)
	if err := handler(context.Background(), outbox.Event{Payload: payload}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if gotUser != "u1" || gotDelta != -5 || gotReason != "dispute_lost" {
		t.Fatalf("unexpected unmarshal: user=%q delta=%d reason=%q", gotUser, gotDelta, gotReason)
	}
}

func TestNotificationsHandlerSkipsEmptyRecipient(t *testing.T) {
	push := sandbox.NewPushGateway()
	handler := NotificationsHandler(push)

	if err := handler(context.Background(), outbox.Event{ID: "e1", Payload: []byte(`{"recipient_id":"","task_id":"t1"}`)}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(push.Log) != 0 {
		t.Fatalf("expected no push sent for an empty recipient, got %d", len(push.Log))
	}
}

func TestNotificationsHandlerDispatchesToPushGateway(t *testing.T) {
	push := sandbox.NewPushGateway()
	handler := NotificationsHandler(push)

	if err := handler(context.Background(), outbox.Event{ID: "e1", EventType: "task.accepted", Payload: []byte(`{"recipient_id":"u1","task_id":"t1"}`)}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(push.Log) != 1 || push.Log[0].RecipientID != "u1" {
		t.Fatalf("expected one delivery to u1, got %+v", push.Log)
	}
}

func TestRealtimeFanoutHandlerPublishesToBothParties(t *testing.T) {
	store := memory.New()
	if _, err := store.CreateTask(context.Background(), task.Task{ID: "t1", PosterID: "poster", HustlerID: "hustler", State: task.Accepted}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	registry := realtime.NewRegistry()
	posterSession := registry.Register("poster")
	hustlerSession := registry.Register("hustler")

	handler := RealtimeFanoutHandler(store, registry)
	payload := []byte(`{"task_id":"t1","from_state":"ACCEPTED","to_state":"PROOF_SUBMITTED"}`)
	if err := handler(context.Background(), outbox.Event{EventType: "task.progress_updated", Payload: payload}); err != nil {
		t.Fatalf("handler: %v", err)
	}

	select {
	case <-posterSession.Recv():
	case <-time.After(time.Second):
		t.Fatal("expected poster to receive a realtime event")
	}
	select {
	case <-hustlerSession.Recv():
	case <-time.After(time.Second):
		t.Fatal("expected hustler to receive a realtime event")
	}
}

func TestProofExpiryHandlerExpiresOnlyDueProofs(t *testing.T) {
	store := memory.New()
	now := time.Now().UTC()
	if _, err := store.CreateProof(context.Background(), proof.Proof{ID: "p1", TaskID: "t1", State: proof.Submitted, DeadlineAt: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("CreateProof: %v", err)
	}
	if _, err := store.CreateProof(context.Background(), proof.Proof{ID: "p2", TaskID: "t2", State: proof.Submitted, DeadlineAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("CreateProof: %v", err)
	}

	var expired []string
	handler := ProofExpiryHandler(store, func(ctx context.Context, taskID string) error {
		expired = append(expired, taskID)
		return nil
	}, 10, logger.NewDefault("proof_expiry_test"))

	if err := handler(context.Background()); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(expired) != 1 || expired[0] != "t1" {
		t.Fatalf("expected only t1 to be expired, got %v", expired)
	}
}

func TestProofExpiryHandlerContinuesPastIndividualFailure(t *testing.T) {
	store := memory.New()
	now := time.Now().UTC()
	if _, err := store.CreateProof(context.Background(), proof.Proof{ID: "p1", TaskID: "t1", State: proof.Submitted, DeadlineAt: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("CreateProof: %v", err)
	}
	if _, err := store.CreateProof(context.Background(), proof.Proof{ID: "p2", TaskID: "t2", State: proof.Submitted, DeadlineAt: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("CreateProof: %v", err)
	}

	var expired []string
	handler := ProofExpiryHandler(store, func(ctx context.Context, taskID string) error {
		if taskID == "t1" {
			return errors.New("boom")
		}
		expired = append(expired, taskID)
		return nil
	}, 10, logger.NewDefault("proof_expiry_test"))

	if err := handler(context.Background()); err != nil {
		t.Fatalf("handler should not fail the whole sweep on one task's error: %v", err)
	}
	if len(expired) != 1 || expired[0] != "t2" {
		t.Fatalf("expected the sweep to continue past t1's failure and still expire t2, got %v", expired)
	}
}
