package task

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	domaintask "github.com/hustlexp/core/internal/domain/task"
	"github.com/hustlexp/core/internal/platform/lock"
	"github.com/hustlexp/core/internal/platform/txrunner"
	"github.com/hustlexp/core/internal/storage/memory"
	"github.com/hustlexp/core/pkg/logger"
)

func newTestService(t *testing.T, txCount int) (*Service, *memory.Store) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < txCount; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	store := memory.New()
	runner := txrunner.New(db, txrunner.Config{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	locks := lock.New(nil)
	svc := New(store, store, store, locks, runner, logger.NewDefault("task_test"))
	return svc, store
}

func TestClaimTransitionsOpenToAccepted(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 1)
	tk, _ := store.CreateTask(ctx, domaintask.Task{ID: "t1", PosterID: "poster", PriceCents: 1000, State: domaintask.Open})

	claimed, err := svc.Claim(ctx, tk.ID, "hustler")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.State != domaintask.Accepted {
		t.Fatalf("expected ACCEPTED, got %s", claimed.State)
	}
	if claimed.HustlerID != "hustler" {
		t.Fatalf("expected hustler recorded, got %q", claimed.HustlerID)
	}
}

func TestClaimRejectsPosterClaimingOwnTask(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 1)
	tk, _ := store.CreateTask(ctx, domaintask.Task{ID: "t1", PosterID: "poster", PriceCents: 1000, State: domaintask.Open})

	if _, err := svc.Claim(ctx, tk.ID, "poster"); err == nil {
		t.Fatal("expected error when poster claims their own task")
	}
}

func TestClaimRejectsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 1)
	tk, _ := store.CreateTask(ctx, domaintask.Task{ID: "t1", PosterID: "poster", PriceCents: 1000, State: domaintask.Completed})

	if _, err := svc.Claim(ctx, tk.ID, "hustler"); err == nil {
		t.Fatal("expected error claiming a COMPLETED task")
	}
}

func TestAcceptFromProofSubmittedRequiresPosterOrAdmin(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 1)
	tk, _ := store.CreateTask(ctx, domaintask.Task{ID: "t1", PosterID: "poster", HustlerID: "hustler", PriceCents: 1000, State: domaintask.ProofSubmitted})

	if _, err := svc.Accept(ctx, tk.ID, "hustler", false); err == nil {
		t.Fatal("expected error: hustler may not accept their own proof")
	}
}

func TestAcceptTransitionsToCompletedAndEmitsPayoutDispatch(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 1)
	tk, _ := store.CreateTask(ctx, domaintask.Task{ID: "t1", PosterID: "poster", HustlerID: "hustler", PriceCents: 1000, State: domaintask.ProofSubmitted})

	completed, err := svc.Accept(ctx, tk.ID, "poster", false)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if completed.State != domaintask.Completed {
		t.Fatalf("expected COMPLETED, got %s", completed.State)
	}

	log, err := store.ListStateLog(ctx, tk.ID)
	if err != nil {
		t.Fatalf("ListStateLog: %v", err)
	}
	if len(log) != 1 || log[0].ToState != domaintask.Completed {
		t.Fatalf("expected one state-log entry to COMPLETED, got %+v", log)
	}
}

func TestExpireTransitionsOpenToExpired(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 1)
	tk, _ := store.CreateTask(ctx, domaintask.Task{ID: "t1", PosterID: "poster", PriceCents: 1000, State: domaintask.Open})

	expired, err := svc.Expire(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if expired.State != domaintask.Expired {
		t.Fatalf("expected EXPIRED, got %s", expired.State)
	}
}

func TestDisputeRejectsNonParty(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 1)
	tk, _ := store.CreateTask(ctx, domaintask.Task{ID: "t1", PosterID: "poster", HustlerID: "hustler", PriceCents: 1000, State: domaintask.Accepted})

	if _, err := svc.Dispute(ctx, tk.ID, "stranger"); err == nil {
		t.Fatal("expected error: non-party may not open a dispute")
	}
}
