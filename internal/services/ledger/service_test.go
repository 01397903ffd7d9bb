package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hustlexp/core/internal/domain/task"
	"github.com/hustlexp/core/internal/domain/user"
	"github.com/hustlexp/core/internal/platform/txrunner"
	"github.com/hustlexp/core/internal/storage/memory"
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
	return New(store, store, store, runner), store
}

func TestAwardXPAppendsEntryAndUpdatesUser(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 1)

	u, err := store.CreateUser(ctx, user.User{ID: "u1", Role: user.RoleHustler})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	tk, err := store.CreateTask(ctx, task.Task{ID: "t1", PosterID: "p1", HustlerID: u.ID, PriceCents: 5000, State: task.Completed})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	entry, err := svc.AwardXP(ctx, tk.ID)
	if err != nil {
		t.Fatalf("AwardXP: %v", err)
	}
	if entry.FinalXP <= 0 {
		t.Fatalf("expected positive FinalXP, got %d", entry.FinalXP)
	}

	updated, err := store.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if updated.XPTotal != entry.FinalXP {
		t.Fatalf("expected XPTotal %d, got %d", entry.FinalXP, updated.XPTotal)
	}
	if updated.CurrentStreak != 1 {
		t.Fatalf("expected first award to start a streak of 1, got %d", updated.CurrentStreak)
	}
}

func TestAwardXPIsIdempotentOnMoneyStateLockTaskID(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 1)

	u, _ := store.CreateUser(ctx, user.User{ID: "u1", Role: user.RoleHustler})
	tk, _ := store.CreateTask(ctx, task.Task{ID: "t1", PosterID: "p1", HustlerID: u.ID, PriceCents: 5000, State: task.Completed})

	first, err := svc.AwardXP(ctx, tk.ID)
	if err != nil {
		t.Fatalf("first AwardXP: %v", err)
	}
	second, err := svc.AwardXP(ctx, tk.ID)
	if err != nil {
		t.Fatalf("second AwardXP: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected replay to return the same entry, got %s and %s", first.ID, second.ID)
	}
}

func TestAwardXPRejectsTaskWithNoHustler(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 1)
	tk, _ := store.CreateTask(ctx, task.Task{ID: "t1", PosterID: "p1", PriceCents: 5000, State: task.Completed})

	if _, err := svc.AwardXP(ctx, tk.ID); err == nil {
		t.Fatal("expected error for task with no hustler")
	}
}

func TestAdjustTrustClampsTierToRange(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, 2)
	u, _ := store.CreateUser(ctx, user.User{ID: "u1", Role: user.RoleHustler})

	if _, err := svc.AdjustTrust(ctx, u.ID, 1000, "manual_review"); err != nil {
		t.Fatalf("AdjustTrust: %v", err)
	}
	updated, _ := store.GetUser(ctx, u.ID)
	if updated.TrustTier != 5 {
		t.Fatalf("expected trust tier clamped to 5, got %d", updated.TrustTier)
	}

	if _, err := svc.AdjustTrust(ctx, u.ID, -2000, "fraud_signal"); err != nil {
		t.Fatalf("AdjustTrust: %v", err)
	}
	updated, _ = store.GetUser(ctx, u.ID)
	if updated.TrustTier != 0 {
		t.Fatalf("expected trust tier clamped to 0, got %d", updated.TrustTier)
	}
}
