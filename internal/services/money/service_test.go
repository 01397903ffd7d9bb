package money

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	domainmoney "github.com/hustlexp/core/internal/domain/money"
	"github.com/hustlexp/core/internal/domain/outbox"
	domaintask "github.com/hustlexp/core/internal/domain/task"
	"github.com/hustlexp/core/internal/platform/lock"
	"github.com/hustlexp/core/internal/platform/txrunner"
	"github.com/hustlexp/core/internal/provider/sandbox"
	"github.com/hustlexp/core/internal/storage/memory"
	"github.com/hustlexp/core/pkg/logger"
)

func newTestService(t *testing.T, txCount int) (*Service, *memory.Store, *sandbox.PaymentProvider) {
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
	pay := sandbox.NewPaymentProvider()
	svc := New(store, store, store, store, locks, runner, pay, logger.NewDefault("money_test"))
	return svc, store, pay
}

func TestFundTransitionsOpenToHeld(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, 1)
	if _, err := store.CreateLock(ctx, domainmoney.Lock{TaskID: "t1", State: domainmoney.StateOpen}); err != nil {
		t.Fatalf("CreateLock: %v", err)
	}

	l, err := svc.Fund(ctx, "t1", 5000)
	if err != nil {
		t.Fatalf("Fund: %v", err)
	}
	if l.State != domainmoney.StateHeld {
		t.Fatalf("expected HELD, got %s", l.State)
	}
	if l.AmountCents != 5000 {
		t.Fatalf("expected 5000 cents held, got %d", l.AmountCents)
	}
}

func TestFundRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, 0)
	if _, err := store.CreateLock(ctx, domainmoney.Lock{TaskID: "t1", State: domainmoney.StateOpen}); err != nil {
		t.Fatalf("CreateLock: %v", err)
	}

	if _, err := svc.Fund(ctx, "t1", 0); err == nil {
		t.Fatal("expected error funding a zero amount")
	}
}

func TestFundIsIdempotentOnRepeatedCall(t *testing.T) {
	ctx := context.Background()
	svc, store, pay := newTestService(t, 1)
	if _, err := store.CreateLock(ctx, domainmoney.Lock{TaskID: "t1", State: domainmoney.StateOpen}); err != nil {
		t.Fatalf("CreateLock: %v", err)
	}

	first, err := svc.Fund(ctx, "t1", 5000)
	if err != nil {
		t.Fatalf("first Fund: %v", err)
	}
	second, err := svc.Fund(ctx, "t1", 5000)
	if err != nil {
		t.Fatalf("second Fund: %v", err)
	}
	if first.ChargeID != second.ChargeID {
		t.Fatalf("expected idempotent fund to reuse the same charge, got %q vs %q", first.ChargeID, second.ChargeID)
	}
	if _, ok, err := pay.LookupByIdempotencyKey(ctx, "fund:t1:1"); err != nil || !ok {
		t.Fatalf("expected provider to have recorded a single fund call: ok=%v err=%v", ok, err)
	}
}

func TestReleaseRequiresCompletedTask(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, 0)
	if _, err := store.CreateTask(ctx, domaintask.Task{ID: "t1", PosterID: "poster", HustlerID: "hustler", PriceCents: 5000, State: domaintask.Accepted}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := store.CreateLock(ctx, domainmoney.Lock{TaskID: "t1", State: domainmoney.StateHeld, AmountCents: 5000, ChargeID: "ch_1"}); err != nil {
		t.Fatalf("CreateLock: %v", err)
	}

	if _, err := svc.Release(ctx, "t1"); err == nil {
		t.Fatal("expected error releasing escrow for a non-COMPLETED task")
	}
}

func TestReleaseTransitionsHeldToReleasedAndEmitsEscrowReleasedEvent(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, 1)
	if _, err := store.CreateTask(ctx, domaintask.Task{ID: "t1", PosterID: "poster", HustlerID: "hustler", PriceCents: 5000, State: domaintask.Completed}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := store.CreateLock(ctx, domainmoney.Lock{TaskID: "t1", State: domainmoney.StateHeld, AmountCents: 5000, ChargeID: "ch_1"}); err != nil {
		t.Fatalf("CreateLock: %v", err)
	}

	l, err := svc.Release(ctx, "t1")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if l.State != domainmoney.StateReleased {
		t.Fatalf("expected RELEASED, got %s", l.State)
	}

	events, err := store.Claim(ctx, outbox.QueueXPAward, 10)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one escrow-released outbox event, got %d", len(events))
	}
}

func TestRefundRejectsAmountExceedingHeld(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, 0)
	if _, err := store.CreateLock(ctx, domainmoney.Lock{TaskID: "t1", State: domainmoney.StateHeld, AmountCents: 5000, ChargeID: "ch_1"}); err != nil {
		t.Fatalf("CreateLock: %v", err)
	}

	if _, err := svc.Refund(ctx, "t1", 6000); err == nil {
		t.Fatal("expected error refunding more than the held amount")
	}
}

func TestDisputeLockTransitionsHeldToLockedDispute(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, 1)
	if _, err := store.CreateLock(ctx, domainmoney.Lock{TaskID: "t1", State: domainmoney.StateHeld, AmountCents: 5000, ChargeID: "ch_1"}); err != nil {
		t.Fatalf("CreateLock: %v", err)
	}

	l, err := svc.DisputeLock(ctx, "t1")
	if err != nil {
		t.Fatalf("DisputeLock: %v", err)
	}
	if l.State != domainmoney.StateLockedDispute {
		t.Fatalf("expected LOCKED_DISPUTE, got %s", l.State)
	}
}

func TestForceReleaseRequiresLockedDispute(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, 0)
	if _, err := store.CreateLock(ctx, domainmoney.Lock{TaskID: "t1", State: domainmoney.StateHeld, AmountCents: 5000, ChargeID: "ch_1"}); err != nil {
		t.Fatalf("CreateLock: %v", err)
	}

	if _, err := svc.ForceRelease(ctx, "t1", "admin1", "testing"); err == nil {
		t.Fatal("expected error force-releasing a HELD (not LOCKED_DISPUTE) escrow")
	}
}
