package correction

import (
	"context"
	"testing"
	"time"

	domaincorrection "github.com/hustlexp/core/internal/domain/correction"
	"github.com/hustlexp/core/internal/storage/memory"
	"github.com/hustlexp/core/pkg/logger"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, store, store, logger.NewDefault("test")), store
}

func validProposal() Proposal {
	return Proposal{
		Type:         domaincorrection.TypeTaskRoutingBoost,
		TargetEntity: "task_routing_weight",
		TargetID:     "city:austin",
		Scope:        domaincorrection.ScopeCity,
		Magnitude:    0.5,
		ReasonCode:   "low_fill_rate",
		ProposedBy:   "advisory-engine",
	}
}

func TestApplyCreatesActiveCorrection(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	c, err := svc.Apply(ctx, validProposal())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if c.Status != domaincorrection.StatusApplied {
		t.Fatalf("expected status applied, got %s", c.Status)
	}
	if c.ExpiresAt == nil {
		t.Fatal("expected ExpiresAt to be set")
	}
}

func TestApplyRejectsForbiddenTarget(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	p := validProposal()
	p.TargetEntity = "ledger_balance"
	if _, err := svc.Apply(ctx, p); err == nil {
		t.Fatal("expected error for forbidden target")
	}

	active, err := svc.safeModeActive(ctx)
	if err != nil {
		t.Fatalf("safeModeActive: %v", err)
	}
	if !active {
		t.Fatal("expected safe mode to trip after forbidden-target attempt")
	}

	if _, err := svc.Apply(ctx, validProposal()); err == nil {
		t.Fatal("expected subsequent proposals to be refused while safe mode is active")
	}
}

func TestApplyRejectsMagnitudeOutOfBounds(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	p := validProposal()
	p.Magnitude = 5
	if _, err := svc.Apply(ctx, p); err == nil {
		t.Fatal("expected error for out-of-bounds magnitude")
	}
}

func TestApplyRejectsOverBudget(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	budget := domaincorrection.DailyBudget[domaincorrection.ScopeCity]
	for i := 0; i < budget; i++ {
		if _, err := svc.Apply(ctx, validProposal()); err != nil {
			t.Fatalf("Apply %d: %v", i, err)
		}
	}
	if _, err := svc.Apply(ctx, validProposal()); err == nil {
		t.Fatal("expected budget-exhausted error")
	}
}

func TestReverseMarksCorrectionReversed(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	c, err := svc.Apply(ctx, validProposal())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	reversed, err := svc.Reverse(ctx, c.ID, "admin-1", "no longer needed")
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if reversed.Status != domaincorrection.StatusReversed {
		t.Fatalf("expected status reversed, got %s", reversed.Status)
	}
	if reversed.ReversedAt == nil {
		t.Fatal("expected ReversedAt to be set")
	}

	if _, err := svc.Reverse(ctx, c.ID, "admin-1", "again"); err == nil {
		t.Fatal("expected error reversing an already-reversed correction")
	}
}

func TestMeasureOutcomeClassifiesCausal(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	c, err := svc.Apply(ctx, validProposal())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	treatedBaseline := MetricSample{"fill_rate": 0.50, "acceptance_speed_score": 0.40}
	treatedPost := MetricSample{"fill_rate": 0.65, "acceptance_speed_score": 0.58}
	controlBaseline := MetricSample{"fill_rate": 0.50, "acceptance_speed_score": 0.41}
	controlPost := MetricSample{"fill_rate": 0.49, "acceptance_speed_score": 0.40}

	outcome, err := svc.MeasureOutcome(ctx, c.ID, treatedBaseline, treatedPost, controlBaseline, controlPost)
	if err != nil {
		t.Fatalf("MeasureOutcome: %v", err)
	}
	if outcome.Verdict != domaincorrection.VerdictCausal {
		t.Fatalf("expected causal verdict, got %s", outcome.Verdict)
	}
}

func TestMeasureOutcomeClassifiesNonCausalWhenControlKeepsPace(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	c, err := svc.Apply(ctx, validProposal())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	treatedBaseline := MetricSample{"fill_rate": 0.50}
	treatedPost := MetricSample{"fill_rate": 0.65}
	controlBaseline := MetricSample{"fill_rate": 0.50}
	controlPost := MetricSample{"fill_rate": 0.66}

	outcome, err := svc.MeasureOutcome(ctx, c.ID, treatedBaseline, treatedPost, controlBaseline, controlPost)
	if err != nil {
		t.Fatalf("MeasureOutcome: %v", err)
	}
	if outcome.Verdict != domaincorrection.VerdictNonCausal {
		t.Fatalf("expected non-causal verdict, got %s", outcome.Verdict)
	}
}

func TestExpireDueMarksPastExpiryExpired(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	c, err := svc.Apply(ctx, validProposal())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	past := c
	zero := c.ExpiresAt.Add(-48 * time.Hour)
	past.ExpiresAt = &zero
	if _, err := store.UpdateCorrection(ctx, past); err != nil {
		t.Fatalf("UpdateCorrection: %v", err)
	}

	n, err := svc.ExpireDue(ctx)
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired correction, got %d", n)
	}
	updated, err := store.GetCorrection(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCorrection: %v", err)
	}
	if updated.Status != domaincorrection.StatusExpired {
		t.Fatalf("expected status expired, got %s", updated.Status)
	}
}
