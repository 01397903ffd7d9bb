package money

import "testing"

func TestCanTransitionHappyPath(t *testing.T) {
	to, ok := CanTransition(StateOpen, "hold")
	if !ok || to != StateHeld {
		t.Fatalf("expected Open+hold -> Held, got %v %v", to, ok)
	}

	to, ok = CanTransition(StateHeld, "release")
	if !ok || to != StateReleased {
		t.Fatalf("expected Held+release -> Released, got %v %v", to, ok)
	}
}

func TestCanTransitionRejectsFromTerminal(t *testing.T) {
	for _, s := range []State{StateReleased, StateRefunded, StateRefundPartial} {
		if _, ok := CanTransition(s, "hold"); ok {
			t.Fatalf("expected no transitions out of terminal state %v", s)
		}
	}
}

func TestDisputeLockResolvesEitherWay(t *testing.T) {
	if to, ok := CanTransition(StateLockedDispute, "resolve_release"); !ok || to != StateReleased {
		t.Fatalf("expected LOCKED_DISPUTE+resolve_release -> RELEASED, got %v %v", to, ok)
	}
	if to, ok := CanTransition(StateLockedDispute, "resolve_refund"); !ok || to != StateRefunded {
		t.Fatalf("expected LOCKED_DISPUTE+resolve_refund -> REFUNDED, got %v %v", to, ok)
	}
}
