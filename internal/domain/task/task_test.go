package task

import "testing"

func TestCanTransitionHappyPath(t *testing.T) {
	to, ok := CanTransition(Open, "claim")
	if !ok || to != Accepted {
		t.Fatalf("expected Open+claim -> Accepted, got %v %v", to, ok)
	}

	to, ok = CanTransition(Accepted, "proof_submit")
	if !ok || to != ProofSubmitted {
		t.Fatalf("expected Accepted+proof_submit -> ProofSubmitted, got %v %v", to, ok)
	}

	to, ok = CanTransition(ProofSubmitted, "accept")
	if !ok || to != Completed {
		t.Fatalf("expected ProofSubmitted+accept -> Completed, got %v %v", to, ok)
	}
}

func TestCanTransitionRejectsUnknownEvent(t *testing.T) {
	if _, ok := CanTransition(Open, "complete"); ok {
		t.Fatal("expected Open+complete to be rejected")
	}
}

func TestCanTransitionRejectsFromTerminal(t *testing.T) {
	for _, s := range []State{Completed, Cancelled, Expired} {
		if _, ok := CanTransition(s, "claim"); ok {
			t.Fatalf("expected no transitions out of terminal state %v", s)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	terminal := map[State]bool{Completed: true, Cancelled: true, Expired: true}
	for _, s := range []State{Open, Accepted, ProofSubmitted, Completed, Disputed, Cancelled, Expired} {
		if s.Terminal() != terminal[s] {
			t.Fatalf("State(%s).Terminal() = %v, want %v", s, s.Terminal(), terminal[s])
		}
	}
}
