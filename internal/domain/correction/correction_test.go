package correction

import "testing"

func TestIsForbiddenTargetCatchesSubstring(t *testing.T) {
	cases := []string{
		"ledger",
		"xp_ledger",
		"trust_ledger",
		"Payout",
		"DISPUTE_RESOLUTION",
		"escrow_lock",
		"global_killswitch",
		"stripe_webhook",
		"block_task_create",
		"block_accept_flow",
		"money_state_lock",
	}
	for _, target := range cases {
		if !IsForbiddenTarget(target) {
			t.Fatalf("expected %q to be forbidden", target)
		}
	}
}

func TestIsForbiddenTargetAllowsSafeTargets(t *testing.T) {
	cases := []string{"task_category_weight", "notification_template", "search_ranking"}
	for _, target := range cases {
		if IsForbiddenTarget(target) {
			t.Fatalf("expected %q to be allowed", target)
		}
	}
}

func TestDailyBudgetCoversAllScopes(t *testing.T) {
	for _, s := range []Scope{ScopeGlobal, ScopeCity, ScopeCategory, ScopeZone} {
		if _, ok := DailyBudget[s]; !ok {
			t.Fatalf("missing daily budget for scope %s", s)
		}
	}
}
