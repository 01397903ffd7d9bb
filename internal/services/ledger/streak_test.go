package ledger

import (
	"testing"
	"time"
)

func TestNextStreakFirstActivity(t *testing.T) {
	got := NextStreak(time.Now(), time.Time{}, 0)
	if got != 1 {
		t.Fatalf("expected streak 1 for first activity, got %d", got)
	}
}

func TestNextStreakSameDayUnchanged(t *testing.T) {
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	later := base.Add(3 * time.Hour)
	if got := NextStreak(later, base, 5); got != 5 {
		t.Fatalf("expected streak unchanged at 5, got %d", got)
	}
}

func TestNextStreakNextDayExtends(t *testing.T) {
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	nextDay := base.Add(24 * time.Hour)
	if got := NextStreak(nextDay, base, 5); got != 6 {
		t.Fatalf("expected streak extended to 6, got %d", got)
	}
}

func TestNextStreakGapResets(t *testing.T) {
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	gap := base.Add(72 * time.Hour)
	if got := NextStreak(gap, base, 5); got != 1 {
		t.Fatalf("expected streak reset to 1, got %d", got)
	}
}

func TestNextStreakGraceWindowCarriesPastMidnight(t *testing.T) {
	base := time.Date(2026, 7, 31, 23, 30, 0, 0, time.UTC)
	justAfterMidnight := time.Date(2026, 8, 1, 1, 0, 0, 0, time.UTC)
	if got := NextStreak(justAfterMidnight, base, 5); got != 5 {
		t.Fatalf("expected grace window to keep streak at 5, got %d", got)
	}
}
