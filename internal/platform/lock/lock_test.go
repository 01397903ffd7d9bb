package lock

import "testing"

func TestKeyBuilders(t *testing.T) {
	if got := TaskKey("01H"); got != "task:01H" {
		t.Errorf("TaskKey = %q", got)
	}
	if got := MoneyKey("01H"); got != "money:01H" {
		t.Errorf("MoneyKey = %q", got)
	}
	if got := redisKey("task:01H"); got != "hustlexp:lock:task:01H" {
		t.Errorf("redisKey = %q", got)
	}
}

func TestRandomTokenIsUniqueAndHex(t *testing.T) {
	a, err := randomToken()
	if err != nil {
		t.Fatalf("randomToken: %v", err)
	}
	b, err := randomToken()
	if err != nil {
		t.Fatalf("randomToken: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct tokens")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(a))
	}
}
