package migrations

import (
	"sort"
	"strings"
	"testing"
)

// golang-migrate requires a real Postgres connection (advisory locks, schema
// introspection) that go-sqlmock cannot fake faithfully, so this package
// tests the embedded file set directly: names are well-formed and strictly
// ordered, matching what iofs.New expects to find.
func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	entries, err := files.ReadDir(".")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one embedded migration")
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
		if !strings.HasSuffix(e.Name(), ".up.sql") && !strings.HasSuffix(e.Name(), ".down.sql") {
			t.Errorf("migration %q missing .up.sql/.down.sql suffix", e.Name())
		}
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("migration files are not in lexical order: %v", names)
	}
}

func TestEveryUpMigrationHasMatchingDown(t *testing.T) {
	entries, err := files.ReadDir(".")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	for k := range ups {
		if !downs[k] {
			t.Errorf("migration %q has no matching .down.sql", k)
		}
	}
}
