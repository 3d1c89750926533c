package persistence

import (
	"strings"
	"testing"
)

func TestMigrationNamesOrdered(t *testing.T) {
	names, err := MigrationNames()
	if err != nil {
		t.Fatalf("MigrationNames: %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected embedded migrations, got %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("migrations out of order: %v", names)
		}
	}
}

func TestMigrationsDeclareInvariantIndexes(t *testing.T) {
	raw, err := migrationFiles.ReadFile("migrations/0001_init.sql")
	if err != nil {
		t.Fatal(err)
	}
	schema := string(raw)
	for _, index := range []string{
		"tickets_exclusive_hold",
		"tickets_one_open_per_owner",
		"tickets_owner_idempotency_key",
		"sessions_one_open_per_agent",
		"tickets_assignment_check",
	} {
		if !strings.Contains(schema, index) {
			t.Errorf("schema is missing %s", index)
		}
	}
}
