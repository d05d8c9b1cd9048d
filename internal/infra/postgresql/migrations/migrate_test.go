package migrations

import (
	"strings"
	"testing"
)

func TestMigrationListOrderedAndUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	prev := ""
	for _, m := range migrationList() {
		if m.Migrate == nil || m.Rollback == nil {
			t.Fatalf("migration %s must define Migrate and Rollback", m.ID)
		}
		if seen[m.ID] {
			t.Fatalf("duplicate migration id %s", m.ID)
		}
		seen[m.ID] = true
		if strings.Compare(prev, m.ID) >= 0 {
			t.Fatalf("migration %s is out of order after %s", m.ID, prev)
		}
		prev = m.ID
	}
	if len(seen) != 2 {
		t.Fatalf("migrations = %d, want 2", len(seen))
	}
}
