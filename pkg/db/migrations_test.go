package db

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
)

const migrationsTestPrefix = "db:migrations_test"

var repositoryMigrations = filepath.Join("..", "..", "migrations")

var migrationName = regexp.MustCompile(`^(\d{3})_[a-z0-9_]+\.sql$`)

func TestRepositoryMigrations_NumberedInSequence(t *testing.T) {
	migrations, err := LoadMigrations(repositoryMigrations)
	if err != nil {
		t.Fatalf("%s - LoadMigrations failed: %v", migrationsTestPrefix, err)
	}
	if len(migrations) == 0 {
		t.Fatalf("%s - no migrations in %s", migrationsTestPrefix, repositoryMigrations)
	}

	for i, m := range migrations {
		match := migrationName.FindStringSubmatch(m.Name)
		if match == nil {
			t.Fatalf("%s - %s is not named NNN_description.sql", migrationsTestPrefix, m.Name)
		}
		if n, _ := strconv.Atoi(match[1]); n != i+1 {
			t.Errorf("%s - %s has number %d, want %d", migrationsTestPrefix, m.Name, n, i+1)
		}
		if strings.TrimSpace(m.SQL) == "" {
			t.Errorf("%s - %s is empty", migrationsTestPrefix, m.Name)
		}
	}
}

func TestRepositoryMigrations_CreateHistorySchema(t *testing.T) {
	migrations, err := LoadMigrations(repositoryMigrations)
	if err != nil {
		t.Fatalf("%s - LoadMigrations failed: %v", migrationsTestPrefix, err)
	}

	first := migrations[0]
	if first.Name != "001_invocation_outcomes.sql" {
		t.Fatalf("%s - first migration = %s", migrationsTestPrefix, first.Name)
	}
	// Every column the Postgres store writes must exist in the first migration.
	for _, column := range []string{
		"id", "capability", "arguments", "status", "content", "raw_result",
		"error_code", "error_detail", "requested_at", "started_at", "completed_at",
	} {
		if !regexp.MustCompile(`(?m)^\s+` + column + `\s`).MatchString(first.SQL) {
			t.Errorf("%s - invocation_outcomes lacks column %s", migrationsTestPrefix, column)
		}
	}

	for _, m := range migrations {
		if !strings.Contains(m.SQL, "IF NOT EXISTS") {
			t.Errorf("%s - %s is not safe to re-run by hand", migrationsTestPrefix, m.Name)
		}
		if strings.Contains(m.SQL, "bridge_schema_migrations") {
			t.Errorf("%s - %s touches the tracking table", migrationsTestPrefix, m.Name)
		}
	}
}

func TestTrackingTable(t *testing.T) {
	if !strings.Contains(createMigrationsTable, "bridge_schema_migrations") {
		t.Fatalf("%s - tracking table is not bridge_schema_migrations", migrationsTestPrefix)
	}
	if !strings.Contains(createMigrationsTable, "name       TEXT PRIMARY KEY") {
		t.Errorf("%s - applied migrations must be keyed by file name", migrationsTestPrefix)
	}
}

func TestPendingMigrations_KeepFileOrder(t *testing.T) {
	migrations, err := LoadMigrations(repositoryMigrations)
	if err != nil {
		t.Fatalf("%s - LoadMigrations failed: %v", migrationsTestPrefix, err)
	}

	// A database that only recorded the second file still runs the first one.
	applied := map[string]bool{migrations[len(migrations)-1].Name: true}
	pending := pendingMigrations(migrations, applied)
	if len(pending) != len(migrations)-1 {
		t.Fatalf("%s - %d pending, want %d", migrationsTestPrefix, len(pending), len(migrations)-1)
	}
	for i, m := range pending {
		if m.Name != migrations[i].Name {
			t.Errorf("%s - pending[%d] = %s, want %s", migrationsTestPrefix, i, m.Name, migrations[i].Name)
		}
	}
	if got := pendingMigrations(migrations, map[string]bool{}); len(got) != len(migrations) {
		t.Errorf("%s - fresh database: %d pending, want %d", migrationsTestPrefix, len(got), len(migrations))
	}
}

func TestBuildReport(t *testing.T) {
	migrations := []Migration{{Name: "001_a.sql"}, {Name: "002_b.sql"}, {Name: "003_c.sql"}}

	tests := []struct {
		name        string
		applied     map[string]bool
		wantApplied int
		wantPending []string
	}{
		{"fresh database", map[string]bool{}, 0, []string{"001_a.sql", "002_b.sql", "003_c.sql"}},
		{"partly applied", map[string]bool{"001_a.sql": true}, 1, []string{"002_b.sql", "003_c.sql"}},
		{"all applied", map[string]bool{"001_a.sql": true, "002_b.sql": true, "003_c.sql": true}, 3, nil},
		{"unknown applied rows ignored", map[string]bool{"000_legacy.sql": true}, 0, []string{"001_a.sql", "002_b.sql", "003_c.sql"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := buildReport(migrations, tt.applied)
			if len(r.Applied) != tt.wantApplied {
				t.Errorf("%s - applied = %v, want %d entries", migrationsTestPrefix, r.Applied, tt.wantApplied)
			}
			if len(r.Pending) != len(tt.wantPending) {
				t.Fatalf("%s - pending = %v, want %v", migrationsTestPrefix, r.Pending, tt.wantPending)
			}
			for i := range tt.wantPending {
				if r.Pending[i] != tt.wantPending[i] {
					t.Errorf("%s - pending[%d] = %s, want %s", migrationsTestPrefix, i, r.Pending[i], tt.wantPending[i])
				}
			}
		})
	}
}
