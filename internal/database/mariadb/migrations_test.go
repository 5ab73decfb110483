package mariadb

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (id INT);\n\n  CREATE TABLE b (id INT) ;\n")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[1] != "CREATE TABLE b (id INT)" {
		t.Errorf("unexpected statement %q", stmts[1])
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	content, err := migrationsFS.ReadFile("migrations/001_init.sql")
	if err != nil {
		t.Fatalf("read embedded migration: %v", err)
	}
	stmts := splitStatements(string(content))
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(stmts))
	}
	for _, table := range []string{"vface_api_merchant", "vface_user", "vface_log"} {
		if !strings.Contains(string(content), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("migration does not create %s", table)
		}
	}
}
