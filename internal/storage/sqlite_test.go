package storage

import (
	"path/filepath"
	"testing"
)

func TestOpenSQLiteAppliesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scopeguard.db")
	db, err := OpenSQLite(path, `CREATE TABLE IF NOT EXISTS t (id TEXT PRIMARY KEY)`)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`INSERT INTO t (id) VALUES ('a')`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("expected wal journal mode, got %q", mode)
	}
}

func TestOpenSQLiteIdempotentSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	schema := `CREATE TABLE IF NOT EXISTS t (id TEXT PRIMARY KEY)`
	for i := 0; i < 2; i++ {
		db, err := OpenSQLite(path, schema)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		db.Close()
	}
}

func TestOpenSQLiteBadSchema(t *testing.T) {
	if _, err := OpenSQLite(":memory:", "NOT SQL"); err == nil {
		t.Fatal("expected schema error")
	}
}
