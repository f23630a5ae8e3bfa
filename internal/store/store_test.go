package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	var count int
	err = s2.db.QueryRow("SELECT COUNT(*) FROM compile_reports").Scan(&count)
	if err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"compile_reports", "assertion_outcomes", "diagnostics"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	path := "/nonexistent/dir/test.db"

	_, err := Open(path)
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestClose_MultipleCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}

	// Must not panic.
	_ = s.Close()
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)

	db := s.DB()
	if db == nil {
		t.Fatal("DB() returned nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

// Pragma tests

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

// Schema tests

func TestSchema_Tables(t *testing.T) {
	s := createTestStore(t)

	tests := map[string][]string{
		"compile_reports": {
			"id", "run_id", "function", "version", "seq", "tier", "status",
			"trigger_kind", "feedback", "source_hash", "nodes", "rewrites",
			"rounds", "error", "engine_version", "ir_version",
		},
		"assertion_outcomes": {
			"report_id", "idx", "file", "line", "col", "text", "state",
		},
		"diagnostics": {
			"report_id", "idx", "file", "line", "col", "text", "canonical", "message",
		},
	}
	for table, expected := range tests {
		t.Run(table, func(t *testing.T) {
			columns := getTableColumns(t, s.db, table)
			for _, col := range expected {
				if !contains(columns, col) {
					t.Errorf("%s table missing column %q", table, col)
				}
			}
		})
	}
}

func TestSchema_CompileReportsIndexes(t *testing.T) {
	s := createTestStore(t)

	indexes := getTableIndexes(t, s.db, "compile_reports")
	expected := []string{
		"idx_compile_reports_seq",
		"idx_compile_reports_function",
		"idx_compile_reports_run",
		"idx_compile_reports_status",
	}
	for _, idx := range expected {
		if !contains(indexes, idx) {
			t.Errorf("compile_reports missing index %q, got %v", idx, indexes)
		}
	}
}

// Constraint tests

func TestConstraint_StatusCheck(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO compile_reports
		(id, run_id, function, version, seq, tier, status, trigger_kind, feedback,
		 source_hash, engine_version, ir_version)
		VALUES ('r1', 'run', 'foo', 1, 1, 'optimized', 'exploded', 'explicit', '[]', 'h', '0.1.0', '1')
	`)
	if err == nil {
		t.Error("expected CHECK violation for unknown status")
	}
}

func TestConstraint_AssertionStateCheck(t *testing.T) {
	s := createTestStore(t)
	insertBareReport(t, s.db, "r1")

	_, err := s.db.Exec(`
		INSERT INTO assertion_outcomes (report_id, idx, text, state)
		VALUES ('r1', 0, 'x == x', 'maybe')
	`)
	if err == nil {
		t.Error("expected CHECK violation for unknown assertion state")
	}
}

func TestConstraint_ForeignKeyAssertionToReport(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO assertion_outcomes (report_id, idx, text, state)
		VALUES ('missing', 0, 'x == x', 'proven')
	`)
	if err == nil {
		t.Error("expected foreign key violation for unknown report")
	}
}

func TestConstraint_ForeignKeyDiagnosticToReport(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO diagnostics (report_id, idx, text, message)
		VALUES ('missing', 0, 'x == x', 'static assertion not proven')
	`)
	if err == nil {
		t.Error("expected foreign key violation for unknown report")
	}
}

func TestConstraint_ReportIDUnique(t *testing.T) {
	s := createTestStore(t)
	insertBareReport(t, s.db, "r1")

	_, err := s.db.Exec(`
		INSERT INTO compile_reports
		(id, run_id, function, version, seq, tier, status, trigger_kind, feedback,
		 source_hash, engine_version, ir_version)
		VALUES ('r1', 'run', 'foo', 1, 2, 'optimized', 'success', 'explicit', '[]', 'h', '0.1.0', '1')
	`)
	if err == nil {
		t.Error("expected primary key violation for duplicate report id")
	}
}

// Migration tests

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_IdempotentUpgrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}

		var version int
		if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
			t.Fatalf("failed to get user_version: %v", err)
		}
		if version != currentSchemaVersion {
			t.Errorf("iteration %d: user_version = %d, want %d", i, version, currentSchemaVersion)
		}

		s.Close()
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Pre-migration state: schema applied, user_version 0.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("failed to set user_version: %v", err)
	}
	indexes := getTableIndexes(t, db, "compile_reports")
	if contains(indexes, "idx_compile_reports_status") {
		t.Fatal("status index should only be created by the migration")
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d after migration", version, currentSchemaVersion)
	}

	indexes = getTableIndexes(t, s.db, "compile_reports")
	if !contains(indexes, "idx_compile_reports_status") {
		t.Errorf("expected idx_compile_reports_status after migration, got indexes: %v", indexes)
	}
}

// Helper functions

func insertBareReport(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO compile_reports
		(id, run_id, function, version, seq, tier, status, trigger_kind, feedback,
		 source_hash, engine_version, ir_version)
		VALUES (?, 'run', 'foo', 1, 1, 'optimized', 'success', 'explicit', '[]', 'h', '0.1.0', '1')
	`, id)
	if err != nil {
		t.Fatalf("insert report %s: %v", id, err)
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
