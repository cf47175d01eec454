package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"

	zpark "github.com/knightjoel/zpark"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestRegister_DefaultSourceLabel(t *testing.T) {
	reg, err := Register(context.Background(), func(_ context.Context, _ string, label string, _ fs.FS) error {
		if label != "zpark" {
			t.Fatalf("expected source label zpark, got %q", label)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.SourceLabel != "zpark" {
		t.Fatalf("expected registration label zpark, got %q", reg.SourceLabel)
	}
}

func TestWebhookDeliveriesMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := zpark.GetCoreMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_zpark_webhook_deliveries.up.sql",
		"data/sql/migrations/00001_zpark_webhook_deliveries.down.sql",
		"data/sql/migrations/sqlite/00001_zpark_webhook_deliveries.up.sql",
		"data/sql/migrations/sqlite/00001_zpark_webhook_deliveries.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteWebhookDeliveriesMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-webhook-deliveries?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	root := zpark.GetCoreMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_zpark_webhook_deliveries.up.sql"); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	if _, err := db.ExecContext(ctx, `
		INSERT INTO zpark_webhook_deliveries (id, delivery_id, status)
		VALUES ('11111111-1111-1111-1111-111111111111', 'dlv-1', 'pending')
	`); err != nil {
		t.Fatalf("insert delivery: %v", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO zpark_webhook_deliveries (id, delivery_id, status)
		VALUES ('22222222-2222-2222-2222-222222222222', 'dlv-1', 'pending')
	`)
	if err == nil {
		t.Fatalf("expected unique violation for duplicate delivery id")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "unique") {
		t.Fatalf("expected unique constraint error, got %v", err)
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_zpark_webhook_deliveries.down.sql"); err != nil {
		t.Fatalf("rollback migration: %v", err)
	}
	if _, err := db.ExecContext(ctx, `SELECT COUNT(*) FROM zpark_webhook_deliveries`); err == nil {
		t.Fatalf("expected table to be dropped after rollback")
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, name string) error {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return err
	}
	for _, statement := range strings.Split(string(content), ";") {
		trimmed := strings.TrimSpace(statement)
		if trimmed == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, trimmed); err != nil {
			return err
		}
	}
	return nil
}
