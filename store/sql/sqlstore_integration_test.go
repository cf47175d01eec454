package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	zparkmigrations "github.com/knightjoel/zpark/migrations"
	sqlstore "github.com/knightjoel/zpark/store/sql"
	"github.com/knightjoel/zpark/webhooks"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "zpark-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"zpark_webhook_deliveries",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "zpark_webhook_deliveries" {
		t.Fatalf("expected zpark_webhook_deliveries table, got %q", tableName)
	}
}

func TestWebhookDeliveryStore_ClaimDetectsDuplicates(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewWebhookDeliveryStoreFromPersistence(client)
	if err != nil {
		t.Fatalf("new webhook delivery store: %v", err)
	}

	first, duplicate, err := store.Claim(ctx, "dlv-100", []byte(`{"id":"dlv-100"}`))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if duplicate {
		t.Fatalf("expected first claim to be fresh")
	}
	if first.Status != webhooks.DeliveryStatusPending {
		t.Fatalf("expected pending status, got %q", first.Status)
	}
	if first.ID == "" {
		t.Fatalf("expected generated record id")
	}

	second, duplicate, err := store.Claim(ctx, "dlv-100", []byte(`{"id":"dlv-100"}`))
	if err != nil {
		t.Fatalf("claim duplicate: %v", err)
	}
	if !duplicate {
		t.Fatalf("expected duplicate claim to be flagged")
	}
	if second.ID != first.ID {
		t.Fatalf("expected duplicate to surface original record, got %q vs %q", second.ID, first.ID)
	}
}

func TestWebhookDeliveryStore_MarkProcessed(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewWebhookDeliveryStoreFromPersistence(client)
	if err != nil {
		t.Fatalf("new webhook delivery store: %v", err)
	}

	if _, _, err := store.Claim(ctx, "dlv-200", nil); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkProcessed(ctx, "dlv-200"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	record, err := store.Get(ctx, "dlv-200")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != webhooks.DeliveryStatusProcessed {
		t.Fatalf("expected processed status, got %q", record.Status)
	}
}

func TestWebhookDeliveryStore_GetMissingDelivery(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewWebhookDeliveryStoreFromPersistence(client)
	if err != nil {
		t.Fatalf("new webhook delivery store: %v", err)
	}

	if _, err := store.Get(ctx, "dlv-nope"); err == nil {
		t.Fatalf("expected error for missing delivery")
	}
	if err := store.MarkProcessed(ctx, "dlv-nope"); err == nil {
		t.Fatalf("expected error marking missing delivery")
	}
}

func TestWebhookDeliveryStore_ReleaseDropsPendingClaim(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewWebhookDeliveryStoreFromPersistence(client)
	if err != nil {
		t.Fatalf("new webhook delivery store: %v", err)
	}

	if _, _, err := store.Claim(ctx, "dlv-300", nil); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Release(ctx, "dlv-300"); err != nil {
		t.Fatalf("release: %v", err)
	}

	_, duplicate, err := store.Claim(ctx, "dlv-300", nil)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if duplicate {
		t.Fatalf("expected released delivery to be claimable again")
	}

	if err := store.MarkProcessed(ctx, "dlv-300"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if err := store.Release(ctx, "dlv-300"); err != nil {
		t.Fatalf("release processed: %v", err)
	}
	record, err := store.Get(ctx, "dlv-300")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != webhooks.DeliveryStatusProcessed {
		t.Fatalf("release must keep processed records, got %q", record.Status)
	}

	if err := store.Release(ctx, "dlv-absent"); err != nil {
		t.Fatalf("release of an absent delivery must be a no-op, got %v", err)
	}
}

func TestWebhookDeliveryStore_ClaimRequiresDeliveryID(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewWebhookDeliveryStoreFromPersistence(client)
	if err != nil {
		t.Fatalf("new webhook delivery store: %v", err)
	}

	if _, _, err := store.Claim(ctx, "   ", nil); err == nil {
		t.Fatalf("expected error for blank delivery id")
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:zpark-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = zparkmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != zparkmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, zparkmigrations.WithValidationTargets(zparkmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
