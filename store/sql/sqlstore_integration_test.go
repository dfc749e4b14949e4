package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-authretry/core"
	"github.com/goliatone/go-authretry/migrations"
	sqlstore "github.com/goliatone/go-authretry/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
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
	return "go-authretry-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"authretry_credentials",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "authretry_credentials" {
		t.Fatalf("expected authretry_credentials table, got %q", tableName)
	}
}

func TestCredentialStore_SetGetClearAndVersioning(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store, err := factory.CredentialStore("")
	if err != nil {
		t.Fatalf("credential store: %v", err)
	}
	if store.Key() != sqlstore.DefaultStoreKey {
		t.Fatalf("expected default store key, got %q", store.Key())
	}

	if _, ok, err := store.Get(ctx); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "tok-1"); err != nil {
		t.Fatalf("set first: %v", err)
	}
	if err := store.Set(ctx, "tok-2"); err != nil {
		t.Fatalf("set second: %v", err)
	}
	credential, ok, err := store.Get(ctx)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if credential.Token() != "tok-2" {
		t.Fatalf("expected latest token, got %q", credential.Token())
	}
	version, err := store.Version(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Get(ctx); ok {
		t.Fatalf("expected cleared store")
	}
	initial, err := store.LoadInitial(ctx)
	if err != nil {
		t.Fatalf("load initial: %v", err)
	}
	if !initial.IsZero() {
		t.Fatalf("expected zero initial credential after clear")
	}
}

func TestCredentialStore_KeysAreNamespaced(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromDB(client.DB())
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	access, _ := factory.CredentialStore("access_token")
	refresh, _ := factory.CredentialStore("refresh_token")
	again, _ := factory.CredentialStore(" refresh_token ")
	if again != refresh {
		t.Fatalf("expected factory to reuse store per key")
	}

	if err := access.Set(ctx, "access-1"); err != nil {
		t.Fatalf("set access: %v", err)
	}
	if err := refresh.Set(ctx, "refresh-1"); err != nil {
		t.Fatalf("set refresh: %v", err)
	}
	if err := access.Clear(ctx); err != nil {
		t.Fatalf("clear access: %v", err)
	}

	credential, ok, err := refresh.Get(ctx)
	if err != nil || !ok || credential.Token() != "refresh-1" {
		t.Fatalf("expected refresh token untouched, got %q ok=%v err=%v", credential.Token(), ok, err)
	}
	keys, err := refresh.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "refresh_token" {
		t.Fatalf("unexpected keys %#v", keys)
	}
}

func TestCredentialStore_ConcurrentSetsKeepOneRow(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store, _ := factory.CredentialStore("access_token")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.Set(ctx, core.Credential(fmt.Sprintf("tok-%d", i))); err != nil {
				t.Errorf("set %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	var rows int
	if err := client.DB().NewRaw("SELECT COUNT(*) FROM authretry_credentials").Scan(ctx, &rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one row per key, got %d", rows)
	}
	version, _ := store.Version(ctx)
	if version != 5 {
		t.Fatalf("expected version 5, got %d", version)
	}
}

func TestCredentialStore_MirrorsClientRefresh(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	mirror, _ := factory.CredentialStore("access_token")
	if err := mirror.Set(ctx, "persisted"); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}

	coordinator, err := core.NewRefreshCoordinator(core.RefreshCoordinatorConfig{
		Store: core.NewMemoryCredentialStore(""),
		Provider: core.ProviderFunc(func(context.Context) (core.Credential, error) {
			return "refreshed", nil
		}),
		Mirrors: []core.CredentialStore{mirror},
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	if _, err := coordinator.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	credential, ok, err := mirror.Get(ctx)
	if err != nil || !ok || credential.Token() != "refreshed" {
		t.Fatalf("expected mirror updated after refresh, got %q ok=%v err=%v", credential.Token(), ok, err)
	}
}

func TestEnsureSchema_OpenDBSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := sqlstore.OpenDB("sqlite", fmt.Sprintf("file:authretry-open-%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := sqlstore.EnsureSchema(ctx, db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := sqlstore.EnsureSchema(ctx, db); err != nil {
		t.Fatalf("ensure schema twice: %v", err)
	}
	store, err := sqlstore.NewCredentialStore(db, "access_token")
	if err != nil {
		t.Fatalf("new credential store: %v", err)
	}
	if err := store.Set(ctx, "tok"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := store.Get(ctx); !ok {
		t.Fatalf("expected stored credential")
	}
}

func TestOpenDB_RejectsUnknownDriver(t *testing.T) {
	if _, err := sqlstore.OpenDB("oracle", "dsn"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := sqlstore.OpenDB("sqlite", " "); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:authretry-test-%d?mode=memory&cache=shared&_foreign_keys=on",
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
	_, err = migrations.Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithTargets(migrations.DialectSQLite))
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
