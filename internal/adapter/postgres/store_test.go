package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/CredForge/internal/adapter/postgres"
	"github.com/Strob0t/CredForge/internal/domain"
	"github.com/Strob0t/CredForge/internal/domain/provider"
	"github.com/Strob0t/CredForge/internal/port/database"
)

// setupStore creates a pgxpool connection, runs all migrations, and returns a
// ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()

	// Run goose migrations first (uses embedded SQL files).
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

// createTestTenant creates a tenant with a random name and returns its ID.
func createTestTenant(t *testing.T, store *postgres.Store) string {
	t.Helper()
	tn, err := store.CreateTenant(context.Background(), "test-"+uuid.New().String()[:8])
	if err != nil {
		t.Fatalf("create test tenant: %v", err)
	}
	return tn.ID
}

func TestStore_TenantPublicKey(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	tid := createTestTenant(t, store)

	tn, err := store.GetTenant(ctx, tid)
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if tn.HasKeyPair() {
		t.Fatal("new tenant should not have a key pair")
	}

	if err := store.SetTenantPublicKey(ctx, tid, "-----BEGIN PUBLIC KEY-----"); err != nil {
		t.Fatalf("set public key: %v", err)
	}
	tn, _ = store.GetTenant(ctx, tid)
	if !tn.HasKeyPair() {
		t.Fatal("expected key pair after SetTenantPublicKey")
	}

	err = store.SetTenantPublicKey(ctx, uuid.NewString(), "x")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown tenant, got %v", err)
	}
}

func TestStore_ProviderRecordLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	tid := createTestTenant(t, store)

	created, err := store.CreateProviderRecord(ctx, &provider.Record{
		TenantID:        tid,
		ProviderName:    "openai",
		ProviderType:    provider.ProviderTypeCustom,
		EncryptedConfig: []byte(`{"openai_api_key":"token"}`),
		IsValid:         true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}

	_, err = store.CreateProviderRecord(ctx, &provider.Record{
		TenantID: tid, ProviderName: "openai", ProviderType: provider.ProviderTypeCustom,
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate record, got %v", err)
	}

	got, err := store.GetProviderRecord(ctx, tid, "openai", provider.ProviderTypeCustom)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.EncryptedConfig) != `{"openai_api_key":"token"}` {
		t.Fatalf("unexpected config %s", got.EncryptedConfig)
	}

	got.EncryptedConfig = []byte(`{"openai_api_key":"token2"}`)
	updated, err := store.UpdateProviderRecord(ctx, got)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}

	// got still carries version 1: a second writer lost the race.
	if _, err := store.UpdateProviderRecord(ctx, got); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on stale version, got %v", err)
	}

	list, err := store.ListProviderRecords(ctx, tid)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 record, got %d (%v)", len(list), err)
	}

	if err := store.DeleteProviderRecord(ctx, tid, updated.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetProviderRecord(ctx, tid, "openai", provider.ProviderTypeCustom); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStore_TenantIsolation(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	tidA := createTestTenant(t, store)
	tidB := createTestTenant(t, store)

	rec, err := store.CreateProviderRecord(ctx, &provider.Record{
		TenantID: tidA, ProviderName: "anthropic", ProviderType: provider.ProviderTypeCustom,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.GetProviderRecord(ctx, tidB, "anthropic", provider.ProviderTypeCustom); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("tenant B must not see tenant A's record, got %v", err)
	}
	if err := store.DeleteProviderRecord(ctx, tidB, rec.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("tenant B must not delete tenant A's record, got %v", err)
	}
}

func TestStore_ModelRecordsAndSettings(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	tid := createTestTenant(t, store)

	m, err := store.CreateProviderModelRecord(ctx, &provider.ModelRecord{
		TenantID: tid, ProviderName: "openai", ModelName: "gpt-4o", ModelType: provider.ModelTypeLLM,
		EncryptedConfig: []byte(`{}`), IsValid: true,
	})
	if err != nil {
		t.Fatalf("create model record: %v", err)
	}
	m.IsValid = false
	if _, err := store.UpdateProviderModelRecord(ctx, m); err != nil {
		t.Fatalf("update model record: %v", err)
	}
	if _, err := store.UpdateProviderModelRecord(ctx, m); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := store.UpsertModelSetting(ctx, tid, "openai", "gpt-4o", provider.ModelTypeLLM, false); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertModelSetting(ctx, tid, "openai", "gpt-4o", provider.ModelTypeLLM, true); err != nil {
		t.Fatal(err)
	}
	settings, err := store.ListModelSettings(ctx, tid)
	if err != nil || len(settings) != 1 || !settings[0].Enabled {
		t.Fatalf("expected one enabled setting, got %+v (%v)", settings, err)
	}

	if err := store.UpsertPreferredProviderType(ctx, tid, "openai", provider.ProviderTypeSystem); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertPreferredProviderType(ctx, tid, "openai", provider.ProviderTypeCustom); err != nil {
		t.Fatal(err)
	}
	pref, err := store.GetPreferredProviderType(ctx, tid, "openai")
	if err != nil || pref.PreferredProviderType != provider.ProviderTypeCustom {
		t.Fatalf("expected custom preference, got %+v (%v)", pref, err)
	}
}

func TestStore_InTxRollback(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	tid := createTestTenant(t, store)
	boom := errors.New("boom")

	err := store.InTx(ctx, func(tx database.Store) error {
		if _, err := tx.CreateProviderRecord(ctx, &provider.Record{
			TenantID: tid, ProviderName: "openai", ProviderType: provider.ProviderTypeCustom,
		}); err != nil {
			return err
		}
		// Nested InTx joins the outer transaction.
		return tx.InTx(ctx, func(database.Store) error { return boom })
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := store.GetProviderRecord(ctx, tid, "openai", provider.ProviderTypeCustom); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("record should be rolled back, got %v", err)
	}
}
