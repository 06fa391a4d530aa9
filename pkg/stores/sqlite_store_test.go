package stores

import (
	"context"
	"testing"
	"time"

	"github.com/overcast-cloud/backendctl/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func testRecord(name string) engine.Record {
	return engine.Record{
		Name:      name,
		Type:      "hitachi",
		Principal: "cinder-volume",
		ModelUUID: "4a1b9c2e-0000-4000-8000-000000000001",
		Config:    `{"san-ip":"10.0.0.5","san-password":"********"}`,
	}
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestStorePoolSettings(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if store.cfg.MaxOpenConns != 25 || store.cfg.MaxIdleConns != 5 || store.cfg.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("pool defaults = %+v", store.cfg)
	}

	custom, err := NewSQLiteStore(Config{
		Path:            ":memory:",
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ctx := context.Background()
	if err := custom.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	defer custom.Close()
	if got := custom.db.Stats().MaxOpenConnections; got != 2 {
		t.Errorf("max open connections = %d, want 2", got)
	}
}

func TestCreateAndGetRegistration(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	rec := testRecord("hitachi-vsp")
	if err := store.CreateRegistration(ctx, rec); err != nil {
		t.Fatalf("failed to create registration: %v", err)
	}

	got, err := store.GetRegistration(ctx, "hitachi-vsp")
	if err != nil {
		t.Fatalf("failed to get registration: %v", err)
	}
	if *got != rec {
		t.Errorf("got %+v, want %+v", *got, rec)
	}
}

func TestCreateRegistrationConflict(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.CreateRegistration(ctx, testRecord("hitachi-vsp")); err != nil {
		t.Fatalf("failed to create registration: %v", err)
	}

	err := store.CreateRegistration(ctx, testRecord("hitachi-vsp"))
	if !engine.IsConflict(err) {
		t.Fatalf("err = %v, want conflict class", err)
	}
}

func TestGetRegistrationNotFound(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	_, err := store.GetRegistration(context.Background(), "absent")
	if !engine.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found class", err)
	}
}

func TestListRegistrationsByPrincipal(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	recA := testRecord("hitachi-vsp-a")
	recB := testRecord("hitachi-vsp-b")
	other := testRecord("ceph-external")
	other.Principal = "cinder-ceph"

	for _, rec := range []engine.Record{recB, recA, other} {
		if err := store.CreateRegistration(ctx, rec); err != nil {
			t.Fatalf("failed to create registration: %v", err)
		}
	}

	records, err := store.ListRegistrations(ctx, "cinder-volume")
	if err != nil {
		t.Fatalf("failed to list registrations: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Name != "hitachi-vsp-a" || records[1].Name != "hitachi-vsp-b" {
		t.Errorf("records not ordered by name: %v, %v", records[0].Name, records[1].Name)
	}

	// An empty principal lists every record.
	records, err = store.ListRegistrations(ctx, "")
	if err != nil {
		t.Fatalf("failed to list all registrations: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].Name != "ceph-external" {
		t.Errorf("records not ordered by name: %v", records[0].Name)
	}
}

func TestUpdateRegistration(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	rec := testRecord("hitachi-vsp")
	if err := store.CreateRegistration(ctx, rec); err != nil {
		t.Fatalf("failed to create registration: %v", err)
	}

	rec.Config = `{"san-ip":"10.0.0.6","san-password":"********"}`
	if err := store.UpdateRegistration(ctx, rec); err != nil {
		t.Fatalf("failed to update registration: %v", err)
	}

	got, err := store.GetRegistration(ctx, "hitachi-vsp")
	if err != nil {
		t.Fatalf("failed to get registration: %v", err)
	}
	if got.Config != rec.Config {
		t.Errorf("config = %q, want %q", got.Config, rec.Config)
	}

	if err := store.UpdateRegistration(ctx, testRecord("absent")); !engine.IsNotFound(err) {
		t.Fatalf("update of absent record: %v, want not-found class", err)
	}
}

func TestDeleteRegistration(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.CreateRegistration(ctx, testRecord("hitachi-vsp")); err != nil {
		t.Fatalf("failed to create registration: %v", err)
	}

	if err := store.DeleteRegistration(ctx, "hitachi-vsp"); err != nil {
		t.Fatalf("failed to delete registration: %v", err)
	}

	if err := store.DeleteRegistration(ctx, "hitachi-vsp"); !engine.IsNotFound(err) {
		t.Fatalf("second delete: %v, want not-found class", err)
	}
}

func TestCountRegistrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()
	ctx := context.Background()

	for _, name := range []string{"a-backend", "b-backend"} {
		if err := store.CreateRegistration(ctx, testRecord(name)); err != nil {
			t.Fatalf("failed to create registration: %v", err)
		}
	}

	count, err := store.CountRegistrations(ctx)
	if err != nil {
		t.Fatalf("failed to count registrations: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestMemoryStoreMatchesSQLiteSemantics(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec := testRecord("hitachi-vsp")
	if err := store.CreateRegistration(ctx, rec); err != nil {
		t.Fatalf("failed to create registration: %v", err)
	}
	if err := store.CreateRegistration(ctx, rec); !engine.IsConflict(err) {
		t.Fatalf("duplicate create: %v, want conflict class", err)
	}

	got, err := store.GetRegistration(ctx, "hitachi-vsp")
	if err != nil {
		t.Fatalf("failed to get registration: %v", err)
	}
	if *got != rec {
		t.Errorf("got %+v, want %+v", *got, rec)
	}

	records, err := store.ListRegistrations(ctx, "cinder-volume")
	if err != nil || len(records) != 1 {
		t.Fatalf("list = %v, %v", records, err)
	}
	records, err = store.ListRegistrations(ctx, "")
	if err != nil || len(records) != 1 {
		t.Fatalf("unfiltered list = %v, %v", records, err)
	}

	if err := store.DeleteRegistration(ctx, "hitachi-vsp"); err != nil {
		t.Fatalf("failed to delete registration: %v", err)
	}
	if err := store.DeleteRegistration(ctx, "hitachi-vsp"); !engine.IsNotFound(err) {
		t.Fatalf("second delete: %v, want not-found class", err)
	}
	if _, err := store.GetRegistration(ctx, "hitachi-vsp"); !engine.IsNotFound(err) {
		t.Fatalf("get after delete: %v, want not-found class", err)
	}
}
