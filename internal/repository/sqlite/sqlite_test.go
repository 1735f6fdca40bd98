package sqlite

import (
	"context"
	"testing"

	"github.com/sakif/servicehours/internal/model"
)

// newTestDB returns a migrated in-memory database closed at test end.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestEvent(t *testing.T, db *DB, name string, location model.Location) *model.Event {
	t.Helper()
	event := &model.Event{
		Name:      name,
		Date:      "2026-11-14",
		Location:  location,
		Address:   "500 W University Ave",
		UserLimit: 10,
		CreatedBy: "organizer-1",
	}
	if err := db.Events().Create(context.Background(), event); err != nil {
		t.Fatalf("failed to create test event: %v", err)
	}
	return event
}

// =========================================================================
// MIGRATION TESTS
// =========================================================================

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	version, dirty, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
	if dirty {
		t.Error("schema reported dirty after a clean migration")
	}
}

func TestOpen_WithoutMigrations(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	version, _, err := db.SchemaVersion()
	if err == nil && version != 0 {
		t.Errorf("fresh database reports version %d", version)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
