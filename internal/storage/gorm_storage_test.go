package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/bher20/meterledger/internal/migrate"
)

func newSQLite(t *testing.T) *GormStorage {
	t.Helper()
	st, err := NewGormStorage("sqlite", filepath.Join(t.TempDir(), "meterledger.db"))
	if err != nil {
		t.Fatalf("NewGormStorage failed: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return st
}

func TestGormStorage_Readings(t *testing.T) {
	exerciseReadings(t, newSQLite(t))
}

func TestGormStorage_SameMinuteKeepsInsertionOrder(t *testing.T) {
	exerciseSameMinuteOrder(t, newSQLite(t))
}

func TestGormStorage_SettingsAndSnapshots(t *testing.T) {
	exerciseSettingsAndSnapshots(t, newSQLite(t))
}

func TestGormStorage_PolicyRules(t *testing.T) {
	exercisePolicyRules(t, newSQLite(t))
}

func TestGormStorage_DeleteOwnerCascades(t *testing.T) {
	exerciseDeleteOwner(t, newSQLite(t))
}

func TestGormStorage_ScheduledJob(t *testing.T) {
	exerciseScheduledJob(t, newSQLite(t))
}

func TestGormStorage_GooseSchema(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "goose.db")
	if err := migrate.Up(ctx, "sqlite", dsn); err != nil {
		t.Fatalf("migrate.Up failed: %v", err)
	}

	st, err := NewGormStorage("sqlite", dsn)
	if err != nil {
		t.Fatalf("NewGormStorage failed: %v", err)
	}
	exerciseReadings(t, st)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, Config{})
	if err != nil {
		t.Fatalf("Open memory failed: %v", err)
	}
	if _, ok := st.(*MemoryStorage); !ok {
		t.Fatalf("expected memory backend by default, got %T", st)
	}

	st, err = Open(ctx, Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "open.db"), AutoMigrate: true})
	if err != nil {
		t.Fatalf("Open sqlite failed: %v", err)
	}
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if err := st.EnsureOwner(ctx, "alice"); err != nil {
		t.Fatalf("EnsureOwner on migrated sqlite failed: %v", err)
	}

	if _, err := Open(ctx, Config{Driver: "mysql"}); !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("expected ErrUnsupportedDriver, got %v", err)
	}
}
