package migrate

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/burudani/burudani-backend/pkg/config"
)

func TestParseCommand(t *testing.T) {
	for raw, want := range map[string]Command{"up": CommandUp, " DOWN ": CommandDown, "status": CommandStatus, "version": CommandVersion} {
		got, err := ParseCommand(raw)
		if err != nil || got != want {
			t.Fatalf("ParseCommand(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseCommand("create"); err == nil {
		t.Fatal("create is not a database command")
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion("20260301120000"); err != nil || v != 20260301120000 {
		t.Fatalf("unexpected %d %v", v, err)
	}
	for _, bad := range []string{"", "2026", "2026030112000x", "202603011200001"} {
		if _, err := parseVersion(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestApplyOnSQLite(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:apply_sqlite?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx := context.Background()

	if err := Apply(ctx, conn, config.DriverSQLite, DefaultDir, CommandUp, ""); err != nil {
		t.Fatalf("up on sqlite: %v", err)
	}
	if !conn.Migrator().HasTable("payment_intents") {
		t.Fatal("expected payment_intents after up")
	}

	err = Apply(ctx, conn, "SQLite", DefaultDir, CommandDown, "")
	if !errors.Is(err, ErrUnsupportedOnSQLite) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestApplyRequiresDB(t *testing.T) {
	if err := Apply(context.Background(), nil, config.DriverPostgres, DefaultDir, CommandUp, ""); err == nil {
		t.Fatal("expected nil db error")
	}
}
