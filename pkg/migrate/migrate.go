package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/burudani/burudani-backend/pkg/config"
)

const DefaultDir = "pkg/migrate/migrations"

// SQL migrations target postgres; sqlite runs use AutoMigrateModels instead.
const dialect = "postgres"

// Command is a schema operation that needs a live database.
type Command string

const (
	CommandUp      Command = "up"
	CommandDown    Command = "down"
	CommandStatus  Command = "status"
	CommandVersion Command = "version"
)

// ErrUnsupportedOnSQLite is returned for anything but up on sqlite, where
// there are no versioned migrations to walk.
var ErrUnsupportedOnSQLite = errors.New("only up is supported on sqlite")

func ParseCommand(value string) (Command, error) {
	switch cmd := Command(strings.ToLower(strings.TrimSpace(value))); cmd {
	case CommandUp, CommandDown, CommandStatus, CommandVersion:
		return cmd, nil
	default:
		return "", fmt.Errorf("unknown migration command %q", value)
	}
}

// Apply runs cmd against conn. On postgres it drives goose over dir; target is
// the YYYYMMDDHHMMSS version for CommandVersion. On sqlite only CommandUp is
// accepted and it syncs the gorm models.
func Apply(ctx context.Context, conn *gorm.DB, driver, dir string, cmd Command, target string) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if strings.EqualFold(strings.TrimSpace(driver), config.DriverSQLite) {
		if cmd != CommandUp {
			return fmt.Errorf("%s: %w", cmd, ErrUnsupportedOnSQLite)
		}
		return AutoMigrateModels(conn)
	}

	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	switch cmd {
	case CommandUp, CommandDown, CommandStatus:
		if err := goose.RunContext(ctx, string(cmd), sqlDB, dir); err != nil {
			return fmt.Errorf("goose %s: %w", cmd, err)
		}
		return nil
	case CommandVersion:
		version, err := parseVersion(target)
		if err != nil {
			return err
		}
		return toVersion(ctx, sqlDB, dir, version)
	default:
		return fmt.Errorf("unknown migration command %q", cmd)
	}
}

func parseVersion(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if len(value) != len(versionLayout) {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", value)
	}
	version, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", value, err)
	}
	return version, nil
}

// toVersion walks up or down from the current database version to target.
func toVersion(ctx context.Context, db *sql.DB, dir string, target int64) error {
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current < target:
		err = goose.UpToContext(ctx, db, dir, target)
	case current > target:
		err = goose.DownToContext(ctx, db, dir, target)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return nil
}
