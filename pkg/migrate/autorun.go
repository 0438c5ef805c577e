package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/burudani/burudani-backend/pkg/config"
	"github.com/burudani/burudani-backend/pkg/db"
	"github.com/burudani/burudani-backend/pkg/db/models"
	"github.com/burudani/burudani-backend/pkg/logger"
)

// MaybeRunDev migrates to the latest schema on boot, only in dev with the
// auto-migrate flag set.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver, "dir": DefaultDir})
	logg.Info(ctx, "migrate.dev_autorun_started")
	if err := Apply(ctx, client.DB(), cfg.DB.Driver, DefaultDir, CommandUp, ""); err != nil {
		return fmt.Errorf("dev auto-migrate: %w", err)
	}
	logg.Info(ctx, "migrate.dev_autorun_completed")
	return nil
}

// AutoMigrateModels creates the schema from the gorm models. Used for sqlite and tests.
func AutoMigrateModels(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(
		&models.User{},
		&models.PaymentIntent{},
		&models.PaymentWebhookEvent{},
		&models.OutboxEvent{},
	); err != nil {
		return fmt.Errorf("auto-migrating models: %w", err)
	}
	return nil
}
