package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/pressly/goose/v3"
)

// AutoApplies reports whether the api should bring the schema up to date on
// boot. Only dev honours the flag.
func AutoApplies(app config.AppConfig, flags config.FeatureFlagsConfig) bool {
	return flags.AutoMigrate && app.IsDev()
}

// MaybeRunDev applies pending embedded migrations on a dev boot and logs the
// schema version before and after.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !AutoApplies(cfg.App, cfg.FeatureFlags) {
		return nil
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("unwrap sql.DB: %w", err)
	}
	if _, err := (Source{}).prepare(); err != nil {
		return err
	}

	from, err := goose.EnsureDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "from_version": from})

	if err := Run(ctx, sqlDB, Source{}, "up"); err != nil {
		return err
	}

	to, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if to == from {
		logg.Info(ctx, "schema already current")
		return nil
	}
	logg.Info(logg.WithField(ctx, "to_version", to), "schema migrated")
	return nil
}
