package notedrive

import (
	"context"
	"fmt"
)

// Migrate initializes or updates the schema of the configured store. For
// PostgreSQL this runs GORM AutoMigrate over every model; the in-memory
// store has nothing to do. Safe to run repeatedly, existing data is kept.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	a.log.Info().Msg("running database migrations")
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.log.Info().Msg("migrations completed")
	return nil
}
