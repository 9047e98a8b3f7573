package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies every pending embedded migration.
func Migrate(ctx context.Context, db *sql.DB, driver Driver, log *slog.Logger) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	provider, err := goose.NewProvider(driver.dialect(), db, fsys)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}
	for _, r := range results {
		log.Info("applied migration",
			"version", r.Source.Version,
			"duration", r.Duration)
	}
	return nil
}
