package bookbuddy

import (
	"context"
	"embed"
	"io/fs"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// RunMigrations applies any pending schema migrations.
func RunMigrations(ctx context.Context, db *bun.DB) error {
	sqlFS, err := fs.Sub(migrationsFS, "data/sql/migrations")
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to scope migrations fs")
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(sqlFS); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to init migrator")
	}

	if _, err := migrator.Migrate(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to run migrations")
	}

	return nil
}
