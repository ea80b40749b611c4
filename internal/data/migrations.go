package data

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/target/institute-web/internal/migrate"
)

// RunMigrations brings the schema up to date, logging each applied version through logger.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	return migrate.RunWithOptions(ctx, db, migrate.Options{Logger: logger})
}
