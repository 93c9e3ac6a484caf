package store

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/shelfline/shelfline/migrations"
)

// RunMigrations applies all pending database migrations using goose with the
// embedded SQL files from the migrations package.
func RunMigrations(db *sql.DB) error {
	// Goose logs to stdout by default; keep startup quiet.
	goose.SetLogger(goose.NopLogger())

	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
