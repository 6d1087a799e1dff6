package pg

import (
	"embed"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate runs all pending embedded migrations against the given DSN.
func Migrate(dsn string) error {
	// Route through migrate's pgx/v5 driver regardless of DSN scheme.
	if strings.HasPrefix(dsn, "postgres://") {
		dsn = "pgx5://" + strings.TrimPrefix(dsn, "postgres://")
	} else if strings.HasPrefix(dsn, "postgresql://") {
		dsn = "pgx5://" + strings.TrimPrefix(dsn, "postgresql://")
	}

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
