package relational

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations
var migrationsFS embed.FS

// runMigrations applies every pending migration embedded under migrations/
// against dsn. It opens a short-lived database/sql handle purely for
// golang-migrate's driver interface; all application queries go through the
// caller's pgxpool.Pool instead.
func runMigrations(dsn string) error {
	db, m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply relational migrations: %w", err)
	}
	return nil
}

// Reset drops every relational migration and reapplies them from scratch.
// Callers must guard this against non-local databases themselves (cmd/migrate
// does, via Config.IsLocalPostgres).
func Reset(dsn string) error {
	db, m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := m.Down(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("drop relational migrations: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("reapply relational migrations: %w", err)
	}
	return nil
}

func newMigrator(dsn string) (*sql.DB, *migrate.Migrate, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open migration connection: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create postgres migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("open embedded migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return db, m, nil
}
