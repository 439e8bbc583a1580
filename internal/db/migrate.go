package db

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "migrations"

// RunMigrations creates the warehouse tables. It is safe to call on every
// start; an up-to-date schema is not an error.
func (c *Connection) RunMigrations() error {
	if c == nil || c.Pool == nil {
		return errors.New("migration database handle is required")
	}

	source, err := iofs.New(Migrations(), ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	// The handle shares c.Pool; closing it is left to Connection.Close.
	sqlDB := stdlib.OpenDBFromPool(c.Pool)

	driver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Migrations exposes the embedded migration files.
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		panic(err)
	}
	return sub
}
