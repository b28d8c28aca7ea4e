// Package migrate applies the embedded goose migrations for the SQL storage
// backends.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations
var embedMigrations embed.FS

func configureGoose(driver string) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetTableName("schema_migrations")

	switch driver {
	case "sqlite", "sqlite3":
		return goose.SetDialect("sqlite3")
	case "postgres", "pgx", "postgrespool":
		return goose.SetDialect("postgres")
	}
	return fmt.Errorf("unsupported driver for goose: %s", driver)
}

func migrationDir(driver string) string {
	if driver == "postgres" || driver == "pgx" || driver == "postgrespool" {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

func openDB(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "", "sqlite", "sqlite3":
		if dsn == "" {
			dsn = "meterledger.db"
		}
		// Registered by glebarez/go-sqlite, the same driver the gorm dialector uses.
		return sql.Open("sqlite", dsn)
	default:
		return sql.Open("pgx", dsn)
	}
}

func run(ctx context.Context, driver, dsn string, fn func(context.Context, *sql.DB, string) error) error {
	if driver == "" {
		driver = "sqlite"
	}
	if err := configureGoose(driver); err != nil {
		return err
	}
	db, err := openDB(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db, migrationDir(driver))
}

// Up applies all pending migrations.
func Up(ctx context.Context, driver, dsn string) error {
	return run(ctx, driver, dsn, func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.UpContext(ctx, db, dir)
	})
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, driver, dsn string) error {
	return run(ctx, driver, dsn, func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.DownContext(ctx, db, dir)
	})
}

// Status logs the applied state of every migration.
func Status(ctx context.Context, driver, dsn string) error {
	return run(ctx, driver, dsn, func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.StatusContext(ctx, db, dir)
	})
}

// Version returns the current schema version.
func Version(ctx context.Context, driver, dsn string) (int64, error) {
	var version int64
	err := run(ctx, driver, dsn, func(ctx context.Context, db *sql.DB, dir string) error {
		v, err := goose.GetDBVersionContext(ctx, db)
		version = v
		return err
	})
	return version, err
}
