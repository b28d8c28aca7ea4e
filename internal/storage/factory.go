package storage

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/bher20/meterledger/internal/migrate"
)

const (
	DefaultSQLiteDSN   = "meterledger.db"
	DefaultPostgresDSN = "postgres://localhost:5432/meterledger?sslmode=disable"
)

// ErrUnsupportedDriver is returned by Open for an unknown driver name.
var ErrUnsupportedDriver = errors.New("unsupported storage driver")

// Config controls how the storage backend is opened.
type Config struct {
	Driver string
	DSN    string
	// AutoMigrate brings the schema up to date before returning.
	AutoMigrate bool
}

// Open constructs a Storage based on the given configuration.
func Open(ctx context.Context, cfg Config) (Storage, error) {
	drv := cfg.Driver
	if drv == "" {
		drv = "memory"
	}
	switch drv {
	case "memory":
		log.Printf("storage: using in-memory backend")
		return NewMemory(), nil

	case "sqlite", "postgres":
		log.Printf("storage: using gorm driver=%s", drv)
		st, err := NewGormStorage(drv, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := st.Migrate(ctx); err != nil {
				st.Close()
				return nil, fmt.Errorf("storage migrate: %w", err)
			}
		}
		return st, nil

	case "postgrespool":
		log.Printf("storage: using pgxpool backend")
		dsn := cfg.DSN
		if dsn == "" {
			dsn = DefaultPostgresDSN
		}
		if cfg.AutoMigrate {
			if err := migrate.Up(ctx, drv, dsn); err != nil {
				return nil, fmt.Errorf("storage migrate: %w", err)
			}
		}
		return OpenPostgresPool(ctx, dsn)

	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedDriver, drv)
	}
}
