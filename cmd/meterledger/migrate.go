package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bher20/meterledger/internal/migrate"
	"github.com/bher20/meterledger/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the SQL schema",
}

func init() {
	for _, sub := range []*cobra.Command{
		{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				driver, dsn, err := migrationTarget()
				if err != nil {
					return err
				}
				if err := migrate.Up(cmd.Context(), driver, dsn); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				return printVersion(cmd, driver, dsn)
			},
		},
		{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				driver, dsn, err := migrationTarget()
				if err != nil {
					return err
				}
				if err := migrate.Down(cmd.Context(), driver, dsn); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				return printVersion(cmd, driver, dsn)
			},
		},
		{
			Use:   "status",
			Short: "Show the state of every migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				driver, dsn, err := migrationTarget()
				if err != nil {
					return err
				}
				return migrate.Status(cmd.Context(), driver, dsn)
			},
		},
	} {
		migrateCmd.AddCommand(sub)
	}
	rootCmd.AddCommand(migrateCmd)
}

func migrationTarget() (string, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", "", err
	}
	driver, dsn := cfg.DB.Driver, cfg.DB.DSN
	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = storage.DefaultSQLiteDSN
		}
	case "postgres", "postgrespool":
		if dsn == "" {
			dsn = storage.DefaultPostgresDSN
		}
	default:
		return "", "", fmt.Errorf("driver %q has no schema to migrate", driver)
	}
	return driver, dsn, nil
}

func printVersion(cmd *cobra.Command, driver, dsn string) error {
	v, err := migrate.Version(cmd.Context(), driver, dsn)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
	return nil
}
