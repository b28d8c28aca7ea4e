package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bher20/meterledger/internal/config"
	"github.com/bher20/meterledger/internal/storage"
)

var (
	cfgFile  string
	dbDriver string
	dbDSN    string
)

var rootCmd = &cobra.Command{
	Use:   "meterledger",
	Short: "Track water meter readings and bill them against a tiered tariff",
	Long: `meterledger records cumulative water meter readings per owner, works out
usage over a recurring billing period and prices it against tiered water and
sewage tariffs.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (environment variables override it)")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "db-driver", "", "storage driver: memory, sqlite, postgres or postgrespool")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db-dsn", "", "storage DSN")
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	if dbDriver != "" {
		cfg.DB.Driver = dbDriver
	}
	if dbDSN != "" {
		cfg.DB.DSN = dbDSN
	}
	return cfg, nil
}

func openStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	st, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.DB.Driver,
		DSN:         cfg.DB.DSN,
		AutoMigrate: cfg.DB.AutoMigrate,
	})
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return st, nil
}
