package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bher20/meterledger/internal/billing"
	"github.com/bher20/meterledger/internal/meter"
)

var (
	periodStartDay int
	periodEndDay   int
	periodDate     string
	periodOverflow string
)

var periodCmd = &cobra.Command{
	Use:   "period",
	Short: "Print the billing period active on a date",
	RunE:  runPeriod,
}

func init() {
	periodCmd.Flags().IntVar(&periodStartDay, "start-day", 1, "billing start day of month (1-31)")
	periodCmd.Flags().IntVar(&periodEndDay, "end-day", 31, "billing end day of month (1-31)")
	periodCmd.Flags().StringVar(&periodDate, "date", "", "reference date YYYY-MM-DD (default today)")
	periodCmd.Flags().StringVar(&periodOverflow, "overflow", "", "day overflow policy: roll or clamp (default from config)")
	rootCmd.AddCommand(periodCmd)
}

func runPeriod(cmd *cobra.Command, args []string) error {
	day, err := referenceDate(periodDate)
	if err != nil {
		return err
	}
	overflow, err := overflowPolicy(periodOverflow)
	if err != nil {
		return err
	}
	p, err := billing.ResolvePeriod(day, periodStartDay, periodEndDay, overflow)
	if err != nil {
		return err
	}

	out := struct {
		billing.PeriodReport
		DaysInPeriod int `json:"days_in_period"`
	}{billing.NewPeriodReport(p), p.Days()}
	return printJSON(cmd, out)
}

func referenceDate(s string) (time.Time, error) {
	if s == "" {
		return billing.DateOf(time.Now().UTC()), nil
	}
	return meter.ParseDate(s)
}

// overflowPolicy prefers the flag and falls back to the loaded config.
func overflowPolicy(flag string) (billing.DayOverflow, error) {
	if flag != "" {
		return billing.ParseDayOverflow(flag)
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Overflow(), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
