package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bher20/meterledger/internal/billing"
	"github.com/bher20/meterledger/internal/meter"
	"github.com/bher20/meterledger/internal/usage"
)

var (
	statsFile     string
	statsSettings string
	statsDate     string
	statsOverflow string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Compute a statistics report from a readings file",
	Long: `Reads meter readings (and optionally tariff settings) from YAML or JSON
files and prints the statistics report for the billing period active on --date.
Nothing is read from or written to storage.

Readings file:

  readings:
    - {value: 128.5, date: 2025-01-02, time: "08:00"}
    - {raw: 1287309, date: 2025-01-03, time: "08:05"}
  settings:
    billing_start_day: 15
    billing_end_day: 14`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsFile, "file", "", "readings file (YAML or JSON)")
	statsCmd.Flags().StringVar(&statsSettings, "settings", "", "settings file; overrides settings in the readings file")
	statsCmd.Flags().StringVar(&statsDate, "date", "", "reference date YYYY-MM-DD (default today)")
	statsCmd.Flags().StringVar(&statsOverflow, "overflow", "", "day overflow policy: roll or clamp (default from config)")
	_ = statsCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(statsCmd)
}

type readingsFile struct {
	Readings []usage.NewReading `yaml:"readings"`
	Settings map[string]string  `yaml:"settings"`
}

func runStats(cmd *cobra.Command, args []string) error {
	var in readingsFile
	if err := readYAML(statsFile, &in); err != nil {
		return err
	}
	if statsSettings != "" {
		var settings map[string]string
		if err := readYAML(statsSettings, &settings); err != nil {
			return err
		}
		if in.Settings == nil {
			in.Settings = map[string]string{}
		}
		for k, v := range settings {
			in.Settings[k] = v
		}
	}

	day, err := referenceDate(statsDate)
	if err != nil {
		return err
	}
	overflow, err := overflowPolicy(statsOverflow)
	if err != nil {
		return err
	}

	stats, err := offlineStatistics(in, day, overflow)
	if err != nil {
		return err
	}
	return printJSON(cmd, billing.NewReport(stats))
}

// offlineStatistics computes statistics for the readings in f that fall in
// the billing period active on day.
func offlineStatistics(f readingsFile, day time.Time, overflow billing.DayOverflow) (billing.Statistics, error) {
	for k := range f.Settings {
		if !billing.IsSettingKey(k) {
			return billing.Statistics{}, fmt.Errorf("unknown setting %q", k)
		}
	}
	t, err := billing.ParseTariff(f.Settings)
	if err != nil {
		return billing.Statistics{}, err
	}
	p, err := billing.ResolvePeriod(day, t.StartDay, t.EndDay, overflow)
	if err != nil {
		return billing.Statistics{}, err
	}

	readings := make([]meter.Reading, 0, len(f.Readings))
	for i, nr := range f.Readings {
		r, err := nr.Reading()
		if err != nil {
			return billing.Statistics{}, fmt.Errorf("reading %d: %w", i+1, err)
		}
		if p.Contains(r.Date) {
			readings = append(readings, r)
		}
	}
	meter.Sort(readings)
	return billing.ComputeStatistics(readings, t, p), nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
