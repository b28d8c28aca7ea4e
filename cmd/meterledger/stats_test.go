package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bher20/meterledger/internal/billing"
	"github.com/bher20/meterledger/internal/usage"
)

func TestOfflineStatistics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.yaml")
	data := `readings:
  - {value: 100, date: 2025-01-16, time: "08:00"}
  - {raw: 1025000, date: 2025-01-17, time: "08:00"}
  - {value: 101, date: 2025-01-18, time: "08:00"}
  - {value: 90, date: 2025-01-10, time: "08:00"}
settings:
  billing_start_day: 15
  billing_end_day: 14
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write readings: %v", err)
	}
	var f readingsFile
	if err := readYAML(path, &f); err != nil {
		t.Fatalf("readYAML failed: %v", err)
	}

	day := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	stats, err := offlineStatistics(f, day, billing.OverflowRoll)
	if err != nil {
		t.Fatalf("offlineStatistics failed: %v", err)
	}
	if stats.Period.String() != "2025-01-15..2025-02-14" {
		t.Fatalf("unexpected period %s", stats.Period)
	}
	if stats.ReadingCount != 3 || stats.TotalUsage != 2.5 || len(stats.Anomalies) != 1 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}

	f.Settings["colour"] = "blue"
	if _, err := offlineStatistics(f, day, billing.OverflowRoll); err == nil {
		t.Fatalf("expected unknown setting to be rejected")
	}
}

func TestOfflineStatistics_InvalidReading(t *testing.T) {
	v := -1.0
	f := readingsFile{Readings: []usage.NewReading{{Value: &v, Date: "2025-01-02", Time: "08:00"}}}
	_, err := offlineStatistics(f, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), billing.OverflowRoll)
	if err == nil || !strings.Contains(err.Error(), "reading 1") {
		t.Fatalf("expected reading error, got %v", err)
	}
}

func TestConvertCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"convert", "1287309"})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "128.7309" {
		t.Fatalf("got %q, want 128.7309", got)
	}
}

func TestPeriodCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"period", "--start-day", "31", "--end-day", "30", "--date", "2025-04-15", "--overflow", "clamp"})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("period failed: %v", err)
	}
	if !strings.Contains(out.String(), `"start": "2025-03-31"`) || !strings.Contains(out.String(), `"end": "2025-04-30"`) {
		t.Fatalf("unexpected output: %s", out.String())
	}
}
