package billing

import (
	"testing"
	"time"

	"github.com/bher20/meterledger/internal/meter"
)

func reading(value float64, d time.Time, tod string) meter.Reading {
	return meter.Reading{Value: value, Date: d, Time: tod}
}

func january() Period {
	return Period{Start: date(2025, 1, 1), End: date(2025, 1, 31)}
}

func TestComputeStatistics_NegativeDeltaFloored(t *testing.T) {
	readings := []meter.Reading{
		reading(100.0, date(2025, 1, 1), "08:00"),
		reading(102.5, date(2025, 1, 2), "08:00"),
		reading(101.0, date(2025, 1, 3), "08:00"),
	}
	s := ComputeStatistics(readings, DefaultTariff(), january())

	if len(s.DailyUsage) != 2 {
		t.Fatalf("expected 2 daily usage entries, got %d", len(s.DailyUsage))
	}
	if s.DailyUsage[0].Usage != 2.5 || s.DailyUsage[1].Usage != 0 {
		t.Fatalf("unexpected daily usage: %+v", s.DailyUsage)
	}
	if s.DailyUsage[0].Date != "2025-01-02" || s.DailyUsage[1].Date != "2025-01-03" {
		t.Fatalf("usage attributed to wrong dates: %+v", s.DailyUsage)
	}
	if s.TotalUsage != 2.5 {
		t.Errorf("total usage: got %v, want 2.5", s.TotalUsage)
	}
	if s.AverageDailyUsage != 1.25 {
		t.Errorf("average daily usage: got %v, want 1.25", s.AverageDailyUsage)
	}
	if len(s.Anomalies) != 1 {
		t.Fatalf("expected one anomaly, got %+v", s.Anomalies)
	}
	a := s.Anomalies[0]
	if a.Date != "2025-01-03" || a.Previous != 102.5 || a.Current != 101.0 || a.Delta != -1.5 {
		t.Errorf("unexpected anomaly: %+v", a)
	}
}

func TestComputeStatistics_Projection(t *testing.T) {
	tariff := DefaultTariff()
	readings := []meter.Reading{
		reading(100.0, date(2025, 1, 1), "08:00"),
		reading(102.5, date(2025, 1, 2), "08:00"),
		reading(101.0, date(2025, 1, 3), "08:00"),
	}
	s := ComputeStatistics(readings, tariff, january())

	if s.DaysInPeriod != 31 {
		t.Fatalf("days in period: got %d, want 31", s.DaysInPeriod)
	}
	if s.ProjectedUsage != 38.75 {
		t.Fatalf("projected usage: got %v, want 38.75", s.ProjectedUsage)
	}
	if s.Projected != TieredCost(38.75, tariff) {
		t.Errorf("projected cost: got %+v, want %+v", s.Projected, TieredCost(38.75, tariff))
	}
	if s.Current != TieredCost(2.5, tariff) {
		t.Errorf("current cost: got %+v, want %+v", s.Current, TieredCost(2.5, tariff))
	}
}

func TestComputeStatistics_FewerThanTwoReadings(t *testing.T) {
	custom := DefaultTariff()
	custom.WaterBasic = 500

	for _, readings := range [][]meter.Reading{
		nil,
		{reading(100, date(2025, 1, 2), "08:00")},
	} {
		for _, tariff := range []Tariff{DefaultTariff(), custom} {
			s := ComputeStatistics(readings, tariff, january())
			if s.TotalUsage != 0 || s.AverageDailyUsage != 0 || s.ProjectedUsage != 0 {
				t.Errorf("expected zero usage, got %+v", s)
			}
			if s.Current != (Cost{}) || s.Projected != (Cost{}) {
				t.Errorf("expected zero costs, got current=%+v projected=%+v", s.Current, s.Projected)
			}
			if s.DailyUsage == nil || len(s.DailyUsage) != 0 {
				t.Errorf("expected empty daily usage, got %#v", s.DailyUsage)
			}
			if s.ReadingCount != len(readings) {
				t.Errorf("reading count: got %d, want %d", s.ReadingCount, len(readings))
			}
		}
	}
}

func TestComputeStatistics_OrdersByDateThenTime(t *testing.T) {
	readings := []meter.Reading{
		reading(105, date(2025, 1, 2), "18:00"),
		reading(100, date(2025, 1, 1), "08:00"),
		reading(103, date(2025, 1, 2), "07:30"),
	}
	s := ComputeStatistics(readings, DefaultTariff(), january())

	if len(s.Anomalies) != 0 {
		t.Fatalf("sorted readings should not produce anomalies: %+v", s.Anomalies)
	}
	if s.DailyUsage[0].Usage != 3 || s.DailyUsage[1].Usage != 2 {
		t.Fatalf("unexpected daily usage: %+v", s.DailyUsage)
	}
	if s.TotalUsage != 5 {
		t.Fatalf("total usage: got %v, want 5", s.TotalUsage)
	}
	if readings[0].Value != 105 {
		t.Fatalf("input slice was reordered")
	}
}

func TestComputeStatistics_Report(t *testing.T) {
	readings := []meter.Reading{
		reading(128.7309, date(2025, 1, 1), "08:00"),
		reading(129.2, date(2025, 1, 2), "08:00"),
	}
	r := NewReport(ComputeStatistics(readings, DefaultTariff(), january()))

	if r.Period.Start != "2025-01-01" || r.Period.End != "2025-01-31" {
		t.Fatalf("unexpected period: %+v", r.Period)
	}
	if r.TotalUsage != "0.4691" {
		t.Errorf("total usage: got %q, want 0.4691", r.TotalUsage)
	}
	if r.CostBreakdown.Current.WaterBasic != "91.79" {
		t.Errorf("water basic: got %q", r.CostBreakdown.Current.WaterBasic)
	}
	if r.CurrentCost != r.CostBreakdown.Current.Total {
		t.Errorf("current cost %q does not match breakdown total %q", r.CurrentCost, r.CostBreakdown.Current.Total)
	}
	if len(r.DailyUsage) != 1 || r.DailyUsage[0].Date != "2025-01-02" || r.DailyUsage[0].Usage != "0.4691" {
		t.Errorf("unexpected daily usage: %+v", r.DailyUsage)
	}
}
