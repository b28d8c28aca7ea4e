package billing

import (
	"github.com/bher20/meterledger/internal/meter"
)

// DailyUsage is the usage attributed to the later reading of a consecutive pair.
type DailyUsage struct {
	Date  string  `json:"date"`
	Usage float64 `json:"usage"`
}

// Anomaly records a pair of readings where the meter went backwards. The
// day's usage was floored to zero.
type Anomaly struct {
	Date     string  `json:"date"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
	Delta    float64 `json:"delta"`
}

// Statistics summarises usage and cost over one billing period.
type Statistics struct {
	Period            Period       `json:"period"`
	DaysInPeriod      int          `json:"days_in_period"`
	DaysRecorded      int          `json:"days_recorded"`
	ReadingCount      int          `json:"reading_count"`
	TotalUsage        float64      `json:"total_usage"`
	AverageDailyUsage float64      `json:"average_daily_usage"`
	ProjectedUsage    float64      `json:"projected_usage"`
	Current           Cost         `json:"current"`
	Projected         Cost         `json:"projected"`
	DailyUsage        []DailyUsage `json:"daily_usage"`
	Anomalies         []Anomaly    `json:"anomalies,omitempty"`
}

// ComputeStatistics derives usage and cost for the readings of one period.
//
// With fewer than two readings there is nothing to difference, so every
// usage and cost figure is zero. Otherwise each consecutive pair contributes
// one usage entry dated on the later reading; a negative delta counts as zero
// usage and is reported in Anomalies. The projection extends the average
// entry usage over every day of the period.
func ComputeStatistics(readings []meter.Reading, t Tariff, p Period) Statistics {
	s := Statistics{
		Period:       p,
		DaysInPeriod: p.Days(),
		ReadingCount: len(readings),
		DailyUsage:   []DailyUsage{},
	}
	if len(readings) < 2 {
		return s
	}

	ordered := make([]meter.Reading, len(readings))
	copy(ordered, readings)
	meter.Sort(ordered)

	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		date := cur.Date.Format(DateLayout)
		delta := cur.Value - prev.Value
		if delta < 0 {
			s.Anomalies = append(s.Anomalies, Anomaly{
				Date:     date,
				Previous: prev.Value,
				Current:  cur.Value,
				Delta:    delta,
			})
		}
		usage := max(0, delta)
		s.DailyUsage = append(s.DailyUsage, DailyUsage{Date: date, Usage: usage})
		s.TotalUsage += usage
	}

	s.DaysRecorded = len(s.DailyUsage)
	if s.DaysRecorded > 0 {
		s.AverageDailyUsage = s.TotalUsage / float64(s.DaysRecorded)
	}
	s.Current = TieredCost(s.TotalUsage, t)
	s.ProjectedUsage = s.AverageDailyUsage * float64(s.DaysInPeriod)
	s.Projected = TieredCost(s.ProjectedUsage, t)
	return s
}
