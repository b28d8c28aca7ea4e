package billing

import (
	"github.com/shopspring/decimal"
)

const (
	usagePlaces = 4
	costPlaces  = 2
)

// Report is the wire form of Statistics: ISO dates, usage to four decimal
// places and money to two, all as fixed-precision strings.
type Report struct {
	Period            PeriodReport    `json:"period"`
	DaysInPeriod      int             `json:"days_in_period"`
	DaysRecorded      int             `json:"days_recorded"`
	ReadingCount      int             `json:"reading_count"`
	TotalUsage        string          `json:"total_usage"`
	AverageDailyUsage string          `json:"average_daily_usage"`
	ProjectedUsage    string          `json:"projected_usage"`
	CurrentCost       string          `json:"current_cost"`
	ProjectedCost     string          `json:"projected_cost"`
	CostBreakdown     CostBreakdown   `json:"cost_breakdown"`
	DailyUsage        []DailyReport   `json:"daily_usage"`
	Anomalies         []AnomalyReport `json:"anomalies,omitempty"`
}

type PeriodReport struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type CostBreakdown struct {
	Current   CostReport `json:"current"`
	Projected CostReport `json:"projected"`
}

type CostReport struct {
	WaterBasic string `json:"water_basic"`
	WaterUsage string `json:"water_usage"`
	Sewage     string `json:"sewage"`
	Total      string `json:"total"`
}

type DailyReport struct {
	Date  string `json:"date"`
	Usage string `json:"usage"`
}

type AnomalyReport struct {
	Date     string `json:"date"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
	Delta    string `json:"delta"`
}

// NewReport rounds s for presentation. Rounding is half away from zero and
// happens only here.
func NewReport(s Statistics) Report {
	r := Report{
		Period:            NewPeriodReport(s.Period),
		DaysInPeriod:      s.DaysInPeriod,
		DaysRecorded:      s.DaysRecorded,
		ReadingCount:      s.ReadingCount,
		TotalUsage:        FormatUsage(s.TotalUsage),
		AverageDailyUsage: FormatUsage(s.AverageDailyUsage),
		ProjectedUsage:    FormatUsage(s.ProjectedUsage),
		CurrentCost:       FormatCost(s.Current.Total),
		ProjectedCost:     FormatCost(s.Projected.Total),
		CostBreakdown: CostBreakdown{
			Current:   newCostReport(s.Current),
			Projected: newCostReport(s.Projected),
		},
		DailyUsage: make([]DailyReport, 0, len(s.DailyUsage)),
	}
	for _, d := range s.DailyUsage {
		r.DailyUsage = append(r.DailyUsage, DailyReport{Date: d.Date, Usage: FormatUsage(d.Usage)})
	}
	for _, a := range s.Anomalies {
		r.Anomalies = append(r.Anomalies, AnomalyReport{
			Date:     a.Date,
			Previous: FormatUsage(a.Previous),
			Current:  FormatUsage(a.Current),
			Delta:    FormatUsage(a.Delta),
		})
	}
	return r
}

func NewPeriodReport(p Period) PeriodReport {
	return PeriodReport{
		Start: p.Start.Format(DateLayout),
		End:   p.End.Format(DateLayout),
	}
}

func newCostReport(c Cost) CostReport {
	return CostReport{
		WaterBasic: FormatCost(c.WaterBasic),
		WaterUsage: FormatCost(c.WaterUsage),
		Sewage:     FormatCost(c.Sewage),
		Total:      FormatCost(c.Total),
	}
}

// FormatUsage renders a kL figure with four decimal places.
func FormatUsage(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(usagePlaces)
}

// FormatCost renders a money figure with two decimal places.
func FormatCost(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(costPlaces)
}
