package billing

import (
	"fmt"
	"strings"
	"time"
)

// DayOverflow controls what happens when a billing day does not exist in a
// month (for example day 31 in April).
type DayOverflow string

const (
	// OverflowRoll lets the extra days spill into the following month, so
	// April 31 becomes May 1.
	OverflowRoll DayOverflow = "roll"
	// OverflowClamp pins the day to the last day of the month, so April 31
	// becomes April 30.
	OverflowClamp DayOverflow = "clamp"
)

// ParseDayOverflow maps a config value to a policy. Empty means OverflowRoll.
func ParseDayOverflow(s string) (DayOverflow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(OverflowRoll):
		return OverflowRoll, nil
	case string(OverflowClamp):
		return OverflowClamp, nil
	default:
		return "", fmt.Errorf("unknown day overflow policy %q (use roll or clamp)", s)
	}
}

// Period is an inclusive range of calendar dates. Both ends are midnight UTC.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the inclusive number of days in the period.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// Contains reports whether the calendar date of t falls within the period.
func (p Period) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p Period) String() string {
	return p.Start.Format(DateLayout) + ".." + p.End.Format(DateLayout)
}

// DateLayout is the ISO calendar date layout used on every boundary.
const DateLayout = "2006-01-02"

// DateOf truncates t to its calendar date at midnight UTC, keeping the
// year/month/day as seen in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ResolvePeriod returns the billing cycle that is active on today for a cycle
// running from startDay to endDay.
//
// When today's day is on or after startDay the cycle began this month and
// ends either later this month or, when endDay < startDay, in the next month.
// Otherwise the cycle began in the previous month and ends this month.
func ResolvePeriod(today time.Time, startDay, endDay int, policy DayOverflow) (Period, error) {
	if err := validateBillingDay("billing_start_day", startDay); err != nil {
		return Period{}, err
	}
	if err := validateBillingDay("billing_end_day", endDay); err != nil {
		return Period{}, err
	}

	year, month, day := today.Date()

	if day >= startDay {
		start := dateInMonth(year, month, startDay, policy)
		if endDay < startDay {
			return Period{Start: start, End: dateInMonth(year, month+1, endDay, policy)}, nil
		}
		return Period{Start: start, End: dateInMonth(year, month, endDay, policy)}, nil
	}

	return Period{
		Start: dateInMonth(year, month-1, startDay, policy),
		End:   dateInMonth(year, month, endDay, policy),
	}, nil
}

// dateInMonth builds the date (year, month, day). month may be 0 or 13;
// time.Date normalizes it to the neighbouring year. A day beyond the end of
// the month rolls into the next month or is clamped, depending on policy.
func dateInMonth(year int, month time.Month, day int, policy DayOverflow) time.Time {
	if policy == OverflowClamp {
		if last := daysIn(year, month); day > last {
			day = last
		}
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// daysIn returns the number of days in month. Day 0 of the next month is the
// last day of this one.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func validateBillingDay(key string, day int) error {
	if day < 1 || day > 31 {
		return fmt.Errorf("%w: %s=%d must be between 1 and 31", ErrInvalidBillingDay, key, day)
	}
	return nil
}
