// Package meter holds the meter reading model and the conversions applied to
// values as they come off the meter display.
package meter

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

var (
	ErrNegativeValue = errors.New("meter value must not be negative")
	ErrInvalidTime   = errors.New("invalid time of day")
	ErrInvalidDate   = errors.New("invalid date")
)

const (
	// DateLayout is the ISO calendar date format readings are exchanged in.
	DateLayout = "2006-01-02"
	// TimeLayout is the time-of-day format readings are exchanged in.
	TimeLayout = "15:04"
)

// Reading is one observation of an owner's cumulative meter volume.
type Reading struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Value      float64   `json:"value"` // kL
	Date       time.Time `json:"date"`  // midnight UTC
	Time       string    `json:"time"`  // HH:MM
	RecordedAt time.Time `json:"recorded_at"`
}

// The display shows litres with one extra decimal digit, so a display of
// 1287309 reads 128730.9 L, or 128.7309 kL.
const (
	displayDecimals = 10
	litresPerKL     = 1000
)

// FromRaw converts a raw meter display value into kilolitres.
func FromRaw(raw int64) (float64, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: raw display %d", ErrNegativeValue, raw)
	}
	return float64(raw) / displayDecimals / litresPerKL, nil
}

// ParseDate parses an ISO calendar date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// ParseTime validates a time of day and returns it normalized to HH:MM.
// Seconds, when given, are dropped.
func ParseTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{TimeLayout, "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(TimeLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// Validate checks the fields a caller is responsible for.
func (r Reading) Validate() error {
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("meter value %v is not a number", r.Value)
	}
	if r.Value < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeValue, r.Value)
	}
	if r.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidDate)
	}
	if _, err := ParseTime(r.Time); err != nil {
		return err
	}
	return nil
}

// Before orders readings by date, then time of day.
func (r Reading) Before(o Reading) bool {
	if !r.Date.Equal(o.Date) {
		return r.Date.Before(o.Date)
	}
	return r.Time < o.Time
}

// Sort orders readings ascending by date then time of day. Readings taken at
// the same instant keep their relative order.
func Sort(readings []Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Before(readings[j])
	})
}
