package billing

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolvePeriod(t *testing.T) {
	tests := []struct {
		name      string
		today     time.Time
		startDay  int
		endDay    int
		policy    DayOverflow
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "calendar month",
			today:     date(2025, 1, 15),
			startDay:  1,
			endDay:    31,
			policy:    OverflowRoll,
			wantStart: date(2025, 1, 1),
			wantEnd:   date(2025, 1, 31),
		},
		{
			name:      "before start day spans previous month",
			today:     date(2025, 1, 5),
			startDay:  20,
			endDay:    19,
			policy:    OverflowRoll,
			wantStart: date(2024, 12, 20),
			wantEnd:   date(2025, 1, 19),
		},
		{
			name:      "after start day rolls into next month",
			today:     date(2025, 1, 25),
			startDay:  20,
			endDay:    19,
			policy:    OverflowRoll,
			wantStart: date(2025, 1, 20),
			wantEnd:   date(2025, 2, 19),
		},
		{
			name:      "on start day",
			today:     date(2025, 3, 20),
			startDay:  20,
			endDay:    19,
			policy:    OverflowRoll,
			wantStart: date(2025, 3, 20),
			wantEnd:   date(2025, 4, 19),
		},
		{
			name:      "december rolls into next year",
			today:     date(2024, 12, 25),
			startDay:  20,
			endDay:    5,
			policy:    OverflowRoll,
			wantStart: date(2024, 12, 20),
			wantEnd:   date(2025, 1, 5),
		},
		{
			name:      "day 31 in a 30 day month rolls over",
			today:     date(2025, 4, 10),
			startDay:  1,
			endDay:    31,
			policy:    OverflowRoll,
			wantStart: date(2025, 4, 1),
			wantEnd:   date(2025, 5, 1),
		},
		{
			name:      "day 31 in a 30 day month clamps",
			today:     date(2025, 4, 10),
			startDay:  1,
			endDay:    31,
			policy:    OverflowClamp,
			wantStart: date(2025, 4, 1),
			wantEnd:   date(2025, 4, 30),
		},
		{
			name:      "february end day rolls over",
			today:     date(2025, 2, 10),
			startDay:  31,
			endDay:    30,
			policy:    OverflowRoll,
			wantStart: date(2025, 1, 31),
			wantEnd:   date(2025, 3, 2),
		},
		{
			name:      "february end day clamps",
			today:     date(2025, 2, 10),
			startDay:  31,
			endDay:    30,
			policy:    OverflowClamp,
			wantStart: date(2025, 1, 31),
			wantEnd:   date(2025, 2, 28),
		},
		{
			name:      "leap year february clamps to 29",
			today:     date(2024, 2, 10),
			startDay:  31,
			endDay:    30,
			policy:    OverflowClamp,
			wantStart: date(2024, 1, 31),
			wantEnd:   date(2024, 2, 29),
		},
		{
			name:      "time of day is ignored",
			today:     time.Date(2025, 1, 15, 23, 59, 0, 0, time.UTC),
			startDay:  1,
			endDay:    31,
			policy:    OverflowRoll,
			wantStart: date(2025, 1, 1),
			wantEnd:   date(2025, 1, 31),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePeriod(tt.today, tt.startDay, tt.endDay, tt.policy)
			if err != nil {
				t.Fatalf("ResolvePeriod returned error: %v", err)
			}
			if !got.Start.Equal(tt.wantStart) || !got.End.Equal(tt.wantEnd) {
				t.Fatalf("got %s, want %s..%s", got, tt.wantStart.Format(DateLayout), tt.wantEnd.Format(DateLayout))
			}
		})
	}
}

func TestResolvePeriod_InvalidDays(t *testing.T) {
	cases := [][2]int{{0, 31}, {1, 32}, {-1, 10}, {40, 0}}
	for _, c := range cases {
		_, err := ResolvePeriod(date(2025, 1, 15), c[0], c[1], OverflowRoll)
		if !errors.Is(err, ErrInvalidBillingDay) {
			t.Errorf("start=%d end=%d: expected ErrInvalidBillingDay, got %v", c[0], c[1], err)
		}
		if !IsConfigError(err) {
			t.Errorf("start=%d end=%d: expected a configuration error", c[0], c[1])
		}
	}
}

func TestDateInMonth(t *testing.T) {
	if got := dateInMonth(2025, time.April, 31, OverflowRoll); !got.Equal(date(2025, 5, 1)) {
		t.Errorf("roll: got %s", got.Format(DateLayout))
	}
	if got := dateInMonth(2025, time.April, 31, OverflowClamp); !got.Equal(date(2025, 4, 30)) {
		t.Errorf("clamp: got %s", got.Format(DateLayout))
	}
	if got := dateInMonth(2025, 0, 15, OverflowRoll); !got.Equal(date(2024, 12, 15)) {
		t.Errorf("month 0: got %s", got.Format(DateLayout))
	}
	if got := dateInMonth(2025, 13, 15, OverflowClamp); !got.Equal(date(2026, 1, 15)) {
		t.Errorf("month 13: got %s", got.Format(DateLayout))
	}
}

func TestPeriodDays(t *testing.T) {
	p := Period{Start: date(2025, 1, 1), End: date(2025, 1, 31)}
	if p.Days() != 31 {
		t.Fatalf("expected 31 days, got %d", p.Days())
	}
	p = Period{Start: date(2024, 12, 20), End: date(2025, 1, 19)}
	if p.Days() != 31 {
		t.Fatalf("expected 31 days, got %d", p.Days())
	}
	p = Period{Start: date(2025, 3, 1), End: date(2025, 3, 1)}
	if p.Days() != 1 {
		t.Fatalf("expected 1 day, got %d", p.Days())
	}
}

func TestPeriodContains(t *testing.T) {
	p := Period{Start: date(2025, 1, 1), End: date(2025, 1, 31)}
	if !p.Contains(time.Date(2025, 1, 31, 22, 0, 0, 0, time.UTC)) {
		t.Errorf("expected last day to be contained")
	}
	if p.Contains(date(2025, 2, 1)) {
		t.Errorf("did not expect Feb 1 to be contained")
	}
}

func TestParseDayOverflow(t *testing.T) {
	for in, want := range map[string]DayOverflow{"": OverflowRoll, "roll": OverflowRoll, " Clamp ": OverflowClamp} {
		got, err := ParseDayOverflow(in)
		if err != nil || got != want {
			t.Errorf("ParseDayOverflow(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseDayOverflow("truncate"); err == nil {
		t.Errorf("expected error for unknown policy")
	}
}
