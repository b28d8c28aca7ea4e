// Package usage ties storage to the billing engine for a single owner: it
// records readings, keeps tariff settings valid and computes statistics for
// the billing period that is active on a given day.
package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bher20/meterledger/internal/billing"
	"github.com/bher20/meterledger/internal/meter"
	"github.com/bher20/meterledger/internal/metrics"
	"github.com/bher20/meterledger/internal/storage"
)

var (
	// ErrReadingNotFound is returned when deleting a reading the owner does not have.
	ErrReadingNotFound = errors.New("reading not found")
	// ErrInvalidInput wraps every validation failure on caller-provided data.
	ErrInvalidInput = errors.New("invalid input")
)

// Config controls how the usage service resolves billing periods.
type Config struct {
	Overflow billing.DayOverflow
}

// Service coordinates readings, settings and statistics for owners.
type Service struct {
	cfg   Config
	store storage.Storage
	now   func() time.Time
}

// NewService returns a Service backed by st.
func NewService(cfg Config, st storage.Storage) *Service {
	if cfg.Overflow == "" {
		cfg.Overflow = billing.OverflowRoll
	}
	return &Service{cfg: cfg, store: st, now: time.Now}
}

// Today returns the current calendar date in UTC.
func (s *Service) Today() time.Time {
	return billing.DateOf(s.now().UTC())
}

// NewReading is the caller-facing input for AddReading. Exactly one of Value
// (kL) or Raw (meter display digits) must be set.
type NewReading struct {
	Value *float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Raw   *int64   `json:"raw,omitempty" yaml:"raw,omitempty"`
	Date  string   `json:"date" yaml:"date"`
	Time  string   `json:"time" yaml:"time"`
}

// Reading converts the input into a validated meter reading without an id.
func (n NewReading) Reading() (meter.Reading, error) {
	var value float64
	switch {
	case n.Value != nil && n.Raw != nil:
		return meter.Reading{}, fmt.Errorf("%w: set either value or raw, not both", ErrInvalidInput)
	case n.Value != nil:
		value = *n.Value
	case n.Raw != nil:
		v, err := meter.FromRaw(*n.Raw)
		if err != nil {
			return meter.Reading{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		value = v
	default:
		return meter.Reading{}, fmt.Errorf("%w: value or raw is required", ErrInvalidInput)
	}

	d, err := meter.ParseDate(n.Date)
	if err != nil {
		return meter.Reading{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	tod, err := meter.ParseTime(n.Time)
	if err != nil {
		return meter.Reading{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	r := meter.Reading{Value: value, Date: d, Time: tod}
	if err := r.Validate(); err != nil {
		return meter.Reading{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return r, nil
}

// AddReading validates and stores a new reading for owner.
func (s *Service) AddReading(ctx context.Context, owner string, in NewReading) (meter.Reading, error) {
	r, err := in.Reading()
	if err != nil {
		return meter.Reading{}, err
	}
	if err := s.store.EnsureOwner(ctx, owner); err != nil {
		return meter.Reading{}, fmt.Errorf("register owner: %w", err)
	}
	r.ID = uuid.NewString()
	r.OwnerID = owner
	r.RecordedAt = s.now().UTC()
	if err := s.store.CreateReading(ctx, storage.ReadingFromMeter(r)); err != nil {
		return meter.Reading{}, fmt.Errorf("store reading: %w", err)
	}
	return r, nil
}

// ListReadings returns the owner's readings dated within [start, end], ordered
// by date then time of day.
func (s *Service) ListReadings(ctx context.Context, owner string, start, end time.Time) ([]meter.Reading, error) {
	rows, err := s.store.ListReadings(ctx, owner, start, end)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	out := make([]meter.Reading, 0, len(rows))
	for _, row := range rows {
		r, err := row.Meter()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", row.ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// DeleteReading removes one of the owner's readings.
func (s *Service) DeleteReading(ctx context.Context, owner, id string) error {
	ok, err := s.store.DeleteReading(ctx, owner, id)
	if err != nil {
		return fmt.Errorf("delete reading: %w", err)
	}
	if !ok {
		return ErrReadingNotFound
	}
	return nil
}

// DeleteOwner removes the owner and everything stored for it.
func (s *Service) DeleteOwner(ctx context.Context, owner string) error {
	if err := s.store.DeleteOwner(ctx, owner); err != nil {
		return fmt.Errorf("delete owner: %w", err)
	}
	return nil
}

// Owners lists every owner that has written data.
func (s *Service) Owners(ctx context.Context) ([]string, error) {
	owners, err := s.store.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	ids := make([]string, 0, len(owners))
	for _, o := range owners {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// Settings returns the owner's effective settings: stored values layered over
// the defaults. Unknown stored keys are dropped.
func (s *Service) Settings(ctx context.Context, owner string) (map[string]string, error) {
	stored, err := s.store.GetSettings(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	out := billing.DefaultSettings()
	for k, v := range stored {
		if billing.IsSettingKey(k) && strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	// Absent keys report the value billing uses, which for the unbounded
	// tiers may be inherited from the tier below.
	if t, err := billing.ParseTariff(stored); err == nil {
		parsed := t.Settings()
		for k, v := range parsed {
			if raw, ok := stored[k]; !ok || strings.TrimSpace(raw) == "" {
				out[k] = v
			}
		}
	}
	return out, nil
}

// Tariff parses the owner's stored settings.
func (s *Service) Tariff(ctx context.Context, owner string) (billing.Tariff, error) {
	stored, err := s.store.GetSettings(ctx, owner)
	if err != nil {
		return billing.Tariff{}, fmt.Errorf("load settings: %w", err)
	}
	return billing.ParseTariff(stored)
}

// UpdateSettings merges values into the owner's stored settings. The merged
// result must parse as a tariff; nothing is written otherwise. Blank values
// reset a key to its default.
func (s *Service) UpdateSettings(ctx context.Context, owner string, values map[string]string) (map[string]string, error) {
	for k := range values {
		if !billing.IsSettingKey(k) {
			return nil, fmt.Errorf("%w: unknown setting %q", ErrInvalidInput, k)
		}
	}
	stored, err := s.store.GetSettings(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	merged := make(map[string]string, len(stored)+len(values))
	for k, v := range stored {
		merged[k] = v
	}
	clean := make(map[string]string, len(values))
	for k, v := range values {
		v = strings.TrimSpace(v)
		merged[k] = v
		clean[k] = v
	}
	if _, err := billing.ParseTariff(merged); err != nil {
		return nil, err
	}

	if err := s.store.EnsureOwner(ctx, owner); err != nil {
		return nil, fmt.Errorf("register owner: %w", err)
	}
	if err := s.store.SetSettings(ctx, owner, clean); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return s.Settings(ctx, owner)
}

// Period resolves the owner's billing period active on day.
func (s *Service) Period(ctx context.Context, owner string, day time.Time) (billing.Period, error) {
	t, err := s.Tariff(ctx, owner)
	if err != nil {
		return billing.Period{}, err
	}
	return billing.ResolvePeriod(day, t.StartDay, t.EndDay, s.cfg.Overflow)
}

// Statistics computes usage and cost statistics for the billing period that
// is active on day.
func (s *Service) Statistics(ctx context.Context, owner string, day time.Time) (billing.Statistics, error) {
	return s.statistics(ctx, owner, day, "api")
}

func (s *Service) statistics(ctx context.Context, owner string, day time.Time, source string) (billing.Statistics, error) {
	t, err := s.Tariff(ctx, owner)
	if err != nil {
		return billing.Statistics{}, err
	}
	p, err := billing.ResolvePeriod(day, t.StartDay, t.EndDay, s.cfg.Overflow)
	if err != nil {
		return billing.Statistics{}, err
	}
	readings, err := s.ListReadings(ctx, owner, p.Start, p.End)
	if err != nil {
		return billing.Statistics{}, err
	}

	stats := billing.ComputeStatistics(readings, t, p)
	metrics.RecordStatistics(source, len(stats.Anomalies))
	for _, a := range stats.Anomalies {
		log.Printf("usage: reading decreased owner=%s date=%s previous=%.4f current=%.4f", owner, a.Date, a.Previous, a.Current)
	}
	return stats, nil
}

// Snapshot computes statistics for day and stores the rendered report as the
// owner's latest snapshot.
func (s *Service) Snapshot(ctx context.Context, owner string, day time.Time) (billing.Statistics, billing.Report, error) {
	stats, err := s.statistics(ctx, owner, day, "worker")
	if err != nil {
		return billing.Statistics{}, billing.Report{}, err
	}
	report := billing.NewReport(stats)
	payload, err := json.Marshal(report)
	if err != nil {
		return billing.Statistics{}, billing.Report{}, fmt.Errorf("encode report: %w", err)
	}
	err = s.store.SaveStatsSnapshot(ctx, storage.StatsSnapshot{
		OwnerID:     owner,
		PeriodStart: report.Period.Start,
		PeriodEnd:   report.Period.End,
		Payload:     payload,
		ComputedAt:  s.now().UTC(),
	})
	if err != nil {
		return billing.Statistics{}, billing.Report{}, fmt.Errorf("save snapshot: %w", err)
	}
	return stats, report, nil
}

// LatestSnapshot returns the owner's most recent stored report, or nil.
func (s *Service) LatestSnapshot(ctx context.Context, owner string) (*storage.StatsSnapshot, error) {
	snap, err := s.store.GetLatestStatsSnapshot(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}
