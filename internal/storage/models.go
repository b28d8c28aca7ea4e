package storage

import (
	"time"

	"github.com/bher20/meterledger/internal/meter"
)

// Owner is the account readings and settings belong to. Identity and
// credentials live upstream; only the id is kept here.
type Owner struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

// Reading is the persisted form of a meter reading. Date is kept as an ISO
// string so range filters and ordering behave the same on every backend.
type Reading struct {
	ID         string    `json:"id" gorm:"primaryKey;column:id"`
	OwnerID    string    `json:"owner_id" gorm:"column:owner_id;index:idx_readings_owner_date"`
	Value      float64   `json:"value" gorm:"column:value"`
	Date       string    `json:"date" gorm:"column:reading_date;index:idx_readings_owner_date"`
	Time       string    `json:"time" gorm:"column:reading_time"`
	RecordedAt time.Time `json:"recorded_at" gorm:"column:recorded_at"`
}

// ReadingFromMeter converts a domain reading for storage.
func ReadingFromMeter(r meter.Reading) Reading {
	return Reading{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Value:      r.Value,
		Date:       r.Date.Format(meter.DateLayout),
		Time:       r.Time,
		RecordedAt: r.RecordedAt,
	}
}

// Meter converts the stored row back into a domain reading.
func (r Reading) Meter() (meter.Reading, error) {
	d, err := meter.ParseDate(r.Date)
	if err != nil {
		return meter.Reading{}, err
	}
	return meter.Reading{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Value:      r.Value,
		Date:       d,
		Time:       r.Time,
		RecordedAt: r.RecordedAt,
	}, nil
}

// Setting is one owner-scoped tariff setting.
type Setting struct {
	OwnerID   string    `gorm:"primaryKey;column:owner_id"`
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// StatsSnapshot stores a previously computed statistics report for an owner.
type StatsSnapshot struct {
	ID          uint      `json:"-" gorm:"primaryKey;column:id"`
	OwnerID     string    `json:"owner_id" gorm:"column:owner_id;index"`
	PeriodStart string    `json:"period_start" gorm:"column:period_start"`
	PeriodEnd   string    `json:"period_end" gorm:"column:period_end"`
	Payload     []byte    `json:"payload" gorm:"column:payload"`
	ComputedAt  time.Time `json:"computed_at" gorm:"column:computed_at"`
}

// PolicyRule represents a policy rule for RBAC.
type PolicyRule struct {
	ID    uint   `gorm:"primaryKey"`
	PType string `json:"ptype" gorm:"column:ptype"`
	V0    string `json:"v0" gorm:"column:v0"`
	V1    string `json:"v1" gorm:"column:v1"`
	V2    string `json:"v2" gorm:"column:v2"`
	V3    string `json:"v3" gorm:"column:v3"`
	V4    string `json:"v4" gorm:"column:v4"`
	V5    string `json:"v5" gorm:"column:v5"`
}

// ScheduledJob records the outcome of the last run of a background job.
type ScheduledJob struct {
	Name           string    `gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `gorm:"column:last_run_at"`
	LastDurationMs int64     `gorm:"column:last_duration_ms"`
	LastSuccess    int       `gorm:"column:last_success"`
	LastError      string    `gorm:"column:last_error"`
}
