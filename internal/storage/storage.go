package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for owners, meter readings, tariff settings,
// statistics snapshots and authorization policy.
type Storage interface {
	// Owners
	EnsureOwner(ctx context.Context, id string) error
	ListOwners(ctx context.Context) ([]Owner, error)
	// DeleteOwner removes the owner together with every reading, setting and
	// snapshot that belongs to it.
	DeleteOwner(ctx context.Context, id string) error

	// Readings. ListReadings returns readings whose date falls in
	// [start, end] (inclusive calendar dates), ordered by date then time.
	CreateReading(ctx context.Context, r Reading) error
	GetReading(ctx context.Context, ownerID, id string) (*Reading, error)
	ListReadings(ctx context.Context, ownerID string, start, end time.Time) ([]Reading, error)
	DeleteReading(ctx context.Context, ownerID, id string) (bool, error)

	// Settings are stored as raw strings; parsing belongs to the caller.
	GetSettings(ctx context.Context, ownerID string) (map[string]string, error)
	SetSettings(ctx context.Context, ownerID string, values map[string]string) error

	// Statistics snapshots
	GetLatestStatsSnapshot(ctx context.Context, ownerID string) (*StatsSnapshot, error)
	SaveStatsSnapshot(ctx context.Context, snap StatsSnapshot) error

	// Authorization policy rules
	LoadPolicyRules(ctx context.Context) ([]PolicyRule, error)
	AddPolicyRule(ctx context.Context, rule PolicyRule) error
	RemovePolicyRule(ctx context.Context, rule PolicyRule) error

	// Scheduled jobs & locking
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error
	GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error)

	Ping(ctx context.Context) error
	// Close releases any resources (no-op for in-memory).
	Close() error
}

// PoolStats is a snapshot of a backend's connection pool.
type PoolStats struct {
	Total    int
	Idle     int
	Acquired int
	Acquires int64
}

// PoolReporter is implemented by backends that hold a connection pool.
type PoolReporter interface {
	PoolStats() PoolStats
}
