package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/bher20/meterledger/internal/meter"
)

// GormStorage implements Storage on top of GORM for sqlite and postgres.
type GormStorage struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[int64]*sql.Conn
}

func NewGormStorage(driver, dsn string) (*GormStorage, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		if dsn == "" {
			dsn = DefaultSQLiteDSN
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	return &GormStorage{db: db, locks: make(map[int64]*sql.Conn)}, nil
}

// Migrate creates or updates every table the storage needs.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&Owner{},
		&Reading{},
		&Setting{},
		&StatsSnapshot{},
		&PolicyRule{},
		&ScheduledJob{},
	)
}

// Owners

func (s *GormStorage) EnsureOwner(ctx context.Context, id string) error {
	owner := Owner{ID: id, CreatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&owner).Error
}

func (s *GormStorage) ListOwners(ctx context.Context) ([]Owner, error) {
	var owners []Owner
	result := s.db.WithContext(ctx).Order("id").Find(&owners)
	return owners, result.Error
}

func (s *GormStorage) DeleteOwner(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&Reading{}, &Setting{}, &StatsSnapshot{}} {
			if err := tx.Where("owner_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&Owner{}, "id = ?", id).Error
	})
}

// Readings

func (s *GormStorage) CreateReading(ctx context.Context, r Reading) error {
	return s.db.WithContext(ctx).Create(&r).Error
}

func (s *GormStorage) GetReading(ctx context.Context, ownerID, id string) (*Reading, error) {
	var r Reading
	result := s.db.WithContext(ctx).First(&r, "owner_id = ? AND id = ?", ownerID, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &r, nil
}

func (s *GormStorage) ListReadings(ctx context.Context, ownerID string, start, end time.Time) ([]Reading, error) {
	readings := []Reading{}
	result := s.db.WithContext(ctx).
		Where("owner_id = ? AND reading_date >= ? AND reading_date <= ?", ownerID,
			start.Format(meter.DateLayout), end.Format(meter.DateLayout)).
		Order("reading_date, reading_time, recorded_at, id").
		Find(&readings)
	return readings, result.Error
}

func (s *GormStorage) DeleteReading(ctx context.Context, ownerID, id string) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&Reading{}, "owner_id = ? AND id = ?", ownerID, id)
	return result.RowsAffected > 0, result.Error
}

// Settings

func (s *GormStorage) GetSettings(ctx context.Context, ownerID string) (map[string]string, error) {
	var rows []Setting
	if err := s.db.WithContext(ctx).Find(&rows, "owner_id = ?", ownerID).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

func (s *GormStorage) SetSettings(ctx context.Context, ownerID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]Setting, 0, len(values))
	for k, v := range values {
		rows = append(rows, Setting{OwnerID: ownerID, Key: k, Value: v, UpdatedAt: now})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
}

// Statistics snapshots

func (s *GormStorage) GetLatestStatsSnapshot(ctx context.Context, ownerID string) (*StatsSnapshot, error) {
	var snap StatsSnapshot
	result := s.db.WithContext(ctx).Order("computed_at desc, id desc").First(&snap, "owner_id = ?", ownerID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &snap, nil
}

func (s *GormStorage) SaveStatsSnapshot(ctx context.Context, snap StatsSnapshot) error {
	if snap.ComputedAt.IsZero() {
		snap.ComputedAt = time.Now().UTC()
	}
	snap.ID = 0
	return s.db.WithContext(ctx).Create(&snap).Error
}

// Policy rules

func (s *GormStorage) LoadPolicyRules(ctx context.Context) ([]PolicyRule, error) {
	var rules []PolicyRule
	result := s.db.WithContext(ctx).Order("id").Find(&rules)
	return rules, result.Error
}

func (s *GormStorage) AddPolicyRule(ctx context.Context, rule PolicyRule) error {
	rule.ID = 0
	return s.db.WithContext(ctx).Create(&rule).Error
}

func (s *GormStorage) RemovePolicyRule(ctx context.Context, rule PolicyRule) error {
	return s.db.WithContext(ctx).
		Where("ptype = ? AND v0 = ? AND v1 = ? AND v2 = ? AND v3 = ? AND v4 = ? AND v5 = ?",
			rule.PType, rule.V0, rule.V1, rule.V2, rule.V3, rule.V4, rule.V5).
		Delete(&PolicyRule{}).Error
}

// Close & Ping

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// PoolStats reports database/sql pool counters. Acquires counts waits for a
// connection since database/sql does not expose a total acquire count.
func (s *GormStorage) PoolStats() PoolStats {
	sqlDB, err := s.db.DB()
	if err != nil {
		return PoolStats{}
	}
	st := sqlDB.Stats()
	return PoolStats{
		Total:    st.OpenConnections,
		Idle:     st.Idle,
		Acquired: st.InUse,
		Acquires: st.WaitCount,
	}
}

// Scheduled Jobs & Locking

// AcquireAdvisoryLock takes a postgres session lock on a dedicated connection
// that stays checked out until ReleaseAdvisoryLock.
func (s *GormStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if s.db.Dialector.Name() != "postgres" {
		// For SQLite, no advisory locks, assume always successful (single instance)
		return true, nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return false, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil || !ok {
		conn.Close()
		return false, err
	}
	s.mu.Lock()
	s.locks[key] = conn
	s.mu.Unlock()
	return true, nil
}

func (s *GormStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if s.db.Dialector.Name() != "postgres" {
		return true, nil
	}
	s.mu.Lock()
	conn, held := s.locks[key]
	delete(s.locks, key)
	s.mu.Unlock()
	if !held {
		return false, nil
	}
	defer conn.Close()
	var ok bool
	err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
	return ok, err
}

func (s *GormStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	job := newScheduledJob(name, started, dur, success, errMsg)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&job).Error
}

func (s *GormStorage) GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error) {
	var job ScheduledJob
	result := s.db.WithContext(ctx).First(&job, "name = ?", name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &job, nil
}
