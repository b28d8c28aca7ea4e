package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bher20/meterledger/internal/meter"
)

// PostgresPoolStorage implements Storage with hand-written SQL over a pgx
// connection pool. The schema is owned by the goose migrations.
type PostgresPoolStorage struct {
	pool *pgxpool.Pool

	// Session-level advisory locks belong to one connection, so it is held
	// until the lock is released.
	mu    sync.Mutex
	locks map[int64]*pgxpool.Conn
}

func OpenPostgresPool(ctx context.Context, dsn string) (*PostgresPoolStorage, error) {
	if dsn == "" {
		dsn = DefaultPostgresDSN
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &PostgresPoolStorage{pool: pool, locks: make(map[int64]*pgxpool.Conn)}, nil
}

func (s *PostgresPoolStorage) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresPoolStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Owners

func (s *PostgresPoolStorage) EnsureOwner(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO owners (id, created_at) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, id, time.Now().UTC())
	return err
}

func (s *PostgresPoolStorage) ListOwners(ctx context.Context) ([]Owner, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, created_at FROM owners ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Owner
	for rows.Next() {
		var o Owner
		if err := rows.Scan(&o.ID, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) DeleteOwner(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM readings WHERE owner_id=$1`,
			`DELETE FROM settings WHERE owner_id=$1`,
			`DELETE FROM stats_snapshots WHERE owner_id=$1`,
			`DELETE FROM owners WHERE id=$1`,
		} {
			if _, err := tx.Exec(ctx, stmt, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Readings

func (s *PostgresPoolStorage) CreateReading(ctx context.Context, r Reading) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO readings (id, owner_id, value, reading_date, reading_time, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, r.ID, r.OwnerID, r.Value, r.Date, r.Time, r.RecordedAt)
	return err
}

func (s *PostgresPoolStorage) GetReading(ctx context.Context, ownerID, id string) (*Reading, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, value, reading_date, reading_time, recorded_at
		FROM readings WHERE owner_id=$1 AND id=$2
	`, ownerID, id)

	var r Reading
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Value, &r.Date, &r.Time, &r.RecordedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *PostgresPoolStorage) ListReadings(ctx context.Context, ownerID string, start, end time.Time) ([]Reading, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, value, reading_date, reading_time, recorded_at
		FROM readings
		WHERE owner_id=$1 AND reading_date >= $2 AND reading_date <= $3
		ORDER BY reading_date, reading_time, recorded_at, id
	`, ownerID, start.Format(meter.DateLayout), end.Format(meter.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Reading{}
	for rows.Next() {
		var r Reading
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Value, &r.Date, &r.Time, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) DeleteReading(ctx context.Context, ownerID, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM readings WHERE owner_id=$1 AND id=$2`, ownerID, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Settings

func (s *PostgresPoolStorage) GetSettings(ctx context.Context, ownerID string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM settings WHERE owner_id=$1`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) SetSettings(ctx context.Context, ownerID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for k, v := range values {
		batch.Queue(`
			INSERT INTO settings (owner_id, key, value, updated_at)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (owner_id, key) DO UPDATE SET
				value=EXCLUDED.value,
				updated_at=EXCLUDED.updated_at
		`, ownerID, k, v, now)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

// Statistics snapshots

func (s *PostgresPoolStorage) GetLatestStatsSnapshot(ctx context.Context, ownerID string) (*StatsSnapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, period_start, period_end, payload, computed_at
		FROM stats_snapshots
		WHERE owner_id=$1
		ORDER BY computed_at DESC, id DESC
		LIMIT 1
	`, ownerID)

	var snap StatsSnapshot
	var id int64
	if err := row.Scan(&id, &snap.OwnerID, &snap.PeriodStart, &snap.PeriodEnd, &snap.Payload, &snap.ComputedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	snap.ID = uint(id)
	return &snap, nil
}

func (s *PostgresPoolStorage) SaveStatsSnapshot(ctx context.Context, snap StatsSnapshot) error {
	if snap.ComputedAt.IsZero() {
		snap.ComputedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stats_snapshots (owner_id, period_start, period_end, payload, computed_at)
		VALUES ($1,$2,$3,$4,$5)
	`, snap.OwnerID, snap.PeriodStart, snap.PeriodEnd, snap.Payload, snap.ComputedAt)
	return err
}

// Policy rules

func (s *PostgresPoolStorage) LoadPolicyRules(ctx context.Context) ([]PolicyRule, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, ptype, v0, v1, v2, v3, v4, v5 FROM policy_rules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PolicyRule
	for rows.Next() {
		var r PolicyRule
		var id int64
		if err := rows.Scan(&id, &r.PType, &r.V0, &r.V1, &r.V2, &r.V3, &r.V4, &r.V5); err != nil {
			return nil, err
		}
		r.ID = uint(id)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) AddPolicyRule(ctx context.Context, r PolicyRule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO policy_rules (ptype, v0, v1, v2, v3, v4, v5)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, r.PType, r.V0, r.V1, r.V2, r.V3, r.V4, r.V5)
	return err
}

func (s *PostgresPoolStorage) RemovePolicyRule(ctx context.Context, r PolicyRule) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM policy_rules
		WHERE ptype=$1 AND v0=$2 AND v1=$3 AND v2=$4 AND v3=$5 AND v4=$6 AND v5=$7
	`, r.PType, r.V0, r.V1, r.V2, r.V3, r.V4, r.V5)
	return err
}

// Scheduled jobs & locking

func (s *PostgresPoolStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil || !ok {
		conn.Release()
		return false, err
	}
	s.mu.Lock()
	s.locks[key] = conn
	s.mu.Unlock()
	return true, nil
}

func (s *PostgresPoolStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	s.mu.Lock()
	conn, held := s.locks[key]
	delete(s.locks, key)
	s.mu.Unlock()
	if !held {
		return false, nil
	}
	defer conn.Release()
	var ok bool
	err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&ok)
	return ok, err
}

func (s *PostgresPoolStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	job := newScheduledJob(name, started, dur, success, errMsg)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (name, last_run_at, last_duration_ms, last_success, last_error)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (name) DO UPDATE SET
			last_run_at=EXCLUDED.last_run_at,
			last_duration_ms=EXCLUDED.last_duration_ms,
			last_success=EXCLUDED.last_success,
			last_error=EXCLUDED.last_error
	`, job.Name, job.LastRunAt, job.LastDurationMs, job.LastSuccess, job.LastError)
	return err
}

func (s *PostgresPoolStorage) GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT name, last_run_at, last_duration_ms, last_success, last_error
		FROM scheduled_jobs WHERE name=$1
	`, name)
	var j ScheduledJob
	if err := row.Scan(&j.Name, &j.LastRunAt, &j.LastDurationMs, &j.LastSuccess, &j.LastError); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &j, nil
}

// PoolStats reports the pgx pool counters.
func (s *PostgresPoolStorage) PoolStats() PoolStats {
	st := s.pool.Stat()
	return PoolStats{
		Total:    int(st.TotalConns()),
		Idle:     int(st.IdleConns()),
		Acquired: int(st.AcquiredConns()),
		Acquires: st.AcquireCount(),
	}
}
