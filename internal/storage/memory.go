package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bher20/meterledger/internal/meter"
)

// MemoryStorage is an in-memory Storage implementation, useful for tests and
// simple single-process deployments.
type MemoryStorage struct {
	mu       sync.RWMutex
	owners   map[string]Owner
	readings map[string]map[string]Reading // owner -> id -> reading
	settings map[string]map[string]string  // owner -> key -> value
	snaps    map[string][]StatsSnapshot
	rules    []PolicyRule
	jobs     map[string]ScheduledJob
	inserted map[string]uint64 // reading id -> insertion sequence
	nextRead uint64
	nextSnap uint
	nextRule uint
}

// NewMemory returns an empty MemoryStorage.
func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		owners:   make(map[string]Owner),
		readings: make(map[string]map[string]Reading),
		settings: make(map[string]map[string]string),
		snaps:    make(map[string][]StatsSnapshot),
		jobs:     make(map[string]ScheduledJob),
		inserted: make(map[string]uint64),
	}
}

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

// Owners

func (m *MemoryStorage) EnsureOwner(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owners[id]; !ok {
		m.owners[id] = Owner{ID: id, CreatedAt: time.Now().UTC()}
	}
	return nil
}

func (m *MemoryStorage) ListOwners(ctx context.Context) ([]Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Owner, 0, len(m.owners))
	for _, o := range m.owners {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStorage) DeleteOwner(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.owners, id)
	for rid := range m.readings[id] {
		delete(m.inserted, rid)
	}
	delete(m.readings, id)
	delete(m.settings, id)
	delete(m.snaps, id)
	return nil
}

// Readings

func (m *MemoryStorage) CreateReading(ctx context.Context, r Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.readings[r.OwnerID]
	if !ok {
		byID = make(map[string]Reading)
		m.readings[r.OwnerID] = byID
	}
	byID[r.ID] = r
	m.nextRead++
	m.inserted[r.ID] = m.nextRead
	return nil
}

func (m *MemoryStorage) GetReading(ctx context.Context, ownerID, id string) (*Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.readings[ownerID][id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *MemoryStorage) ListReadings(ctx context.Context, ownerID string, start, end time.Time) ([]Reading, error) {
	from, to := start.Format(meter.DateLayout), end.Format(meter.DateLayout)

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Reading{}
	for _, r := range m.readings[ownerID] {
		if r.Date >= from && r.Date <= to {
			out = append(out, r)
		}
	}
	m.sortReadings(out)
	return out, nil
}

func (m *MemoryStorage) DeleteReading(ctx context.Context, ownerID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.readings[ownerID][id]; !ok {
		return false, nil
	}
	delete(m.readings[ownerID], id)
	delete(m.inserted, id)
	return true, nil
}

// sortReadings orders by date and time; readings sharing both keep insertion
// order. Callers hold m.mu.
func (m *MemoryStorage) sortReadings(rs []Reading) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Date != rs[j].Date {
			return rs[i].Date < rs[j].Date
		}
		if rs[i].Time != rs[j].Time {
			return rs[i].Time < rs[j].Time
		}
		return m.inserted[rs[i].ID] < m.inserted[rs[j].ID]
	})
}

// Settings

func (m *MemoryStorage) GetSettings(ctx context.Context, ownerID string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.settings[ownerID]))
	for k, v := range m.settings[ownerID] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStorage) SetSettings(ctx context.Context, ownerID string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.settings[ownerID]
	if !ok {
		cur = make(map[string]string, len(values))
		m.settings[ownerID] = cur
	}
	for k, v := range values {
		cur[k] = v
	}
	return nil
}

// Statistics snapshots

func (m *MemoryStorage) GetLatestStatsSnapshot(ctx context.Context, ownerID string) (*StatsSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.snaps[ownerID]
	if len(list) == 0 {
		return nil, nil
	}
	cp := list[len(list)-1]
	return &cp, nil
}

func (m *MemoryStorage) SaveStatsSnapshot(ctx context.Context, snap StatsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.ComputedAt.IsZero() {
		snap.ComputedAt = time.Now().UTC()
	}
	m.nextSnap++
	snap.ID = m.nextSnap
	m.snaps[snap.OwnerID] = append(m.snaps[snap.OwnerID], snap)
	return nil
}

// Policy rules are kept so a casbin enforcer reloading from memory sees the
// rules it saved earlier in the process.

func (m *MemoryStorage) LoadPolicyRules(ctx context.Context) ([]PolicyRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PolicyRule, len(m.rules))
	copy(out, m.rules)
	return out, nil
}

func (m *MemoryStorage) AddPolicyRule(ctx context.Context, rule PolicyRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRule++
	rule.ID = m.nextRule
	m.rules = append(m.rules, rule)
	return nil
}

func (m *MemoryStorage) RemovePolicyRule(ctx context.Context, rule PolicyRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rules[:0]
	for _, r := range m.rules {
		if !sameRule(r, rule) {
			kept = append(kept, r)
		}
	}
	m.rules = kept
	return nil
}

func sameRule(a, b PolicyRule) bool {
	return a.PType == b.PType && a.V0 == b.V0 && a.V1 == b.V1 && a.V2 == b.V2 &&
		a.V3 == b.V3 && a.V4 == b.V4 && a.V5 == b.V5
}

// Scheduled jobs & locking

func (m *MemoryStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	// In-memory single instance always acquires lock
	return true, nil
}

func (m *MemoryStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return true, nil
}

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[name] = newScheduledJob(name, started, dur, success, errMsg)
	return nil
}

func (m *MemoryStorage) GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[name]
	if !ok {
		return nil, nil
	}
	return &j, nil
}

func newScheduledJob(name string, started time.Time, dur time.Duration, success bool, errMsg string) ScheduledJob {
	status := 0
	if success {
		status = 1
	}
	return ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
}
