package cron

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bher20/meterledger/internal/alerting"
	"github.com/bher20/meterledger/internal/billing"
	"github.com/bher20/meterledger/internal/metrics"
	"github.com/bher20/meterledger/internal/storage"
	"github.com/bher20/meterledger/internal/usage"
)

const (
	DefaultJobName  = "compute_statistics"
	DefaultInterval = "3600"
	// DefaultLockKey identifies the statistics job's advisory lock.
	DefaultLockKey int64 = 42
)

// ReportPublisher receives every report the worker computes.
type ReportPublisher interface {
	PublishReport(ctx context.Context, owner string, report billing.Report) error
}

// Config controls the worker schedule.
type Config struct {
	// Interval is either a number of seconds or a standard cron expression.
	Interval    string
	JobName     string
	LockKey     int64
	Concurrency int
	// Tick is how often the control loop checks whether a run is due.
	Tick time.Duration
	// Driver labels the DB pool metrics.
	Driver string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Interval) == "" {
		c.Interval = DefaultInterval
	}
	if c.JobName == "" {
		c.JobName = DefaultJobName
	}
	if c.LockKey == 0 {
		c.LockKey = DefaultLockKey
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.Tick <= 0 {
		c.Tick = 10 * time.Second
	}
	return c
}

// Worker periodically computes statistics snapshots for every owner. An
// advisory lock keeps multiple replicas from running the job at once.
type Worker struct {
	cfg       Config
	store     storage.Storage
	usage     *usage.Service
	publisher ReportPublisher
	alerter   *alerting.Alerter
}

// NewWorker builds a worker. publisher and alerter may be nil.
func NewWorker(cfg Config, st storage.Storage, svc *usage.Service, publisher ReportPublisher, alerter *alerting.Alerter) *Worker {
	return &Worker{
		cfg:       cfg.withDefaults(),
		store:     st,
		usage:     svc,
		publisher: publisher,
		alerter:   alerter,
	}
}

// ValidateInterval reports whether setting is usable as a schedule.
func ValidateInterval(setting string) error {
	if v, err := strconv.Atoi(setting); err == nil {
		if v <= 0 {
			return errors.New("interval seconds must be positive")
		}
		return nil
	}
	_, err := cron.ParseStandard(setting)
	return err
}

// NextRun returns the time after last at which the job is due again.
func NextRun(setting string, last time.Time) time.Time {
	if v, err := strconv.Atoi(setting); err == nil && v > 0 {
		return last.Add(time.Duration(v) * time.Second)
	}
	if sched, err := cron.ParseStandard(setting); err == nil {
		return sched.Next(last)
	}
	return last.Add(time.Hour)
}

// Run executes the job immediately and then on schedule until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if err := ValidateInterval(w.cfg.Interval); err != nil {
		log.Printf("cron: invalid interval %q (%v), falling back to hourly", w.cfg.Interval, err)
	}

	ticker := time.NewTicker(w.cfg.Tick)
	defer ticker.Stop()

	nextRun := time.Now()
	log.Printf("cron worker starting, interval=%q job=%s", w.cfg.Interval, w.cfg.JobName)

	for {
		if !time.Now().Before(nextRun) {
			w.RunLocked(ctx)
			nextRun = NextRun(w.cfg.Interval, time.Now())
			log.Printf("cron: next run at %s", nextRun.Format(time.RFC3339))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.reportPool()
		}
	}
}

// RunLocked runs the job once if this instance wins the advisory lock. It
// returns false when another instance holds the lock or the lock could not
// be taken.
func (w *Worker) RunLocked(ctx context.Context) bool {
	started := time.Now()

	ok, err := w.store.AcquireAdvisoryLock(ctx, w.cfg.LockKey)
	if err != nil {
		log.Printf("cron: acquire advisory lock failed: %v", err)
		metrics.UpdateJobMetrics(w.cfg.JobName, started, err)
		return false
	}
	if !ok {
		log.Printf("cron: advisory lock held by another worker, skipping run")
		return false
	}

	var summary RunSummary
	var runErr error
	func() {
		defer func() {
			if _, err := w.store.ReleaseAdvisoryLock(ctx, w.cfg.LockKey); err != nil {
				log.Printf("cron: release advisory lock failed: %v", err)
			}
		}()
		summary, runErr = w.RunOnce(ctx)
		if runErr == nil {
			runErr = summary.Err()
		}
	}()

	metrics.UpdateJobMetrics(w.cfg.JobName, started, runErr)
	dur := time.Since(started)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := w.store.UpdateScheduledJob(ctx, w.cfg.JobName, started, dur, runErr == nil, errMsg); err != nil {
		log.Printf("cron: update scheduled_jobs failed: %v", err)
	}

	if runErr != nil {
		log.Printf("cron: job %s completed with error: %v (owners=%d duration=%s)", w.cfg.JobName, runErr, summary.Total, dur)
	} else {
		log.Printf("cron: job %s completed successfully (owners=%d duration=%s)", w.cfg.JobName, summary.Total, dur)
	}
	return true
}

func (w *Worker) reportPool() {
	pr, ok := w.store.(storage.PoolReporter)
	if !ok {
		return
	}
	s := pr.PoolStats()
	metrics.UpdateDBPoolMetrics(w.cfg.Driver, float64(s.Total), float64(s.Idle), float64(s.Acquired), s.Acquires)
}
