package cron

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bher20/meterledger/internal/alerting"
	"github.com/bher20/meterledger/internal/metrics"
)

// RunSummary describes one pass over every owner.
type RunSummary struct {
	Started   time.Time
	Duration  time.Duration
	Total     int
	Succeeded int
	Failures  []alerting.OwnerFailure
}

// Err returns a non-nil error when at least one owner failed.
func (s RunSummary) Err() error {
	if len(s.Failures) == 0 {
		return nil
	}
	first := s.Failures[0]
	return fmt.Errorf("%d of %d owners failed, first %s: %s", len(s.Failures), s.Total, first.OwnerID, first.Error)
}

// RunOnce snapshots statistics for every owner, publishes each report and
// raises alerts. A failing owner does not stop the others; the returned
// error only covers listing owners.
func (w *Worker) RunOnce(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{Started: time.Now()}

	owners, err := w.usage.Owners(ctx)
	if err != nil {
		return summary, err
	}
	summary.Total = len(owners)
	day := w.usage.Today()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, owner := range owners {
		g.Go(func() error {
			err := w.processOwner(gctx, owner, day)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("cron: owner=%s failed: %v", owner, err)
				summary.Failures = append(summary.Failures, alerting.OwnerFailure{OwnerID: owner, Error: err.Error()})
				return nil
			}
			summary.Succeeded++
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].OwnerID < summary.Failures[j].OwnerID
	})
	summary.Duration = time.Since(summary.Started)

	if len(summary.Failures) > 0 && w.alerter != nil {
		err := w.alerter.SendRunAlert(ctx, alerting.RunAlert{
			JobName:       w.cfg.JobName,
			TotalCount:    summary.Total,
			SuccessCount:  summary.Succeeded,
			FailedCount:   len(summary.Failures),
			Duration:      summary.Duration,
			FailedDetails: summary.Failures,
			Timestamp:     time.Now(),
		})
		if err != nil {
			log.Printf("cron: run alert failed: %v", err)
		}
	}
	return summary, nil
}

func (w *Worker) processOwner(ctx context.Context, owner string, day time.Time) error {
	stats, report, err := w.usage.Snapshot(ctx, owner, day)
	if err != nil {
		return err
	}
	metrics.ProjectedCost.Observe(stats.Projected.Total)

	if w.publisher != nil {
		if err := w.publisher.PublishReport(ctx, owner, report); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}

	if len(stats.Anomalies) > 0 && w.alerter != nil {
		err := w.alerter.SendAnomalyAlert(ctx, alerting.AnomalyAlert{
			OwnerID:   owner,
			Period:    stats.Period,
			Anomalies: stats.Anomalies,
			Timestamp: time.Now(),
		})
		// Delivery problems are logged, the snapshot itself succeeded.
		if err != nil {
			log.Printf("cron: anomaly alert owner=%s failed: %v", owner, err)
		}
	}
	return nil
}
