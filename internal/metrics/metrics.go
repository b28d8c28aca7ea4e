package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterledger_requests_total",
			Help: "Total number of API requests per route",
		},
		[]string{"route"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meterledger_request_duration_seconds",
			Help:    "Request duration in seconds per route and method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterledger_request_errors_total",
			Help: "Total number of error responses per route and code",
		},
		[]string{"route", "code"},
	)
)

var (
	StatisticsComputedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterledger_statistics_computed_total",
			Help: "Total number of statistics computations per source",
		},
		[]string{"source"},
	)

	ReadingAnomaliesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meterledger_reading_anomalies_total",
			Help: "Readings lower than the reading before them",
		},
	)

	// Not labelled by owner: owner count is unbounded.
	ProjectedCost = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meterledger_projected_cost",
			Help:    "Projected cost of the current billing period, one observation per owner per worker run",
			Buckets: []float64{250, 500, 1000, 2000, 4000, 8000, 16000},
		},
	)
)

// RecordStatistics counts one statistics computation and its anomalies.
func RecordStatistics(source string, anomalies int) {
	StatisticsComputedTotal.WithLabelValues(source).Inc()
	if anomalies > 0 {
		ReadingAnomaliesTotal.Add(float64(anomalies))
	}
}

var (
	DBPoolTotalConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meterledger_db_pool_total_conns",
			Help: "Total number of connections in the DB pool per driver",
		},
		[]string{"driver"},
	)

	DBPoolIdleConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meterledger_db_pool_idle_conns",
			Help: "Idle connections in the DB pool per driver",
		},
		[]string{"driver"},
	)

	DBPoolAcquiredConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meterledger_db_pool_acquired_conns",
			Help: "Currently acquired (in-use) connections per driver",
		},
		[]string{"driver"},
	)

	DBPoolAcquiresTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meterledger_db_pool_acquires_total",
			Help: "Cumulative number of connection acquires per driver",
		},
		[]string{"driver"},
	)
)

func UpdateDBPoolMetrics(driver string, total, idle, acquired float64, acquires int64) {
	DBPoolTotalConns.WithLabelValues(driver).Set(total)
	DBPoolIdleConns.WithLabelValues(driver).Set(idle)
	DBPoolAcquiredConns.WithLabelValues(driver).Set(acquired)
	DBPoolAcquiresTotal.WithLabelValues(driver).Set(float64(acquires))
}

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meterledger_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meterledger_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meterledger_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
