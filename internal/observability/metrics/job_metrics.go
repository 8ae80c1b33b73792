package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded = "deadline_exceeded"
	JobReasonCanceled         = "canceled"
	JobReasonUniqueViolation  = "unique_violation"
	JobReasonDB               = "db"
	JobReasonUnknown          = "unknown"
)

// JobMetrics captures health signals of scheduled fetches and imports.
type JobMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobErrors      *prometheus.CounterVec
	sourcesFetched *prometheus.CounterVec
	importDuration prometheus.Observer
	importRows     *prometheus.CounterVec
}

var (
	jobMetricsOnce sync.Once
	jobMetrics     *JobMetrics
)

// Jobs returns the process-wide job metrics registered on the default registry.
func Jobs() *JobMetrics {
	return JobsWithConfig(Config{})
}

func JobsWithConfig(cfg Config) *JobMetrics {
	jobMetricsOnce.Do(func() {
		jobMetrics = newJobMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return jobMetrics
}

func newJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cielo_job_runs_total",
		Help:        "Scheduled job runs by name.",
		ConstLabels: labels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "cielo_job_duration_seconds",
		Help:        "Scheduled job latency.",
		Buckets:     []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		ConstLabels: labels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cielo_job_errors_total",
		Help:        "Scheduled job errors by low-cardinality reason.",
		ConstLabels: labels,
	}, []string{"job", "reason"})
	sourcesFetched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cielo_sources_fetched_total",
		Help:        "Blob source fetch attempts by outcome.",
		ConstLabels: labels,
	}, []string{"outcome"})
	importDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "cielo_import_duration_seconds",
		Help:        "Wall time of a single export file import.",
		Buckets:     []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 900},
		ConstLabels: labels,
	})
	importRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cielo_import_rows_processed_total",
		Help:        "CSV rows processed by outcome.",
		ConstLabels: labels,
	}, []string{"outcome"})

	registerer.MustRegister(jobRuns, jobDuration, jobErrors, sourcesFetched, importDuration, importRows)

	return &JobMetrics{
		jobRuns:        jobRuns,
		jobDuration:    jobDuration,
		jobErrors:      jobErrors,
		sourcesFetched: sourcesFetched,
		importDuration: importDuration,
		importRows:     importRows,
	}
}

func (m *JobMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *JobMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *JobMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *JobMetrics) IncSourceFetched(outcome string) {
	if m == nil {
		return
	}
	m.sourcesFetched.WithLabelValues(outcome).Inc()
}

func (m *JobMetrics) ObserveImport(d time.Duration, imported, skipped int) {
	if m == nil {
		return
	}
	m.importDuration.Observe(d.Seconds())
	m.importRows.WithLabelValues("imported").Add(float64(imported))
	m.importRows.WithLabelValues("skipped").Add(float64(skipped))
}

// ClassifyJobReason maps err to a bounded label value.
func ClassifyJobReason(err error) string {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return JobReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return JobReasonCanceled
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return JobReasonUniqueViolation
	case errors.As(err, &pgErr):
		if pgErr.Code == "23505" {
			return JobReasonUniqueViolation
		}
		return JobReasonDB
	default:
		return JobReasonUnknown
	}
}
