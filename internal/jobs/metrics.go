package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	issues      *prometheus.CounterVec
	enqueued    *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job collectors. A nil registerer shares one set of
// collectors on prometheus.DefaultRegisterer across callers.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing job. Safe on a nil Metrics.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the outcome of the run and hands err back so handlers can
// `return tracker.End(err)`.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if err == nil {
		t.metrics.lastSuccess.WithLabelValues(t.job).SetToCurrentTime()
	}
	return err
}

// AddIssues increments the integrity issue counter of a check.
func (m *Metrics) AddIssues(check string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.issues.WithLabelValues(check).Add(float64(count))
}

// Enqueued counts retry tasks submitted for a module. Duplicates of a task
// still waiting in the queue are reported with queued=false.
func (m *Metrics) Enqueued(module string, queued bool) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(module, strconv.FormatBool(queued)).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hermes_jobs_total",
		Help: "Job runs by job and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hermes_jobs_failures_total",
		Help: "Failed job runs by job.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hermes_job_duration_seconds",
		Help:    "Job run duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hermes_job_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run of each job.",
	}, []string{"job"})
	issues := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hermes_ledger_integrity_issues_total",
		Help: "Ledger integrity issues found, by check.",
	}, []string{"check"})
	enqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hermes_posting_retries_enqueued_total",
		Help: "Posting retry tasks submitted, by module and whether the queue accepted them.",
	}, []string{"module", "queued"})
	registerer.MustRegister(runs, failures, duration, lastSuccess, issues, enqueued)
	return &Metrics{
		runs:        runs,
		failures:    failures,
		duration:    duration,
		lastSuccess: lastSuccess,
		issues:      issues,
		enqueued:    enqueued,
	}
}
