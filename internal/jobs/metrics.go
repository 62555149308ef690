// Package jobs records outcomes of the service's background work: trending
// cache warming, analytics flushes and calibration reloads.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricBackgroundJobsTotal      = "background_jobs_total"
	MetricBackgroundJobsDuration   = "background_jobs_duration_seconds"
	MetricBackgroundJobErrorsTotal = "background_job_errors_total"
)

// Job types used as the job_type label.
const (
	JobTypeTrendingWarm      = "trending_warm"
	JobTypeCalibrationReload = "calibration_reload"
	JobTypeAnalyticsFlush    = "analytics_flush"
)

// Run statuses used as the status label.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Error types shared by every job. Jobs may add their own.
const (
	ErrorTypeTimeout  = "timeout"
	ErrorTypeCanceled = "canceled"
	ErrorTypeFailed   = "failed"
)

// Metrics counts job runs, their durations and their errors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricBackgroundJobsTotal,
			Help: "Background job runs by job type and status",
		}, []string{"job_type", "status"}),
		// Flushes and reloads take milliseconds; a full warm of every window
		// can take several seconds.
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricBackgroundJobsDuration,
			Help:    "Background job run duration in seconds by job type",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"job_type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricBackgroundJobErrorsTotal,
			Help: "Background job errors by job type and error type",
		}, []string{"job_type", "error_type"}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns the collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.runs, m.duration, m.errors}
}

// Record counts one finished run of jobType. A non-nil err marks the run
// as failed.
func (m *Metrics) Record(jobType string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	m.runs.WithLabelValues(jobType, status).Inc()
	m.duration.WithLabelValues(jobType).Observe(elapsed.Seconds())
}

// Fail counts one error of errorType inside a jobType run. A run can report
// several errors and still be recorded once.
func (m *Metrics) Fail(jobType, errorType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(jobType, errorType).Inc()
}

// ErrorType maps context errors to their error type and everything else to
// ErrorTypeFailed.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	default:
		return ErrorTypeFailed
	}
}
