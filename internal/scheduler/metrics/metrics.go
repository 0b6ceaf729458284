package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the batch scheduler.
type Metrics struct {
	// Batch runs by outcome
	BatchRuns *prometheus.CounterVec

	// Per-domain provisioning outcomes across all runs
	DomainOutcomes *prometheus.CounterVec

	// Domains admitted per run after quota and batch-size gating
	AdmittedPerRun prometheus.Histogram

	// Wall clock duration of a full batch run
	RunDuration prometheus.Histogram

	// Remaining quota observed at the start of the last run
	QuotaRemaining prometheus.Gauge
}

// New creates a new Metrics instance with all scheduler metrics registered.
func New() *Metrics {
	return &Metrics{
		BatchRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hangar_scheduler_batch_runs_total",
			Help: "Total batch runs by outcome",
		}, []string{"outcome"}), // outcome: "completed", "quota_exhausted"

		DomainOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hangar_scheduler_domain_outcomes_total",
			Help: "Total per-domain provisioning outcomes",
		}, []string{"outcome"}), // outcome: "submitted", "active", "failed", "skipped"

		AdmittedPerRun: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hangar_scheduler_admitted_per_run",
			Help:    "Domains admitted into a single batch run",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 30, 50},
		}),

		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hangar_scheduler_run_duration_seconds",
			Help:    "Wall clock duration of a batch run",
			Buckets: []float64{0.1, 1, 5, 15, 60, 300, 900, 1800, 3600},
		}),

		QuotaRemaining: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hangar_scheduler_quota_remaining",
			Help: "Remaining project quota at the start of the last run",
		}),
	}
}

// IncrementRun records one batch run outcome.
func (m *Metrics) IncrementRun(outcome string) {
	if m != nil {
		m.BatchRuns.WithLabelValues(outcome).Inc()
	}
}

// IncrementDomain records one per-domain provisioning outcome.
func (m *Metrics) IncrementDomain(outcome string) {
	if m != nil {
		m.DomainOutcomes.WithLabelValues(outcome).Inc()
	}
}

// ObserveRun records the shape of a finished run.
func (m *Metrics) ObserveRun(admitted int, d time.Duration) {
	if m != nil {
		m.AdmittedPerRun.Observe(float64(admitted))
		m.RunDuration.Observe(d.Seconds())
	}
}

// SetQuotaRemaining records the remaining quota seen by the last run.
func (m *Metrics) SetQuotaRemaining(n int) {
	if m != nil {
		m.QuotaRemaining.Set(float64(n))
	}
}
