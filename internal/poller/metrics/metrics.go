package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the status poller.
type Metrics struct {
	// Terminal outcomes by state
	Outcomes *prometheus.CounterVec

	// Poll fetches that failed without changing state
	PollErrors prometheus.Counter

	// Wall clock time from first poll to terminal state
	WaitDuration prometheus.Histogram

	// Polls consumed per wait
	PollsPerWait prometheus.Histogram
}

// New creates a new Metrics instance with all poller metrics registered.
func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hangar_poller_outcomes_total",
			Help: "Terminal poller outcomes by state",
		}, []string{"state"}),

		PollErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hangar_poller_poll_errors_total",
			Help: "Status fetches that failed without a state transition",
		}),

		WaitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hangar_poller_wait_duration_seconds",
			Help:    "Wall clock duration of waits reaching a terminal state",
			Buckets: []float64{1, 5, 15, 60, 120, 300, 600, 1200, 1800, 2700},
		}),

		PollsPerWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hangar_poller_polls_per_wait",
			Help:    "Status polls consumed per terminal wait",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 31, 40},
		}),
	}
}

// IncrementOutcome records one terminal outcome.
func (m *Metrics) IncrementOutcome(state string) {
	if m != nil {
		m.Outcomes.WithLabelValues(state).Inc()
	}
}

// IncrementPollError records one failed status fetch.
func (m *Metrics) IncrementPollError() {
	if m != nil {
		m.PollErrors.Inc()
	}
}

// ObserveWait records the duration and poll count of a terminal wait.
func (m *Metrics) ObserveWait(d time.Duration, polls int) {
	if m != nil {
		m.WaitDuration.Observe(d.Seconds())
		m.PollsPerWait.Observe(float64(polls))
	}
}
