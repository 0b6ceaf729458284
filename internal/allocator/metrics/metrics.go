package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for domain allocation.
type Metrics struct {
	// Allocations by category and outcome
	Allocations *prometheus.CounterVec

	// Placements that fell back to the specialty pool
	Fallbacks prometheus.Counter

	// Placements resolved by the project-wide scan
	ProjectScans prometheus.Counter

	// Free slots on the chosen site at placement time
	PlacementHeadroom prometheus.Histogram
}

// New creates a new Metrics instance with all allocator metrics registered.
func New() *Metrics {
	return &Metrics{
		Allocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hangar_allocator_allocations_total",
			Help: "Total allocation attempts by category and outcome",
		}, []string{"category", "outcome"}), // outcome: "placed", "no_capacity", "error"

		Fallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hangar_allocator_fallbacks_total",
			Help: "Placements that fell back to the specialty pool",
		}),

		ProjectScans: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hangar_allocator_project_scans_total",
			Help: "Placements resolved by scanning all sites project-wide",
		}),

		PlacementHeadroom: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hangar_allocator_placement_headroom",
			Help:    "Free slots remaining on the chosen site at placement time",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 20, 50},
		}),
	}
}

// IncrementAllocation records one allocation attempt outcome.
func (m *Metrics) IncrementAllocation(category, outcome string) {
	if m != nil {
		m.Allocations.WithLabelValues(category, outcome).Inc()
	}
}

// IncrementFallback records a specialty-pool fallback.
func (m *Metrics) IncrementFallback() {
	if m != nil {
		m.Fallbacks.Inc()
	}
}

// IncrementProjectScan records a project-wide scan placement.
func (m *Metrics) IncrementProjectScan() {
	if m != nil {
		m.ProjectScans.Inc()
	}
}

// ObserveHeadroom records the chosen site's free slots.
func (m *Metrics) ObserveHeadroom(free int) {
	if m != nil {
		m.PlacementHeadroom.Observe(float64(free))
	}
}
