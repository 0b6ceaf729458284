package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the site registry cache.
type Metrics struct {
	// Cache reads by outcome
	CacheReads *prometheus.CounterVec

	// Full refresh latency including per-site count fetches
	RefreshLatency prometheus.Histogram

	// Sites whose occupancy fetch failed in the last refresh
	UnknownCounts prometheus.Gauge

	// Last known occupancy per site
	SiteOccupancy *prometheus.GaugeVec
}

// New creates a new Metrics instance with all registry metrics registered.
func New() *Metrics {
	return &Metrics{
		CacheReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hangar_registry_cache_reads_total",
			Help: "Total registry cache reads by outcome",
		}, []string{"outcome"}), // outcome: "hit", "miss", "bypass", "stale"

		RefreshLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hangar_registry_refresh_duration_seconds",
			Help:    "Duration of full registry refreshes including count fetches",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		UnknownCounts: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hangar_registry_unknown_counts",
			Help: "Sites with unknown occupancy after the last refresh",
		}),

		SiteOccupancy: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hangar_registry_site_occupancy",
			Help: "Last known domain count per site",
		}, []string{"site"}),
	}
}

// IncrementRead records one cache read outcome.
func (m *Metrics) IncrementRead(outcome string) {
	if m != nil {
		m.CacheReads.WithLabelValues(outcome).Inc()
	}
}

// ObserveRefresh records the duration of a registry refresh.
func (m *Metrics) ObserveRefresh(d time.Duration) {
	if m != nil {
		m.RefreshLatency.Observe(d.Seconds())
	}
}

// SetUnknownCounts records how many sites failed their occupancy fetch.
func (m *Metrics) SetUnknownCounts(n int) {
	if m != nil {
		m.UnknownCounts.Set(float64(n))
	}
}

// SetOccupancy records one site's fetched occupancy.
func (m *Metrics) SetOccupancy(site string, count int) {
	if m != nil {
		m.SiteOccupancy.WithLabelValues(site).Set(float64(count))
	}
}
