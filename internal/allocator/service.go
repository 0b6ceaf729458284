package allocator

import (
	"context"
	"log/slog"
	"sync"

	contracts "hangar/contracts/events"
	"hangar/internal/allocator/metrics"
	"hangar/internal/events"
	"hangar/internal/registry"
	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/domain"
	"hangar/pkg/requestcontext"
)

// SiteCounts is the slice of the registry cache the allocator consumes.
type SiteCounts interface {
	Counts(ctx context.Context, useCache bool) (registry.Snapshot, error)
	NoteAllocation(ctx context.Context, id domain.SiteID)
}

// Service allocates domains to hosting sites. A single mutex serializes the
// read-select-note sequence so concurrent allocations in one process cannot
// both claim a site's last free slot.
type Service struct {
	topology Topology
	registry SiteCounts
	events   events.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu sync.Mutex
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a logger for allocation reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithEvents sets the lifecycle event publisher.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// New creates an allocation service over a site topology and the registry
// cache.
func New(topology Topology, counts SiteCounts, opts ...Option) (*Service, error) {
	if len(topology.pools) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "topology is required")
	}
	if counts == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "site counts are required")
	}
	s := &Service{
		topology: topology,
		registry: counts,
		events:   events.Nop{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Topology returns the configured site topology.
func (s *Service) Topology() Topology {
	return s.topology
}

// Allocate picks the hosting site for one domain. An empty preferred
// category means classify the name; a non-empty one overrides the
// classifier.
//
// The chosen site's occupancy is bumped in the registry cache immediately so
// later allocations in the same TTL window see the slot as taken.
//
// Errors: CodeInvalidInput for an unknown category override;
// CodeNoCapacity when no site has a free slot; CodeUnavailable when the
// registry cannot produce a snapshot.
func (s *Service) Allocate(ctx context.Context, name domain.DomainName, preferred domain.Category) (Allocation, error) {
	if name.IsNil() {
		return Allocation{}, dErrors.New(dErrors.CodeInvalidInput, "domain is required")
	}
	category := preferred
	if category == "" {
		category = Classify(name)
	} else if !category.IsValid() {
		return Allocation{}, dErrors.New(dErrors.CodeInvalidInput, "invalid category")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.registry.Counts(ctx, true)
	if err != nil {
		s.metrics.IncrementAllocation(category.String(), "error")
		return Allocation{}, err
	}

	placement, err := Select(s.topology, snap, category)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNoCapacity) {
			s.metrics.IncrementAllocation(category.String(), "no_capacity")
			s.logger.WarnContext(ctx, "no capacity for domain",
				"domain", name,
				"category", category,
			)
		} else {
			s.metrics.IncrementAllocation(category.String(), "error")
		}
		return Allocation{}, err
	}

	s.registry.NoteAllocation(ctx, placement.SiteID)

	s.metrics.IncrementAllocation(placement.Category.String(), "placed")
	s.metrics.ObserveHeadroom(placement.Available)
	if placement.FallbackUsed {
		s.metrics.IncrementFallback()
	}
	if placement.ProjectScan {
		s.metrics.IncrementProjectScan()
	}

	s.publishPlaced(ctx, name, placement)

	s.logger.InfoContext(ctx, "domain allocated",
		"domain", name,
		"category", placement.Category,
		"site_id", placement.SiteID,
		"available", placement.Available,
		"fallback", placement.FallbackUsed,
		"project_scan", placement.ProjectScan,
	)

	return Allocation{
		Domain:       name,
		Category:     placement.Category,
		SiteID:       placement.SiteID,
		Available:    placement.Available,
		FallbackUsed: placement.FallbackUsed,
		ProjectScan:  placement.ProjectScan,
	}, nil
}

func (s *Service) publishPlaced(ctx context.Context, name domain.DomainName, placement Placement) {
	err := s.events.Publish(ctx, contracts.Event{
		Type:     contracts.TypeAllocationPlaced,
		Domain:   name.String(),
		Category: placement.Category.String(),
		SiteID:   placement.SiteID.String(),
		At:       requestcontext.Now(ctx),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "publish allocation event failed",
			"domain", name,
			"error", err,
		)
	}
}
