// Package allocator decides which hosting site a domain lands on: a pure
// ordered-rule classifier picks the category, and a capacity-aware selector
// picks the site with the most headroom, falling back to specialty and then
// to a project-wide scan when pools run full.
package allocator

import (
	"hangar/internal/platform/config"
	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/domain"
)

// Site is one candidate hosting destination with its configured ceiling.
type Site struct {
	ID       domain.SiteID
	Capacity int
	Reserved int
}

// headroom is how many more domains the site can take given a known
// occupancy. CountUnknown never reaches here; callers skip unknown sites.
func (s Site) headroom(occupied int) int {
	return s.Capacity - s.Reserved - occupied
}

// Topology is the static category-to-sites mapping the selector scans.
// Pool order within a category is the configured order; it decides ties.
type Topology struct {
	order []domain.Category
	pools map[domain.Category][]Site
	byID  map[domain.SiteID]Site
}

// NewTopology builds a topology from ordered category pools. The specialty
// pool must exist; it is the terminal classification and selection fallback.
func NewTopology(order []domain.Category, pools map[domain.Category][]Site) (Topology, error) {
	if len(pools) == 0 {
		return Topology{}, dErrors.New(dErrors.CodeInvalidInput, "topology needs at least one category pool")
	}
	if len(pools[domain.CategorySpecialty]) == 0 {
		return Topology{}, dErrors.New(dErrors.CodeInvalidInput, "topology needs a specialty pool")
	}
	byID := make(map[domain.SiteID]Site)
	for _, sites := range pools {
		for _, site := range sites {
			byID[site.ID] = site
		}
	}
	return Topology{order: order, pools: pools, byID: byID}, nil
}

// TopologyFromSiteMap adapts the validated config site map.
func TopologyFromSiteMap(m *config.SiteMap) (Topology, error) {
	if m == nil {
		return Topology{}, dErrors.New(dErrors.CodeInvalidInput, "site map is required")
	}
	order := make([]domain.Category, 0, len(m.Categories))
	pools := make(map[domain.Category][]Site, len(m.Categories))
	for _, cat := range m.Categories {
		category, err := domain.ParseCategory(cat.Name)
		if err != nil {
			return Topology{}, err
		}
		sites := make([]Site, 0, len(cat.Sites))
		for _, spec := range cat.Sites {
			id, err := domain.ParseSiteID(spec.ID)
			if err != nil {
				return Topology{}, err
			}
			sites = append(sites, Site{ID: id, Capacity: spec.Capacity, Reserved: spec.Reserved})
		}
		order = append(order, category)
		pools[category] = sites
	}
	return NewTopology(order, pools)
}

// Pool returns the configured sites for a category in selection order.
func (t Topology) Pool(category domain.Category) []Site {
	return t.pools[category]
}

// Site looks up one configured site by ID.
func (t Topology) Site(id domain.SiteID) (Site, bool) {
	site, ok := t.byID[id]
	return site, ok
}

// Categories returns the configured categories in file order.
func (t Topology) Categories() []domain.Category {
	out := make([]domain.Category, len(t.order))
	copy(out, t.order)
	return out
}

// Placement is the selector's verdict for one domain.
type Placement struct {
	SiteID       domain.SiteID
	Category     domain.Category
	Available    int
	FallbackUsed bool
	ProjectScan  bool
}

// Allocation is the full allocate answer handed back to callers.
type Allocation struct {
	Domain       domain.DomainName
	Category     domain.Category
	SiteID       domain.SiteID
	Available    int
	FallbackUsed bool
	ProjectScan  bool
}
