package allocator

import (
	"hangar/internal/registry"
	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/domain"
)

// Select picks the hosting site for a category against a registry snapshot.
//
// The category pool is scanned first: sites with unknown occupancy are
// skipped, sites without free slots are dropped, and the largest headroom
// wins with ties going to pool order. A category with no configured pool
// falls back to specialty exactly once. When the pool is full the scan
// widens to every known site in snapshot order and takes the first one
// with a free slot.
//
// Errors: CodeNoCapacity when no site anywhere has a free slot; it is
// terminal and marks the project, not the platform, as the problem.
func Select(topo Topology, snap registry.Snapshot, category domain.Category) (Placement, error) {
	pool := topo.Pool(category)
	fallback := false
	if len(pool) == 0 && category != domain.CategorySpecialty {
		category = domain.CategorySpecialty
		pool = topo.Pool(category)
		fallback = true
	}

	if best, free, ok := pickFromPool(pool, snap); ok {
		return Placement{
			SiteID:       best.ID,
			Category:     category,
			Available:    free,
			FallbackUsed: fallback,
		}, nil
	}

	for _, site := range snap.Sites {
		spec, configured := topo.Site(site.ID)
		if !configured {
			continue
		}
		occupied, known := snap.Count(site.ID)
		if !known {
			continue
		}
		if free := spec.headroom(occupied); free > 0 {
			return Placement{
				SiteID:       spec.ID,
				Category:     category,
				Available:    free,
				FallbackUsed: fallback,
				ProjectScan:  true,
			}, nil
		}
	}

	return Placement{}, dErrors.New(dErrors.CodeNoCapacity, "project at capacity")
}

// pickFromPool returns the pool site with the most free slots. Strict
// comparison keeps the earliest site on ties.
func pickFromPool(pool []Site, snap registry.Snapshot) (Site, int, bool) {
	var (
		best     Site
		bestFree int
		found    bool
	)
	for _, site := range pool {
		occupied, known := snap.Count(site.ID)
		if !known {
			continue
		}
		free := site.headroom(occupied)
		if free <= 0 {
			continue
		}
		if !found || free > bestFree {
			best, bestFree, found = site, free, true
		}
	}
	return best, bestFree, found
}
