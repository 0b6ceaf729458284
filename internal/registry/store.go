// Package registry caches the hosting platform's site inventory and per-site
// occupancy so allocation decisions do not hammer the platform API. Counts
// are a snapshot, refreshed on TTL expiry and bumped optimistically after
// each allocation.
package registry

import (
	"context"
	"time"

	"hangar/internal/hosting"
	"hangar/pkg/domain"
)

// CountUnknown marks a site whose occupancy fetch failed during refresh.
// Unknown sites are never selectable until a later refresh recovers them.
const CountUnknown = -1

// Snapshot is one complete view of the site inventory. Sites preserves the
// platform's list order; project-wide fallback scans walk it in that order.
type Snapshot struct {
	Sites     []hosting.Site        `json:"sites"`
	Counts    map[domain.SiteID]int `json:"counts"`
	FetchedAt time.Time             `json:"fetchedAt"`
}

// Count returns the cached occupancy for a site and whether the count is
// usable. Sites missing from the snapshot or marked CountUnknown are not.
func (s Snapshot) Count(id domain.SiteID) (int, bool) {
	count, ok := s.Counts[id]
	if !ok || count == CountUnknown {
		return count, false
	}
	return count, true
}

// Empty reports whether the snapshot has never been populated.
func (s Snapshot) Empty() bool {
	return s.FetchedAt.IsZero()
}

// Stale reports whether the snapshot has outlived the TTL at the given time.
func (s Snapshot) Stale(now time.Time, ttl time.Duration) bool {
	if s.Empty() {
		return true
	}
	return now.Sub(s.FetchedAt) >= ttl
}

// clone deep-copies the snapshot so callers can hold it without racing the
// store.
func (s Snapshot) clone() Snapshot {
	out := Snapshot{FetchedAt: s.FetchedAt}
	out.Sites = make([]hosting.Site, len(s.Sites))
	copy(out.Sites, s.Sites)
	out.Counts = make(map[domain.SiteID]int, len(s.Counts))
	for id, count := range s.Counts {
		out.Counts[id] = count
	}
	return out
}

// Store persists snapshots between refreshes. Implementations must return
// sentinel.ErrNotFound from Load when nothing has been saved.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	// Increment bumps one site's cached occupancy after an allocation so
	// the next read reflects the slot already spent.
	Increment(ctx context.Context, id domain.SiteID) error
	Clear(ctx context.Context) error
}
