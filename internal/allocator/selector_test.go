package allocator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hangar/internal/hosting"
	"hangar/internal/registry"
	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/domain"
)

func mustSiteID(t *testing.T, raw string) domain.SiteID {
	t.Helper()
	id, err := domain.ParseSiteID(raw)
	require.NoError(t, err)
	return id
}

// testTopology wires three pools: opus with two sites, pilot with one, and
// the mandatory specialty pool.
func testTopology(t *testing.T) Topology {
	t.Helper()
	topo, err := NewTopology(
		[]domain.Category{domain.CategoryOpus, domain.CategoryPilot, domain.CategorySpecialty},
		map[domain.Category][]Site{
			domain.CategoryOpus: {
				{ID: mustSiteID(t, "opus-site-1"), Capacity: 20, Reserved: 5},
				{ID: mustSiteID(t, "opus-site-2"), Capacity: 20, Reserved: 5},
			},
			domain.CategoryPilot: {
				{ID: mustSiteID(t, "vl-pilots-site-1"), Capacity: 10, Reserved: 2},
			},
			domain.CategorySpecialty: {
				{ID: mustSiteID(t, "specialty-site-1"), Capacity: 20, Reserved: 5},
				{ID: mustSiteID(t, "specialty-site-2"), Capacity: 20, Reserved: 5},
			},
		},
	)
	require.NoError(t, err)
	return topo
}

// snapshotOf builds a registry snapshot whose site order follows the given
// IDs, with occupancy taken from counts. IDs absent from counts stay out of
// the count map entirely, mimicking a site the refresh never resolved.
func snapshotOf(t *testing.T, counts map[string]int, order ...string) registry.Snapshot {
	t.Helper()
	snap := registry.Snapshot{
		Counts:    make(map[domain.SiteID]int, len(counts)),
		FetchedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	for _, raw := range order {
		id := mustSiteID(t, raw)
		snap.Sites = append(snap.Sites, hosting.Site{ID: id, DefaultDomain: raw + ".pages.dev", Type: "pages"})
		if n, ok := counts[raw]; ok {
			snap.Counts[id] = n
		}
	}
	return snap
}

func TestSelect(t *testing.T) {
	topo := testTopology(t)

	t.Run("largest headroom wins within the pool", func(t *testing.T) {
		snap := snapshotOf(t,
			map[string]int{"opus-site-1": 14, "opus-site-2": 10},
			"opus-site-1", "opus-site-2",
		)
		placement, err := Select(topo, snap, domain.CategoryOpus)
		require.NoError(t, err)
		assert.Equal(t, "opus-site-2", placement.SiteID.String())
		assert.Equal(t, 5, placement.Available)
		assert.False(t, placement.FallbackUsed)
		assert.False(t, placement.ProjectScan)
	})

	t.Run("ties go to pool order", func(t *testing.T) {
		snap := snapshotOf(t,
			map[string]int{"opus-site-1": 10, "opus-site-2": 10},
			"opus-site-1", "opus-site-2",
		)
		placement, err := Select(topo, snap, domain.CategoryOpus)
		require.NoError(t, err)
		assert.Equal(t, "opus-site-1", placement.SiteID.String())
	})

	t.Run("sites with unknown occupancy are skipped", func(t *testing.T) {
		snap := snapshotOf(t,
			map[string]int{"opus-site-1": registry.CountUnknown, "opus-site-2": 12},
			"opus-site-1", "opus-site-2",
		)
		placement, err := Select(topo, snap, domain.CategoryOpus)
		require.NoError(t, err)
		assert.Equal(t, "opus-site-2", placement.SiteID.String())
		assert.Equal(t, 3, placement.Available)
	})

	t.Run("sites without free slots are dropped", func(t *testing.T) {
		snap := snapshotOf(t,
			map[string]int{"opus-site-1": 15, "opus-site-2": 14},
			"opus-site-1", "opus-site-2",
		)
		placement, err := Select(topo, snap, domain.CategoryOpus)
		require.NoError(t, err)
		assert.Equal(t, "opus-site-2", placement.SiteID.String())
		assert.Equal(t, 1, placement.Available)
	})

	t.Run("overfull site is not a candidate", func(t *testing.T) {
		// Occupancy above capacity minus reserved yields negative headroom.
		snap := snapshotOf(t,
			map[string]int{"opus-site-1": 18, "opus-site-2": 10},
			"opus-site-1", "opus-site-2",
		)
		placement, err := Select(topo, snap, domain.CategoryOpus)
		require.NoError(t, err)
		assert.Equal(t, "opus-site-2", placement.SiteID.String())
		assert.Equal(t, 5, placement.Available)
	})

	t.Run("unconfigured category falls back to specialty once", func(t *testing.T) {
		snap := snapshotOf(t,
			map[string]int{"specialty-site-1": 3, "specialty-site-2": 8},
			"specialty-site-1", "specialty-site-2",
		)
		placement, err := Select(topo, snap, domain.CategoryContent)
		require.NoError(t, err)
		assert.Equal(t, domain.CategorySpecialty, placement.Category)
		assert.Equal(t, "specialty-site-1", placement.SiteID.String())
		assert.True(t, placement.FallbackUsed)
		assert.False(t, placement.ProjectScan)
	})

	t.Run("full pool widens to a project scan in snapshot order", func(t *testing.T) {
		snap := snapshotOf(t,
			map[string]int{
				"opus-site-1":      15,
				"opus-site-2":      15,
				"vl-pilots-site-1": 3,
				"specialty-site-1": 0,
			},
			"opus-site-1", "opus-site-2", "vl-pilots-site-1", "specialty-site-1",
		)
		placement, err := Select(topo, snap, domain.CategoryOpus)
		require.NoError(t, err)
		assert.Equal(t, "vl-pilots-site-1", placement.SiteID.String())
		assert.Equal(t, 5, placement.Available)
		assert.True(t, placement.ProjectScan)
		assert.Equal(t, domain.CategoryOpus, placement.Category)
	})

	t.Run("project scan takes the first free site, not the largest", func(t *testing.T) {
		snap := snapshotOf(t,
			map[string]int{
				"opus-site-1":      15,
				"opus-site-2":      15,
				"vl-pilots-site-1": 7,
				"specialty-site-1": 0,
			},
			"opus-site-1", "opus-site-2", "vl-pilots-site-1", "specialty-site-1",
		)
		placement, err := Select(topo, snap, domain.CategoryOpus)
		require.NoError(t, err)
		assert.Equal(t, "vl-pilots-site-1", placement.SiteID.String())
		assert.Equal(t, 1, placement.Available)
	})

	t.Run("project scan skips sites the topology does not know", func(t *testing.T) {
		snap := snapshotOf(t,
			map[string]int{
				"opus-site-1":      15,
				"opus-site-2":      15,
				"rogue-site-1":     0,
				"specialty-site-1": 2,
			},
			"opus-site-1", "opus-site-2", "rogue-site-1", "specialty-site-1",
		)
		placement, err := Select(topo, snap, domain.CategoryOpus)
		require.NoError(t, err)
		assert.Equal(t, "specialty-site-1", placement.SiteID.String())
		assert.True(t, placement.ProjectScan)
	})

	t.Run("project scan skips unknown occupancy", func(t *testing.T) {
		snap := snapshotOf(t,
			map[string]int{
				"opus-site-1":      15,
				"opus-site-2":      15,
				"specialty-site-1": 2,
			},
			"opus-site-1", "opus-site-2", "vl-pilots-site-1", "specialty-site-1",
		)
		placement, err := Select(topo, snap, domain.CategoryOpus)
		require.NoError(t, err)
		assert.Equal(t, "specialty-site-1", placement.SiteID.String())
	})

	t.Run("fallback then project scan compose", func(t *testing.T) {
		snap := snapshotOf(t,
			map[string]int{
				"opus-site-1":      10,
				"specialty-site-1": 15,
				"specialty-site-2": 15,
			},
			"opus-site-1", "specialty-site-1", "specialty-site-2",
		)
		placement, err := Select(topo, snap, domain.CategoryContent)
		require.NoError(t, err)
		assert.Equal(t, "opus-site-1", placement.SiteID.String())
		assert.True(t, placement.FallbackUsed)
		assert.True(t, placement.ProjectScan)
	})

	t.Run("project at capacity is terminal", func(t *testing.T) {
		snap := snapshotOf(t,
			map[string]int{
				"opus-site-1":      15,
				"opus-site-2":      16,
				"vl-pilots-site-1": 8,
				"specialty-site-1": 15,
				"specialty-site-2": 15,
			},
			"opus-site-1", "opus-site-2", "vl-pilots-site-1", "specialty-site-1", "specialty-site-2",
		)
		_, err := Select(topo, snap, domain.CategoryOpus)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNoCapacity))
	})

	t.Run("empty snapshot yields no capacity", func(t *testing.T) {
		_, err := Select(topo, registry.Snapshot{}, domain.CategoryOpus)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNoCapacity))
	})
}
