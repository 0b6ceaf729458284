package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hangar/internal/hosting"
	"hangar/pkg/domain"
	"hangar/pkg/platform/sentinel"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Sites: []hosting.Site{
			{ID: "opus-site-1", DefaultDomain: "opus-site-1.pages.dev"},
			{ID: "opus-site-2", DefaultDomain: "opus-site-2.pages.dev"},
		},
		Counts: map[domain.SiteID]int{
			"opus-site-1": 3,
			"opus-site-2": CountUnknown,
		},
		FetchedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store reports not found", func(t *testing.T) {
		store := NewMemoryStore()
		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("save then load round-trips", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, testSnapshot()))

		snap, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, testSnapshot(), snap)
	})

	t.Run("load returns a copy", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, testSnapshot()))

		snap, err := store.Load(ctx)
		require.NoError(t, err)
		snap.Counts["opus-site-1"] = 99
		snap.Sites[0].ID = "mutated"

		again, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, again.Counts["opus-site-1"])
		assert.Equal(t, domain.SiteID("opus-site-1"), again.Sites[0].ID)
	})

	t.Run("increment bumps a known count", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, testSnapshot()))
		require.NoError(t, store.Increment(ctx, "opus-site-1"))

		snap, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, snap.Counts["opus-site-1"])
	})

	t.Run("increment leaves unknown counts alone", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, testSnapshot()))
		require.NoError(t, store.Increment(ctx, "opus-site-2"))

		snap, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, CountUnknown, snap.Counts["opus-site-2"])
	})

	t.Run("increment before any save is a no-op", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Increment(ctx, "opus-site-1"))
		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("clear drops the snapshot", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Save(ctx, testSnapshot()))
		require.NoError(t, store.Clear(ctx))

		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestSnapshot(t *testing.T) {
	t.Run("count reports usability", func(t *testing.T) {
		snap := testSnapshot()

		count, ok := snap.Count("opus-site-1")
		assert.True(t, ok)
		assert.Equal(t, 3, count)

		_, ok = snap.Count("opus-site-2")
		assert.False(t, ok, "unknown count is not usable")

		_, ok = snap.Count("absent-site")
		assert.False(t, ok)
	})

	t.Run("staleness honors the TTL", func(t *testing.T) {
		snap := testSnapshot()
		ttl := time.Hour

		assert.False(t, snap.Stale(snap.FetchedAt.Add(59*time.Minute), ttl))
		assert.True(t, snap.Stale(snap.FetchedAt.Add(time.Hour), ttl))
		assert.True(t, Snapshot{}.Stale(snap.FetchedAt, ttl), "empty snapshot is always stale")
	})
}
