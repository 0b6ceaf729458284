//go:build integration

package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hangar/internal/hosting"
	"hangar/internal/registry"
	"hangar/pkg/domain"
	"hangar/pkg/platform/sentinel"
	"hangar/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *registry.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = registry.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) snapshot() registry.Snapshot {
	return registry.Snapshot{
		Sites: []hosting.Site{
			{ID: "opus-site-1", DefaultDomain: "opus-site-1.pages.dev", Type: "owned"},
			{ID: "opus-site-2", DefaultDomain: "opus-site-2.pages.dev", Type: "shared"},
		},
		Counts: map[domain.SiteID]int{
			"opus-site-1": 3,
			"opus-site-2": registry.CountUnknown,
		},
		FetchedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *RedisStoreSuite) TestLoadEmpty() {
	_, err := s.store.Load(context.Background())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestSaveLoadRoundTrip() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, s.snapshot()))

	snap, err := s.store.Load(ctx)
	s.Require().NoError(err)
	s.Equal(s.snapshot().Sites, snap.Sites)
	s.Equal(s.snapshot().Counts, snap.Counts)
	s.True(s.snapshot().FetchedAt.Equal(snap.FetchedAt))
}

func (s *RedisStoreSuite) TestSaveReplacesCounts() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, s.snapshot()))

	next := s.snapshot()
	next.Counts = map[domain.SiteID]int{"opus-site-1": 10}
	s.Require().NoError(s.store.Save(ctx, next))

	snap, err := s.store.Load(ctx)
	s.Require().NoError(err)
	s.Equal(map[domain.SiteID]int{"opus-site-1": 10}, snap.Counts)
}

func (s *RedisStoreSuite) TestIncrement() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, s.snapshot()))

	s.Require().NoError(s.store.Increment(ctx, "opus-site-1"))
	s.Require().NoError(s.store.Increment(ctx, "opus-site-1"))

	snap, err := s.store.Load(ctx)
	s.Require().NoError(err)
	s.Equal(5, snap.Counts["opus-site-1"])
}

func (s *RedisStoreSuite) TestIncrementSkipsUnknownAndAbsent() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, s.snapshot()))

	s.Require().NoError(s.store.Increment(ctx, "opus-site-2"))
	s.Require().NoError(s.store.Increment(ctx, "never-seen-site"))

	snap, err := s.store.Load(ctx)
	s.Require().NoError(err)
	s.Equal(registry.CountUnknown, snap.Counts["opus-site-2"])
	s.NotContains(snap.Counts, domain.SiteID("never-seen-site"))
}

func (s *RedisStoreSuite) TestClear() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, s.snapshot()))
	s.Require().NoError(s.store.Clear(ctx))

	_, err := s.store.Load(ctx)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
