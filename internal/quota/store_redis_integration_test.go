//go:build integration

package quota_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hangar/internal/quota"
	"hangar/pkg/testutil/containers"
)

type RedisQuotaStoreSuite struct {
	suite.Suite
	store *quota.RedisStore
}

func TestRedisQuotaStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisQuotaStoreSuite))
}

func (s *RedisQuotaStoreSuite) SetupTest() {
	rc := containers.GetManager().GetRedis(s.T())
	s.Require().NoError(rc.FlushAll(context.Background()))
	s.store = quota.NewRedisStore(rc.Client)
}

func (s *RedisQuotaStoreSuite) TestIssuedOnEmptyDay() {
	n, err := s.store.IssuedOn(context.Background(), "2026-03-14")
	s.Require().NoError(err)
	s.Equal(0, n)
}

func (s *RedisQuotaStoreSuite) TestAddIssuedAccumulates() {
	ctx := context.Background()

	total, err := s.store.AddIssued(ctx, "2026-03-14", 7)
	s.Require().NoError(err)
	s.Equal(7, total)

	total, err = s.store.AddIssued(ctx, "2026-03-14", 3)
	s.Require().NoError(err)
	s.Equal(10, total)

	n, err := s.store.IssuedOn(ctx, "2026-03-14")
	s.Require().NoError(err)
	s.Equal(10, n)
}

func (s *RedisQuotaStoreSuite) TestDayKeyCarriesExpiry() {
	ctx := context.Background()
	rc := containers.GetManager().GetRedis(s.T())

	_, err := s.store.AddIssued(ctx, "2026-03-14", 1)
	s.Require().NoError(err)

	ttl, err := rc.Client.TTL(ctx, "quota:issued:2026-03-14").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 47*time.Hour)
	s.LessOrEqual(ttl, 48*time.Hour)
}
