//go:build integration

package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hangar/internal/scheduler"
	"hangar/pkg/domain"
	"hangar/pkg/platform/sentinel"
	"hangar/pkg/testutil/containers"
)

type PostgresRunStoreSuite struct {
	suite.Suite
	store *scheduler.PostgresRunStore
}

func TestPostgresRunStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresRunStoreSuite))
}

func (s *PostgresRunStoreSuite) SetupSuite() {
	pc := containers.GetManager().GetPostgres(s.T())
	s.store = scheduler.NewPostgresRunStore(pc.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresRunStoreSuite) SetupTest() {
	pc := containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(pc.TruncateTables(context.Background(), "batch_runs"))
}

func (s *PostgresRunStoreSuite) storedRun(startedAt time.Time) scheduler.BatchRun {
	submitted := startedAt.Add(30 * time.Second)
	completed := startedAt.Add(5 * time.Minute)
	return scheduler.BatchRun{
		ID:    domain.NewBatchID(),
		Scope: scheduler.ScopeCategory(domain.CategoryOpus),
		State: scheduler.RunStateCompleted,
		Quota: scheduler.QuotaSnapshot{
			ProjectQuota: 200,
			Occupied:     24,
			Remaining:    176,
		},
		Requested:  []string{"wing3.example.com", "wing4.example.com", "redwing.example.com"},
		Admitted:   []string{"wing3.example.com", "wing4.example.com"},
		Deferred:   []string{"redwing.example.com"},
		Successful: domainResults(submitted, completed),
		Skipped: []scheduler.DomainResult{{
			Domain:      "redwing.example.com",
			Reason:      scheduler.ReasonExceedsBatchLimit,
			CompletedAt: startedAt,
		}},
		StartedAt:   startedAt,
		CompletedAt: &completed,
	}
}

func domainResults(submitted, completed time.Time) []scheduler.DomainResult {
	return []scheduler.DomainResult{
		{
			Domain:      "wing3.example.com",
			Category:    domain.CategoryOpus,
			SiteID:      "opus-site-2",
			Status:      "ACTIVE",
			Attempts:    1,
			SubmittedAt: &submitted,
			CompletedAt: completed,
		},
	}
}

func (s *PostgresRunStoreSuite) TestCreateThenGetRoundTrips() {
	ctx := context.Background()
	run := s.storedRun(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	s.Require().NoError(s.store.Create(ctx, run))

	got, err := s.store.Get(ctx, run.ID)
	s.Require().NoError(err)
	s.Equal(run.ID, got.ID)
	s.Equal(run.Scope, got.Scope)
	s.Equal(run.Quota, got.Quota)
	s.Equal(run.Requested, got.Requested)
	s.Equal(run.Skipped[0].Reason, got.Skipped[0].Reason)
	s.Require().NotNil(got.CompletedAt)
	s.True(run.CompletedAt.Equal(*got.CompletedAt))
}

func (s *PostgresRunStoreSuite) TestCreateTwiceReportsConflict() {
	ctx := context.Background()
	run := s.storedRun(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	s.Require().NoError(s.store.Create(ctx, run))
	s.ErrorIs(s.store.Create(ctx, run), sentinel.ErrConflict)
}

func (s *PostgresRunStoreSuite) TestGetMissingReportsNotFound() {
	_, err := s.store.Get(context.Background(), domain.NewBatchID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresRunStoreSuite) TestUpdateReplacesRun() {
	ctx := context.Background()
	startedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := s.storedRun(startedAt)
	run.State = scheduler.RunStateRunning
	run.CompletedAt = nil
	run.Successful = nil

	s.Require().NoError(s.store.Create(ctx, run))

	completed := startedAt.Add(10 * time.Minute)
	run.State = scheduler.RunStateCompleted
	run.CompletedAt = &completed
	run.Successful = domainResults(startedAt.Add(time.Minute), completed)
	s.Require().NoError(s.store.Update(ctx, run))

	got, err := s.store.Get(ctx, run.ID)
	s.Require().NoError(err)
	s.Equal(scheduler.RunStateCompleted, got.State)
	s.Len(got.Successful, 1)
}

func (s *PostgresRunStoreSuite) TestUpdateMissingReportsNotFound() {
	run := s.storedRun(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.ErrorIs(s.store.Update(context.Background(), run), sentinel.ErrNotFound)
}

func (s *PostgresRunStoreSuite) TestListNewestFirstWithLimit() {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	oldest := s.storedRun(base)
	middle := s.storedRun(base.Add(time.Hour))
	newest := s.storedRun(base.Add(2 * time.Hour))
	for _, run := range []scheduler.BatchRun{middle, oldest, newest} {
		s.Require().NoError(s.store.Create(ctx, run))
	}

	runs, err := s.store.List(ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(runs, 3)
	s.Equal(newest.ID, runs[0].ID)
	s.Equal(middle.ID, runs[1].ID)
	s.Equal(oldest.ID, runs[2].ID)

	runs, err = s.store.List(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(runs, 1)
	s.Equal(newest.ID, runs[0].ID)
}
