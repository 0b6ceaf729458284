package hosting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hangar/pkg/platform/sentinel"
)

func TestFake_Provisioning(t *testing.T) {
	ctx := context.Background()
	site := mustSite(t, "opus-site-1")
	name := mustDomain(t, "wing3.example.com")

	fake := NewFake(FakeSite{ID: site, Occupied: 3})
	fake.PendingPolls = 2

	count, err := fake.DomainCount(ctx, site)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	result, err := fake.AddDomain(ctx, site, name)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status.Status)
	require.Len(t, result.Records, 2)
	assert.Equal(t, DefaultIngressIP, result.Records[0].Data)

	// Occupancy reflects the attach immediately.
	count, err = fake.DomainCount(ctx, site)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// Two pending reads, then fully active.
	for i := 0; i < 2; i++ {
		status, err := fake.DomainStatus(ctx, site, name)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, status.Status)
	}
	status, err := fake.DomainStatus(ctx, site, name)
	require.NoError(t, err)
	assert.True(t, status.FullyActive())

	// Re-attaching the same domain conflicts.
	_, err = fake.AddDomain(ctx, site, name)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestFake_ScriptedFailure(t *testing.T) {
	ctx := context.Background()
	site := mustSite(t, "opus-site-1")
	name := mustDomain(t, "doomed.example.com")

	fake := NewFake(FakeSite{ID: site})
	fake.PendingPolls = 1
	fake.FailProvisioning(name)

	_, err := fake.AddDomain(ctx, site, name)
	require.NoError(t, err)

	status, err := fake.DomainStatus(ctx, site, name)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status.Status)

	status, err = fake.DomainStatus(ctx, site, name)
	require.NoError(t, err)
	assert.True(t, status.FailedEither())
}

func TestFake_InjectedErrors(t *testing.T) {
	ctx := context.Background()
	site := mustSite(t, "opus-site-1")

	fake := NewFake(FakeSite{ID: site, Occupied: 9})
	fake.FailCount(site, assert.AnError)

	_, err := fake.DomainCount(ctx, site)
	assert.ErrorIs(t, err, assert.AnError)

	fake.FailCount(site, nil)
	count, err := fake.DomainCount(ctx, site)
	require.NoError(t, err)
	assert.Equal(t, 9, count)

	_, err = fake.DomainCount(ctx, mustSite(t, "missing-site"))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
