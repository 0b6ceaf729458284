package registrar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hangar/pkg/domain"
	"hangar/pkg/platform/sentinel"
)

func TestFake_AvailabilityAndRecords(t *testing.T) {
	ctx := context.Background()
	fake := NewFake()
	name := mustDomain(t, "wing3.example.com")

	avail, err := fake.CheckAvailability(ctx, name)
	require.NoError(t, err)
	assert.True(t, avail.Available)

	fake.MarkTaken(name)
	avail, err = fake.CheckAvailability(ctx, name)
	require.NoError(t, err)
	assert.False(t, avail.Available)

	_, err = fake.Records(ctx, name)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestFake_UpsertMergesByTypeAndName(t *testing.T) {
	ctx := context.Background()
	fake := NewFake()
	name := mustDomain(t, "wing3.example.com")

	fake.SeedRecords(name, []domain.DNSRecord{
		{Type: "A", Name: "@", Data: "198.51.100.1", TTL: 3600},
		{Type: "MX", Name: "@", Data: "mail.example.com", TTL: 3600},
	})

	err := fake.UpsertRecords(ctx, name, []domain.DNSRecord{
		{Type: "A", Name: "@", Data: "203.0.113.10", TTL: 600},
		{Type: "CNAME", Name: "www", Data: "wing3.example.com", TTL: 600},
	})
	require.NoError(t, err)

	records, err := fake.Records(ctx, name)
	require.NoError(t, err)
	require.Len(t, records, 3)

	byKey := make(map[string]domain.DNSRecord)
	for _, r := range records {
		byKey[r.Type+"/"+r.Name] = r
	}
	assert.Equal(t, "203.0.113.10", byKey["A/@"].Data)
	assert.Equal(t, "mail.example.com", byKey["MX/@"].Data)
	assert.Contains(t, byKey, "CNAME/www")

	calls := fake.Upserts()
	require.Len(t, calls, 1)
	assert.Equal(t, name, calls[0].Domain)
}
