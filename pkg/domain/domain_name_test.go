package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "hangar/pkg/domain-errors"
)

// TestParseDomainName_Invariants validates the parsing invariant:
// "domain names must be plausible FQDNs, normalized to lowercase".
func TestParseDomainName_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseDomainName("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects single label", func(t *testing.T) {
		_, err := ParseDomainName("localhost")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects hyphen at label edge", func(t *testing.T) {
		_, err := ParseDomainName("-wing3.example.com")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects empty label", func(t *testing.T) {
		_, err := ParseDomainName("wing3..com")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects numeric TLD", func(t *testing.T) {
		_, err := ParseDomainName("wing3.example.123")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects overlong name", func(t *testing.T) {
		long := strings.Repeat("a", 63) + "." + strings.Repeat("b", 63) + "." +
			strings.Repeat("c", 63) + "." + strings.Repeat("d", 63) + ".com"
		_, err := ParseDomainName(long)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects overlong label", func(t *testing.T) {
		_, err := ParseDomainName(strings.Repeat("a", 64) + ".com")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("normalizes case and trailing dot", func(t *testing.T) {
		name, err := ParseDomainName(" Wing3.Example.COM. ")
		require.NoError(t, err)
		assert.Equal(t, DomainName("wing3.example.com"), name)
	})

	t.Run("accepts hyphenated labels", func(t *testing.T) {
		name, err := ParseDomainName("drgrant-pilot3.example.com")
		require.NoError(t, err)
		assert.Equal(t, "drgrant-pilot3", name.Host())
		assert.Equal(t, []string{"drgrant-pilot3", "example", "com"}, name.Labels())
	})
}

func TestParseSiteID(t *testing.T) {
	t.Run("accepts site grammar", func(t *testing.T) {
		id, err := ParseSiteID("vl-pilots-site-7")
		require.NoError(t, err)
		assert.Equal(t, SiteID("vl-pilots-site-7"), id)
	})

	t.Run("lowercases input", func(t *testing.T) {
		id, err := ParseSiteID("Opus-Site-1")
		require.NoError(t, err)
		assert.Equal(t, SiteID("opus-site-1"), id)
	})

	t.Run("rejects empty and bad runes", func(t *testing.T) {
		for _, raw := range []string{"", "site one", "site_1", "-site", "site-"} {
			_, err := ParseSiteID(raw)
			require.Error(t, err, "input %q", raw)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		}
	})
}

func TestParseBatchID(t *testing.T) {
	t.Run("rejects empty, malformed, and nil", func(t *testing.T) {
		for _, raw := range []string{"", "not-a-uuid", "00000000-0000-0000-0000-000000000000"} {
			_, err := ParseBatchID(raw)
			require.Error(t, err, "input %q", raw)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		}
	})

	t.Run("round-trips a generated ID", func(t *testing.T) {
		id := NewBatchID()
		parsed, err := ParseBatchID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})
}
