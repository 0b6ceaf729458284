package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hangar/pkg/domain"
)

func TestDefaultSiteMap(t *testing.T) {
	m := DefaultSiteMap()
	require.NoError(t, m.Validate())

	for _, c := range domain.Categories() {
		assert.NotEmpty(t, m.Sites(c), "category %s has no sites", c)
	}

	pilots := m.Sites(domain.CategoryPilot)
	require.Len(t, pilots, 13)
	assert.Equal(t, "vl-pilots-site-1", pilots[0].ID)
	assert.Equal(t, 20, pilots[0].Capacity)
	assert.Equal(t, 5, pilots[0].Reserved)
}

func TestLoadSiteMap_File(t *testing.T) {
	raw := `
defaults:
  capacity: 10
  reserved: 2
categories:
  - name: opus
    sites:
      - id: opus-site-1
      - id: opus-site-2
        capacity: 40
        reserved: 8
  - name: specialty
    sites:
      - id: specialty-site-1
`
	path := filepath.Join(t.TempDir(), "sites.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	m, err := LoadSiteMap(path)
	require.NoError(t, err)

	opus := m.Sites(domain.CategoryOpus)
	require.Len(t, opus, 2)
	assert.Equal(t, 10, opus[0].Capacity, "map defaults fill omitted capacity")
	assert.Equal(t, 2, opus[0].Reserved)
	assert.Equal(t, 40, opus[1].Capacity, "site override wins")
	assert.Equal(t, 8, opus[1].Reserved)

	cat, ok := m.Category(domain.SiteID("opus-site-2"))
	require.True(t, ok)
	assert.Equal(t, domain.CategoryOpus, cat)

	_, ok = m.Category(domain.SiteID("unknown-site"))
	assert.False(t, ok)
}

func TestLoadSiteMap_EmptyPathReturnsDefault(t *testing.T) {
	m, err := LoadSiteMap("")
	require.NoError(t, err)
	assert.NotEmpty(t, m.Sites(domain.CategorySpecialty))
}

func TestSiteMapValidate_Rejections(t *testing.T) {
	t.Run("unknown category", func(t *testing.T) {
		m := &SiteMap{Categories: []CategorySites{
			{Name: "warp", Sites: []SiteSpec{{ID: "warp-site-1", Capacity: 10, Reserved: 1}}},
		}}
		assert.Error(t, m.Validate())
	})

	t.Run("duplicate site across categories", func(t *testing.T) {
		m := &SiteMap{Categories: []CategorySites{
			{Name: "opus", Sites: []SiteSpec{{ID: "shared-site-1", Capacity: 10, Reserved: 1}}},
			{Name: "specialty", Sites: []SiteSpec{{ID: "shared-site-1", Capacity: 10, Reserved: 1}}},
		}}
		assert.Error(t, m.Validate())
	})

	t.Run("missing specialty", func(t *testing.T) {
		m := &SiteMap{Categories: []CategorySites{
			{Name: "opus", Sites: []SiteSpec{{ID: "opus-site-1", Capacity: 10, Reserved: 1}}},
		}}
		assert.Error(t, m.Validate())
	})

	t.Run("reserved swallows capacity", func(t *testing.T) {
		m := &SiteMap{Categories: []CategorySites{
			{Name: "specialty", Sites: []SiteSpec{{ID: "specialty-site-1", Capacity: 5, Reserved: 5}}},
		}}
		assert.Error(t, m.Validate())
	})
}
