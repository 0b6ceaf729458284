package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"hangar/pkg/domain"
)

// SiteSpec declares one hosting site inside a category. Capacity and
// Reserved fall back to the map defaults when zero.
type SiteSpec struct {
	ID       string `yaml:"id"`
	Capacity int    `yaml:"capacity,omitempty"`
	Reserved int    `yaml:"reserved,omitempty"`
}

// CategorySites lists a category's candidate sites in selection order.
type CategorySites struct {
	Name  string     `yaml:"name"`
	Sites []SiteSpec `yaml:"sites"`
}

// SiteDefaults supplies capacity numbers for sites that do not override
// them.
type SiteDefaults struct {
	Capacity int `yaml:"capacity"`
	Reserved int `yaml:"reserved"`
}

// SiteMap is the static category-to-sites topology the selector works from.
// Category order in the file is the fallback scan order.
type SiteMap struct {
	Defaults   SiteDefaults    `yaml:"defaults"`
	Categories []CategorySites `yaml:"categories"`
}

// LoadSiteMap reads and validates a site map file. An empty path returns
// the built-in default topology.
func LoadSiteMap(path string) (*SiteMap, error) {
	if path == "" {
		return DefaultSiteMap(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site map %s: %w", path, err)
	}
	var m SiteMap
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse site map %s: %w", path, err)
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("site map %s: %w", path, err)
	}
	return &m, nil
}

func (m *SiteMap) applyDefaults() {
	if m.Defaults.Capacity == 0 {
		m.Defaults.Capacity = 20
	}
	if m.Defaults.Reserved == 0 {
		m.Defaults.Reserved = 5
	}
	for ci := range m.Categories {
		for si := range m.Categories[ci].Sites {
			s := &m.Categories[ci].Sites[si]
			if s.Capacity == 0 {
				s.Capacity = m.Defaults.Capacity
			}
			if s.Reserved == 0 {
				s.Reserved = m.Defaults.Reserved
			}
		}
	}
}

// Validate rejects topologies the selector cannot work with: unknown
// category names, duplicate site IDs, or capacity numbers that leave no
// usable slots.
func (m *SiteMap) Validate() error {
	if len(m.Categories) == 0 {
		return fmt.Errorf("no categories configured")
	}
	seenCategory := make(map[string]bool)
	seenSite := make(map[string]string)
	for _, c := range m.Categories {
		if _, err := domain.ParseCategory(c.Name); err != nil {
			return fmt.Errorf("category %q: %w", c.Name, err)
		}
		if seenCategory[c.Name] {
			return fmt.Errorf("category %q listed twice", c.Name)
		}
		seenCategory[c.Name] = true
		for _, s := range c.Sites {
			if _, err := domain.ParseSiteID(s.ID); err != nil {
				return fmt.Errorf("category %q site %q: %w", c.Name, s.ID, err)
			}
			if owner, dup := seenSite[s.ID]; dup {
				return fmt.Errorf("site %q listed in both %q and %q", s.ID, owner, c.Name)
			}
			seenSite[s.ID] = c.Name
			if s.Capacity < 1 {
				return fmt.Errorf("site %q: capacity must be positive", s.ID)
			}
			if s.Reserved < 0 || s.Reserved >= s.Capacity {
				return fmt.Errorf("site %q: reserved must satisfy 0 <= reserved < capacity", s.ID)
			}
		}
	}
	if !seenCategory[domain.CategorySpecialty.String()] {
		return fmt.Errorf("category %q must be configured: it is the classifier default and the selector fallback", domain.CategorySpecialty)
	}
	return nil
}

// Sites returns the configured sites for one category, in list order.
func (m *SiteMap) Sites(category domain.Category) []SiteSpec {
	for _, c := range m.Categories {
		if c.Name == category.String() {
			out := make([]SiteSpec, len(c.Sites))
			copy(out, c.Sites)
			return out
		}
	}
	return nil
}

// Category returns which category a site belongs to, if any.
func (m *SiteMap) Category(siteID domain.SiteID) (domain.Category, bool) {
	for _, c := range m.Categories {
		for _, s := range c.Sites {
			if s.ID == siteID.String() {
				return domain.Category(c.Name), true
			}
		}
	}
	return "", false
}

// DefaultSiteMap returns the stock topology used when no file is supplied.
func DefaultSiteMap() *SiteMap {
	numbered := func(prefix string, n int) []SiteSpec {
		sites := make([]SiteSpec, 0, n)
		for i := 1; i <= n; i++ {
			sites = append(sites, SiteSpec{ID: fmt.Sprintf("%s-site-%d", prefix, i), Capacity: 20, Reserved: 5})
		}
		return sites
	}
	m := &SiteMap{
		Defaults: SiteDefaults{Capacity: 20, Reserved: 5},
		Categories: []CategorySites{
			{Name: domain.CategoryCharacter.String(), Sites: numbered("super-agents", 6)},
			{Name: domain.CategoryOpus.String(), Sites: numbered("opus", 8)},
			{Name: domain.CategoryPilot.String(), Sites: numbered("vl-pilots", 13)},
			{Name: domain.CategoryCommand.String(), Sites: numbered("squadron-ops", 4)},
			{Name: domain.CategoryFamily2100.String(), Sites: numbered("2100-corp", 10)},
			{Name: domain.CategoryAixtiv.String(), Sites: numbered("aixtiv-sym", 5)},
			{Name: domain.CategoryGovernance.String(), Sites: numbered("gov-civic", 9)},
			{Name: domain.CategoryAPI.String(), Sites: numbered("bacasu-tech", 12)},
			{Name: domain.CategoryContent.String(), Sites: numbered("ai-pub", 7)},
			{Name: domain.CategorySpecialty.String(), Sites: numbered("specialty", 6)},
		},
	}
	return m
}
