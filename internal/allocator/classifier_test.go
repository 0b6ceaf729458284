package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hangar/pkg/domain"
)

func mustName(t *testing.T, raw string) domain.DomainName {
	t.Helper()
	name, err := domain.ParseDomainName(raw)
	require.NoError(t, err)
	return name
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		domain string
		want   domain.Category
	}{
		{"pilot keyword", "vl-pilots.example.com", domain.CategoryPilot},
		{"pilot serial", "p2.example.com", domain.CategoryPilot},
		{"pilot serial inner label", "app.p12.example.com", domain.CategoryPilot},
		{"persona-prefixed pilot stays pilot", "drgrant-pilot3.example.com", domain.CategoryPilot},
		{"serial needs a token boundary", "vip2.example.com", domain.CategorySpecialty},
		{"wing serial", "wing3.example.com", domain.CategoryOpus},
		{"wing hyphen serial", "wing-12.example.com", domain.CategoryOpus},
		{"bare wings label", "wings.example.com", domain.CategoryOpus},
		{"wing embedded in a word", "redwing.example.com", domain.CategorySpecialty},
		{"persona", "drlucy.example.com", domain.CategoryCharacter},
		{"persona with hyphen", "professor-lee.example.com", domain.CategoryCharacter},
		{"persona api subdomain stays character", "api.drclaude.example.com", domain.CategoryCharacter},
		{"persona suffix label", "drlucy-live.example.com", domain.CategoryCharacter},
		{"command keyword", "command-center.example.com", domain.CategoryCommand},
		{"squadron keyword", "squadron4.example.com", domain.CategoryCommand},
		{"hq token", "hq.example.com", domain.CategoryCommand},
		{"hq inner token", "ops-hq.example.com", domain.CategoryCommand},
		{"family keyword", "corp2100.example.com", domain.CategoryFamily2100},
		{"family label", "2100-family.example.com", domain.CategoryFamily2100},
		{"brand aixtiv", "aixtiv.example.com", domain.CategoryAixtiv},
		{"brand asoos", "asoos.example.com", domain.CategoryAixtiv},
		{"brand symphony", "symphony-hub.example.com", domain.CategoryAixtiv},
		{"governance gov", "gov-portal.example.com", domain.CategoryGovernance},
		{"governance civic", "civic-engage.example.com", domain.CategoryGovernance},
		{"governance beats bare api", "api.gov-portal.example.com", domain.CategoryGovernance},
		{"api label", "api.example.com", domain.CategoryAPI},
		{"api inner label", "v1.api.example.com", domain.CategoryAPI},
		{"api must be a whole label", "rapid.example.com", domain.CategorySpecialty},
		{"content anthology", "anthology.example.com", domain.CategoryContent},
		{"content publish", "publish-hub.example.com", domain.CategoryContent},
		{"content media", "media.example.com", domain.CategoryContent},
		{"unmatched falls to specialty", "quantum-lab.example.com", domain.CategorySpecialty},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(mustName(t, tc.domain)))
		})
	}

	t.Run("deterministic across repeated calls", func(t *testing.T) {
		for _, tc := range cases {
			name := mustName(t, tc.domain)
			first := Classify(name)
			for i := 0; i < 3; i++ {
				assert.Equal(t, first, Classify(name), "domain %s", tc.domain)
			}
		}
	})

	t.Run("matching is case insensitive via parse normalization", func(t *testing.T) {
		assert.Equal(t, domain.CategoryOpus, Classify(mustName(t, "WING3.Example.COM")))
	})
}

func TestExplain(t *testing.T) {
	t.Run("names the matching rule", func(t *testing.T) {
		rule, ok := Explain(mustName(t, "wing3.example.com"))
		require.True(t, ok)
		assert.Equal(t, "wing-serial", rule.Name)
		assert.Equal(t, domain.CategoryOpus, rule.Category)
	})

	t.Run("first rule wins for overlapping names", func(t *testing.T) {
		rule, ok := Explain(mustName(t, "drgrant-pilot3.example.com"))
		require.True(t, ok)
		assert.Equal(t, "pilot-serial", rule.Name)
	})

	t.Run("reports no rule for default classification", func(t *testing.T) {
		_, ok := Explain(mustName(t, "quantum-lab.example.com"))
		assert.False(t, ok)
	})
}

func TestRules(t *testing.T) {
	rules := Rules()
	require.NotEmpty(t, rules)
	assert.Equal(t, "pilot-serial", rules[0].Name)
	assert.Equal(t, "content", rules[len(rules)-1].Name)

	t.Run("returned table is a copy", func(t *testing.T) {
		rules[0] = Rule{}
		assert.Equal(t, domain.CategoryPilot, Classify(mustName(t, "p2.example.com")))
	})
}
