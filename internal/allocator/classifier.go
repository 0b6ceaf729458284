package allocator

import (
	"regexp"
	"strings"

	"hangar/pkg/domain"
)

// Rule is one classification rule. Rules are evaluated in table order and
// the first match wins, so narrower rules must precede the broader ones
// they overlap with.
type Rule struct {
	Name     string
	Pattern  string
	Category domain.Category
	match    func(name string, labels []string) bool
}

var (
	pilotSerialRe = regexp.MustCompile(`(^|[.-])p\d+([.-]|$)`)
	wingSerialRe  = regexp.MustCompile(`(^|[.-])wings?-?\d*([.-]|$)`)
)

// personaNames are the named agents whose domains live on character sites.
var personaNames = []string{
	"drlucy", "drgrant", "drburby", "drsabina", "drmemoria", "drmatch",
	"drcypriot", "drmaria", "drroark", "drclaude", "professorlee",
}

// classifierRules is ordered. Pilot serials run before personas so a
// persona-prefixed pilot domain stays a pilot; the bare api rule runs after
// persona and command so their api subdomains keep their home category.
var classifierRules = []Rule{
	{
		Name:     "pilot-serial",
		Pattern:  "label containing pilot, or a p<N> serial token",
		Category: domain.CategoryPilot,
		match: func(name string, labels []string) bool {
			return anyLabelContains(labels, "pilot") || pilotSerialRe.MatchString(name)
		},
	},
	{
		Name:     "wing-serial",
		Pattern:  "wing or wing<N> serial token",
		Category: domain.CategoryOpus,
		match: func(name string, labels []string) bool {
			return wingSerialRe.MatchString(name)
		},
	},
	{
		Name:     "persona",
		Pattern:  "named agent label (drlucy, drgrant, ...)",
		Category: domain.CategoryCharacter,
		match: func(name string, labels []string) bool {
			for _, label := range labels {
				flat := strings.ReplaceAll(label, "-", "")
				for _, persona := range personaNames {
					if strings.Contains(flat, persona) {
						return true
					}
				}
			}
			return false
		},
	},
	{
		Name:     "command",
		Pattern:  "command or squadron label, or an hq token",
		Category: domain.CategoryCommand,
		match: func(name string, labels []string) bool {
			return anyLabelContains(labels, "command", "squadron") || anyTokenEquals(labels, "hq")
		},
	},
	{
		Name:     "family-2100",
		Pattern:  "label containing 2100",
		Category: domain.CategoryFamily2100,
		match: func(name string, labels []string) bool {
			return anyLabelContains(labels, "2100")
		},
	},
	{
		Name:     "brand",
		Pattern:  "aixtiv, asoos or symphony label",
		Category: domain.CategoryAixtiv,
		match: func(name string, labels []string) bool {
			return anyLabelContains(labels, "aixtiv", "asoos", "symphony")
		},
	},
	{
		Name:     "governance",
		Pattern:  "gov or civic label",
		Category: domain.CategoryGovernance,
		match: func(name string, labels []string) bool {
			return anyLabelContains(labels, "gov", "civic")
		},
	},
	{
		Name:     "api",
		Pattern:  "a label equal to api",
		Category: domain.CategoryAPI,
		match: func(name string, labels []string) bool {
			return anyLabelEquals(labels, "api")
		},
	},
	{
		Name:     "content",
		Pattern:  "anthology, publish, content or media label",
		Category: domain.CategoryContent,
		match: func(name string, labels []string) bool {
			return anyLabelContains(labels, "anthology", "publish", "content", "media")
		},
	},
}

// Classify maps a domain name to its category. Pure and total: names no
// rule matches land in the default specialty category.
func Classify(name domain.DomainName) domain.Category {
	if rule, ok := Explain(name); ok {
		return rule.Category
	}
	return domain.CategoryDefault
}

// Explain returns the first rule matching the name, or false when the name
// falls through to the default category.
func Explain(name domain.DomainName) (Rule, bool) {
	raw := name.String()
	labels := name.Labels()
	for _, rule := range classifierRules {
		if rule.match(raw, labels) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Rules returns a copy of the ordered rule table.
func Rules() []Rule {
	out := make([]Rule, len(classifierRules))
	copy(out, classifierRules)
	return out
}

func anyLabelContains(labels []string, keywords ...string) bool {
	for _, label := range labels {
		for _, keyword := range keywords {
			if strings.Contains(label, keyword) {
				return true
			}
		}
	}
	return false
}

func anyLabelEquals(labels []string, value string) bool {
	for _, label := range labels {
		if label == value {
			return true
		}
	}
	return false
}

func anyTokenEquals(labels []string, value string) bool {
	for _, label := range labels {
		for _, token := range strings.Split(label, "-") {
			if token == value {
				return true
			}
		}
	}
	return false
}
