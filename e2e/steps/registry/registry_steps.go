// Package registry covers the site registry counts endpoint and its cache
// refresh query.
package registry

import (
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the suite context these steps need.
type TestContext interface {
	GET(path string, headers map[string]string) error
	GetLastResponseBody() []byte
	GetResponseField(field string) (interface{}, error)
}

// RegisterSteps registers the registry step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrySteps{tc: tc}

	ctx.Step(`^I fetch the registry counts$`, steps.fetchCounts)
	ctx.Step(`^I refresh the registry counts$`, steps.refreshCounts)
	ctx.Step(`^every site count should be known$`, steps.everyCountKnown)
	ctx.Step(`^the registry should include a "([^"]*)" pool site$`, steps.registryIncludesPoolSite)
}

type registrySteps struct {
	tc TestContext
}

func (s *registrySteps) fetchCounts() error {
	return s.tc.GET("/v1/registry/counts", nil)
}

func (s *registrySteps) refreshCounts() error {
	return s.tc.GET("/v1/registry/counts?refresh=true", nil)
}

func (s *registrySteps) sites() ([]map[string]interface{}, error) {
	raw, err := s.tc.GetResponseField("sites")
	if err != nil {
		return nil, err
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("sites is not a list: %s", s.tc.GetLastResponseBody())
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *registrySteps) everyCountKnown() error {
	sites, err := s.sites()
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		return fmt.Errorf("registry reports no sites")
	}
	for _, site := range sites {
		if known, _ := site["known"].(bool); !known {
			return fmt.Errorf("site %v has no usable count", site["siteId"])
		}
	}
	return nil
}

func (s *registrySteps) registryIncludesPoolSite(pool string) error {
	sites, err := s.sites()
	if err != nil {
		return err
	}
	for _, site := range sites {
		if id, _ := site["siteId"].(string); strings.HasPrefix(id, pool+"-site-") {
			return nil
		}
	}
	return fmt.Errorf("no %s pool site in registry: %s", pool, s.tc.GetLastResponseBody())
}
