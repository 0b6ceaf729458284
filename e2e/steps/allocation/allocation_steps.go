// Package allocation covers single-domain classification and placement
// through POST /v1/allocations.
package allocation

import (
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the suite context these steps need.
type TestContext interface {
	POST(path string, body interface{}) error
	GetLastResponseBody() []byte
	GetResponseField(field string) (interface{}, error)
}

// RegisterSteps registers the allocation step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &allocationSteps{tc: tc}

	ctx.Step(`^I allocate the domain "([^"]*)"$`, steps.allocateDomain)
	ctx.Step(`^I allocate the domain "([^"]*)" with category "([^"]*)"$`, steps.allocateDomainWithCategory)
	ctx.Step(`^the allocated category should be "([^"]*)"$`, steps.allocatedCategoryShouldBe)
	ctx.Step(`^the allocated site should be in the "([^"]*)" pool$`, steps.allocatedSiteShouldBeInPool)
}

type allocationSteps struct {
	tc TestContext
}

func (s *allocationSteps) allocateDomain(name string) error {
	return s.tc.POST("/v1/allocations", map[string]string{"domain": name})
}

func (s *allocationSteps) allocateDomainWithCategory(name, category string) error {
	return s.tc.POST("/v1/allocations", map[string]string{"domain": name, "category": category})
}

func (s *allocationSteps) allocatedCategoryShouldBe(expected string) error {
	category, err := s.tc.GetResponseField("category")
	if err != nil {
		return err
	}
	if category != expected {
		return fmt.Errorf("expected category %q, got %v: %s", expected, category, s.tc.GetLastResponseBody())
	}
	return nil
}

// allocatedSiteShouldBeInPool checks the site ID against the pool's naming
// prefix from the built-in topology, e.g. pool "vl-pilots" matches
// vl-pilots-site-3.
func (s *allocationSteps) allocatedSiteShouldBeInPool(pool string) error {
	siteID, err := s.tc.GetResponseField("siteId")
	if err != nil {
		return err
	}
	id, ok := siteID.(string)
	if !ok || !strings.HasPrefix(id, pool+"-site-") {
		return fmt.Errorf("expected a %s pool site, got %v", pool, siteID)
	}
	return nil
}
