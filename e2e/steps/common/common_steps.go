// Package common holds the step definitions shared by every feature:
// reachability, response status and error envelope assertions.
package common

import (
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the suite context these steps need.
type TestContext interface {
	GET(path string, headers map[string]string) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (interface{}, error)
}

// RegisterSteps registers the shared step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the hangar API is reachable$`, steps.apiIsReachable)
	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the error code should be "([^"]*)"$`, steps.errorCodeShouldBe)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) apiIsReachable() error {
	if err := s.tc.GET("/healthz", nil); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 200 {
		return fmt.Errorf("healthz answered %d", status)
	}
	return nil
}

func (s *commonSteps) responseStatusShouldBe(expected int) error {
	if status := s.tc.GetLastResponseStatus(); status != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, status, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) errorCodeShouldBe(expected string) error {
	code, err := s.tc.GetResponseField("error")
	if err != nil {
		return err
	}
	if code != expected {
		return fmt.Errorf("expected error code %q, got %v: %s", expected, code, s.tc.GetLastResponseBody())
	}
	return nil
}
