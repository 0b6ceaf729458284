package e2e

import (
	"github.com/cucumber/godog"

	"hangar/e2e/steps/allocation"
	"hangar/e2e/steps/batch"
	"hangar/e2e/steps/common"
	"hangar/e2e/steps/registry"
)

// RegisterSteps registers all step definitions from the modular packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Generic reachability, status and error envelope assertions.
	common.RegisterSteps(ctx, tc)

	// Single-domain classification and placement.
	allocation.RegisterSteps(ctx, tc)

	// Batch runs, quota admission and domain polling.
	batch.RegisterSteps(ctx, tc)

	// Site registry counts and cache refresh.
	registry.RegisterSteps(ctx, tc)
}
