// Package batch covers batch submission, quota admission, async runs and
// domain polling through /v1/batches and /v1/domains/{domain}/poll.
package batch

import (
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the suite context these steps need.
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (interface{}, error)
	SetVar(key, value string)
	Var(key string) (string, bool)
}

// RegisterSteps registers the batch and poll step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &batchSteps{tc: tc}

	ctx.Step(`^I run a waiting batch with domains:$`, steps.runWaitingBatchWithTable)
	ctx.Step(`^I run a batch with (\d+) generated domains$`, steps.runBatchWithGenerated)
	ctx.Step(`^I submit an async batch with (\d+) generated domains$`, steps.submitAsyncBatch)
	ctx.Step(`^I wait up to (\d+) seconds for the run to complete$`, steps.waitForRunCompletion)
	ctx.Step(`^the run state should be "([^"]*)"$`, steps.runStateShouldBe)
	ctx.Step(`^the run should report (\d+) successful domains$`, steps.runShouldReportSuccessful)
	ctx.Step(`^every requested domain should be accounted for$`, steps.everyDomainAccountedFor)
	ctx.Step(`^some domains should be skipped with reason "([^"]*)"$`, steps.someDomainsSkippedWithReason)
	ctx.Step(`^every domain should fail with reason "([^"]*)"$`, steps.everyDomainFailsWithReason)
	ctx.Step(`^a waiting batch provisioned the domain "([^"]*)"$`, steps.waitingBatchProvisionedDomain)
	ctx.Step(`^I poll that site for "([^"]*)" with a (\d+) second budget$`, steps.pollLandedSite)
	ctx.Step(`^I poll site "([^"]*)" for "([^"]*)" with a (\d+) second budget$`, steps.pollNamedSite)
	ctx.Step(`^the poll state should be "([^"]*)"$`, steps.pollStateShouldBe)
}

type batchSteps struct {
	tc TestContext
}

func (s *batchSteps) runWaitingBatchWithTable(tbl *godog.Table) error {
	var domains []string
	for _, row := range tbl.Rows {
		if len(row.Cells) > 0 && row.Cells[0].Value != "" {
			domains = append(domains, row.Cells[0].Value)
		}
	}
	return s.tc.POST("/v1/batches", map[string]interface{}{"domains": domains, "wait": true})
}

// runBatchWithGenerated submits n fresh uniquely named domains so reruns
// never collide with names already attached on the platform.
func (s *batchSteps) runBatchWithGenerated(n int) error {
	domains := generateDomains(n)
	return s.tc.POST("/v1/batches", map[string]interface{}{"domains": domains, "wait": true})
}

func (s *batchSteps) submitAsyncBatch(n int) error {
	domains := generateDomains(n)
	if err := s.tc.POST("/v1/batches", map[string]interface{}{"domains": domains}); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 202 {
		return fmt.Errorf("expected 202 accepted, got %d: %s", status, s.tc.GetLastResponseBody())
	}
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	runID, ok := id.(string)
	if !ok || runID == "" {
		return fmt.Errorf("202 response carries no run id: %s", s.tc.GetLastResponseBody())
	}
	s.tc.SetVar("run_id", runID)
	return nil
}

func (s *batchSteps) waitForRunCompletion(seconds int) error {
	runID, ok := s.tc.Var("run_id")
	if !ok {
		return fmt.Errorf("no async run submitted in this scenario")
	}
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	for {
		if err := s.tc.GET("/v1/batches/"+runID, nil); err != nil {
			return err
		}
		if s.tc.GetLastResponseStatus() == 200 {
			if state, err := s.tc.GetResponseField("state"); err == nil && state == "completed" {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("run %s not completed after %ds: %s", runID, seconds, s.tc.GetLastResponseBody())
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func (s *batchSteps) runStateShouldBe(expected string) error {
	state, err := s.tc.GetResponseField("state")
	if err != nil {
		return err
	}
	if state != expected {
		return fmt.Errorf("expected run state %q, got %v: %s", expected, state, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *batchSteps) runShouldReportSuccessful(expected int) error {
	successful := s.resultBucket("successful")
	if len(successful) != expected {
		return fmt.Errorf("expected %d successful domains, got %d: %s", expected, len(successful), s.tc.GetLastResponseBody())
	}
	return nil
}

// everyDomainAccountedFor asserts the totality of a run: each requested
// domain lands in exactly one result bucket.
func (s *batchSteps) everyDomainAccountedFor() error {
	requested, err := s.tc.GetResponseField("requested")
	if err != nil {
		return err
	}
	names, ok := requested.([]interface{})
	if !ok {
		return fmt.Errorf("requested is not a list: %s", s.tc.GetLastResponseBody())
	}
	buckets := make(map[string]int)
	for _, bucket := range []string{"successful", "failed", "skipped"} {
		for _, result := range s.resultBucket(bucket) {
			if name, ok := result["domain"].(string); ok {
				buckets[name]++
			}
		}
	}
	for _, raw := range names {
		name, _ := raw.(string)
		if buckets[name] != 1 {
			return fmt.Errorf("domain %q appears in %d result buckets", name, buckets[name])
		}
	}
	total := len(s.resultBucket("successful")) + len(s.resultBucket("failed")) + len(s.resultBucket("skipped"))
	if total != len(names) {
		return fmt.Errorf("%d requested but %d results", len(names), total)
	}
	return nil
}

func (s *batchSteps) someDomainsSkippedWithReason(reason string) error {
	skipped := s.resultBucket("skipped")
	if len(skipped) == 0 {
		return fmt.Errorf("no skipped domains: %s", s.tc.GetLastResponseBody())
	}
	for _, result := range skipped {
		if got, _ := result["reason"].(string); got != reason {
			return fmt.Errorf("skipped %v with reason %q, expected %q", result["domain"], got, reason)
		}
	}
	return nil
}

func (s *batchSteps) everyDomainFailsWithReason(reason string) error {
	if n := len(s.resultBucket("successful")); n != 0 {
		return fmt.Errorf("expected no successes, got %d", n)
	}
	requested, err := s.tc.GetResponseField("requested")
	if err != nil {
		return err
	}
	names, _ := requested.([]interface{})
	failed := s.resultBucket("failed")
	if len(failed) != len(names) {
		return fmt.Errorf("expected all %d domains failed, got %d", len(names), len(failed))
	}
	for _, result := range failed {
		if got, _ := result["reason"].(string); got != reason {
			return fmt.Errorf("domain %v failed with reason %q, expected %q", result["domain"], got, reason)
		}
	}
	return nil
}

func (s *batchSteps) waitingBatchProvisionedDomain(name string) error {
	if err := s.tc.POST("/v1/batches", map[string]interface{}{"domains": []string{name}, "wait": true}); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 200 {
		return fmt.Errorf("batch answered %d: %s", status, s.tc.GetLastResponseBody())
	}
	siteID, err := s.tc.GetResponseField("successful.0.siteId")
	if err != nil {
		return fmt.Errorf("domain %s did not provision: %s", name, s.tc.GetLastResponseBody())
	}
	id, _ := siteID.(string)
	s.tc.SetVar("landed_site", id)
	return nil
}

func (s *batchSteps) pollLandedSite(name string, seconds int) error {
	siteID, ok := s.tc.Var("landed_site")
	if !ok {
		return fmt.Errorf("no provisioned site captured in this scenario")
	}
	return s.pollNamedSite(siteID, name, seconds)
}

func (s *batchSteps) pollNamedSite(siteID, name string, seconds int) error {
	return s.tc.POST("/v1/domains/"+name+"/poll", map[string]interface{}{
		"siteId":         siteID,
		"timeoutSeconds": seconds,
	})
}

func (s *batchSteps) pollStateShouldBe(expected string) error {
	state, err := s.tc.GetResponseField("state")
	if err != nil {
		return err
	}
	if state != expected {
		return fmt.Errorf("expected poll state %q, got %v: %s", expected, state, s.tc.GetLastResponseBody())
	}
	return nil
}

// resultBucket returns one of the run's result lists as generic maps,
// empty when the bucket is absent.
func (s *batchSteps) resultBucket(bucket string) []map[string]interface{} {
	raw, err := s.tc.GetResponseField(bucket)
	if err != nil {
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

var generation int

// generateDomains mints unique names that classify into the default
// category, so reruns against a reused server never hit name conflicts.
func generateDomains(n int) []string {
	generation++
	stamp := time.Now().UnixNano() % 1_000_000_000
	domains := make([]string, 0, n)
	for i := 0; i < n; i++ {
		domains = append(domains, strings.ToLower(fmt.Sprintf("fleet-%d-%d-%d.example.com", stamp, generation, i)))
	}
	return domains
}
