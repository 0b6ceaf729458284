// Package scheduler partitions batch requests against project and daily
// quotas, then drives the admitted domains through provisioning with a
// bounded worker pool. One domain's failure never aborts the batch.
package scheduler

import (
	"strings"
	"time"

	contracts "hangar/contracts/events"
	"hangar/internal/poller"
	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/domain"
)

// Scope names whose occupancy feeds the quota arithmetic: the whole
// platform, or one category's site pool. A category scope also pins every
// domain in the batch to that category, overriding the classifier.
type Scope string

// ScopePlatform counts occupancy across every known site.
const ScopePlatform Scope = "platform"

const categoryScopePrefix = "category:"

// ScopeCategory builds the scope for one category.
func ScopeCategory(c domain.Category) Scope {
	return Scope(categoryScopePrefix + c.String())
}

// ParseScope validates external scope input. Empty means platform.
func ParseScope(s string) (Scope, error) {
	if s == "" || s == string(ScopePlatform) {
		return ScopePlatform, nil
	}
	if raw, ok := strings.CutPrefix(s, categoryScopePrefix); ok {
		category, err := domain.ParseCategory(raw)
		if err != nil {
			return "", err
		}
		return ScopeCategory(category), nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, `scope must be "platform" or "category:<name>"`)
}

// Category returns the scoped category, false for the platform scope.
func (s Scope) Category() (domain.Category, bool) {
	if raw, ok := strings.CutPrefix(string(s), categoryScopePrefix); ok {
		return domain.Category(raw), true
	}
	return "", false
}

// String returns the wire representation of the scope.
func (s Scope) String() string {
	return string(s)
}

// RunState tracks a batch run's lifecycle.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
)

// Result reasons. The quota gate fails domains outright; the admission trim
// skips them for a later batch.
const (
	ReasonQuotaExhausted      = "quota exhausted"
	ReasonExceedsQuota        = "exceeds quota"
	ReasonExceedsBatchLimit   = "exceeds batch limit"
	ReasonProvisioningFailed  = "routing or certificate provisioning failed"
	ReasonProvisioningTimeout = "provisioning timeout"
)

// QuotaSnapshot records the quota arithmetic the run was admitted under.
type QuotaSnapshot struct {
	ProjectQuota int `json:"projectQuota"`
	Occupied     int `json:"occupied"`
	DailyLimit   int `json:"dailyLimit,omitempty"`
	IssuedToday  int `json:"issuedToday,omitempty"`
	Remaining    int `json:"remaining"`
}

// DomainResult is the final word on one requested domain. SubmittedAt is
// nil for domains that never reached the platform.
type DomainResult struct {
	Domain       string          `json:"domain"`
	Category     domain.Category `json:"category,omitempty"`
	SiteID       domain.SiteID   `json:"siteId,omitempty"`
	Status       poller.State    `json:"status,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Attempts     int             `json:"attempts,omitempty"`
	FallbackUsed bool            `json:"fallbackUsed,omitempty"`
	SubmittedAt  *time.Time      `json:"submittedAt,omitempty"`
	CompletedAt  time.Time       `json:"completedAt"`
}

// BatchRun is one batch execution: the quota snapshot it was admitted
// under, the admission split, and every domain's final bucket.
type BatchRun struct {
	ID          domain.BatchID `json:"id"`
	Scope       Scope          `json:"scope"`
	State       RunState       `json:"state"`
	Quota       QuotaSnapshot  `json:"quota"`
	Requested   []string       `json:"requested"`
	Admitted    []string       `json:"admitted,omitempty"`
	Deferred    []string       `json:"deferred,omitempty"`
	Successful  []DomainResult `json:"successful,omitempty"`
	Failed      []DomainResult `json:"failed,omitempty"`
	Skipped     []DomainResult `json:"skipped,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// Summary condenses the run for batch.completed events and log lines.
func (r BatchRun) Summary() contracts.BatchSummary {
	return contracts.BatchSummary{
		Requested:  len(r.Requested),
		Admitted:   len(r.Admitted),
		Successful: len(r.Successful),
		Failed:     len(r.Failed),
		Skipped:    len(r.Skipped),
	}
}
