package httptransport

import (
	"strings"

	dErrors "hangar/pkg/domain-errors"
	pkgstrings "hangar/pkg/platform/strings"
)

// MaxBatchDomains bounds one submission body. The scheduler applies its own
// per-run admission cap; this guard only stops unreasonable payloads.
const MaxBatchDomains = 1000

// AllocateRequest is the body for POST /v1/allocations.
type AllocateRequest struct {
	Domain   string `json:"domain"`
	Category string `json:"category,omitempty"`
}

// Validate trims and checks presence. Domain and category grammar is
// checked by the engine so the CLI and HTTP agree on it.
func (r *AllocateRequest) Validate() error {
	r.Domain = strings.TrimSpace(r.Domain)
	if r.Domain == "" {
		return dErrors.New(dErrors.CodeValidation, "domain is required")
	}
	r.Category = strings.TrimSpace(r.Category)
	return nil
}

// BatchSubmitRequest is the body for POST /v1/batches.
type BatchSubmitRequest struct {
	Scope   string   `json:"scope,omitempty"`
	Domains []string `json:"domains"`
	Wait    bool     `json:"wait,omitempty"`
}

// Validate normalizes the domain list before admission. Names dedupe
// case-insensitively because domain names parse to lowercase anyway.
func (r *BatchSubmitRequest) Validate() error {
	r.Domains = pkgstrings.DedupeAndTrimLower(r.Domains)
	if len(r.Domains) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one domain is required")
	}
	if len(r.Domains) > MaxBatchDomains {
		return dErrors.New(dErrors.CodeValidation, "too many domains in one submission")
	}
	r.Scope = strings.TrimSpace(r.Scope)
	return nil
}

// PollRequest is the body for POST /v1/domains/{domain}/poll.
type PollRequest struct {
	SiteID string `json:"siteId"`

	// TimeoutSeconds bounds the poll wall clock. Zero uses the poller's
	// configured deadline.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
}

func (r *PollRequest) Validate() error {
	r.SiteID = strings.TrimSpace(r.SiteID)
	if r.SiteID == "" {
		return dErrors.New(dErrors.CodeValidation, "siteId is required")
	}
	if r.TimeoutSeconds < 0 {
		return dErrors.New(dErrors.CodeValidation, "timeoutSeconds must not be negative")
	}
	return nil
}
