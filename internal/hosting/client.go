// Package hosting talks to the multi-site hosting platform: site inventory,
// per-site domain counts, domain attachment and provisioning status.
package hosting

import (
	"context"
	"fmt"
	"time"

	"hangar/pkg/domain"
)

// Remote status values reported by the platform for routing and
// certificate provisioning.
const (
	StatusActive  = "ACTIVE"
	StatusPending = "PENDING"
	StatusFailed  = "FAILED"
)

// Site is one hosting destination on the platform.
type Site struct {
	ID            domain.SiteID `json:"siteId"`
	DefaultDomain string        `json:"defaultDomain"`
	Type          string        `json:"type"` // owned or shared
}

// DomainStatus is the provisioning state of one attached domain. A domain
// serves traffic only when both routing and certificate are ACTIVE.
type DomainStatus struct {
	Domain     string    `json:"domain"`
	Status     string    `json:"status"`
	CertStatus string    `json:"certStatus"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// FullyActive reports whether routing and certificate are both provisioned.
func (s DomainStatus) FullyActive() bool {
	return s.Status == StatusActive && s.CertStatus == StatusActive
}

// FailedEither reports whether the platform declared routing or certificate
// provisioning failed.
func (s DomainStatus) FailedEither() bool {
	return s.Status == StatusFailed || s.CertStatus == StatusFailed
}

// AddDomainResult is the platform's answer to an attach call: the initial
// status plus the DNS records the registrar must serve for provisioning to
// complete.
type AddDomainResult struct {
	Status  DomainStatus       `json:"status"`
	Records []domain.DNSRecord `json:"dnsRecords"`
}

// Client is the outbound port to the hosting platform. Implementations:
// HTTPClient for the real API, Fake for tests and dry runs.
type Client interface {
	ListSites(ctx context.Context) ([]Site, error)
	DomainCount(ctx context.Context, siteID domain.SiteID) (int, error)
	AddDomain(ctx context.Context, siteID domain.SiteID, name domain.DomainName) (AddDomainResult, error)
	DomainStatus(ctx context.Context, siteID domain.SiteID, name domain.DomainName) (DomainStatus, error)
}

// APIError is a non-2xx platform response. 429 and 5xx are retriable; other
// client errors are terminal.
type APIError struct {
	StatusCode    int
	Code          string
	Message       string
	RetryAfterSec int
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("hosting platform %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("hosting platform %d: %s", e.StatusCode, e.Message)
}

// Retriable reports whether the status class is worth retrying.
func (e *APIError) Retriable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// RetryAfter surfaces the platform's pacing hint when it sent one.
func (e *APIError) RetryAfter() (time.Duration, bool) {
	if e.RetryAfterSec <= 0 {
		return 0, false
	}
	return time.Duration(e.RetryAfterSec) * time.Second, true
}
