// Package registrar talks to the domain registrar: availability checks and
// the DNS records it serves for domains the engine provisions. Record
// contents always originate at the hosting platform; this package only
// reads and relays them.
package registrar

import (
	"context"
	"fmt"
	"time"

	"hangar/pkg/domain"
)

// Availability is the registrar's answer to an availability check.
type Availability struct {
	Domain     string `json:"domain"`
	Available  bool   `json:"available"`
	PriceMicro int64  `json:"price"`
	Currency   string `json:"currency"`
}

// Client is the outbound port to the registrar. Implementations: HTTPClient
// for the real API, Fake for tests and dry runs.
type Client interface {
	CheckAvailability(ctx context.Context, name domain.DomainName) (Availability, error)
	Records(ctx context.Context, name domain.DomainName) ([]domain.DNSRecord, error)
	UpsertRecords(ctx context.Context, name domain.DomainName, records []domain.DNSRecord) error
}

// APIError is a non-2xx registrar response. 429 and 5xx are retriable;
// other client errors are terminal.
type APIError struct {
	StatusCode    int
	Code          string
	Message       string
	RetryAfterSec int
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("registrar %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("registrar %d: %s", e.StatusCode, e.Message)
}

// Retriable reports whether the status class is worth retrying.
func (e *APIError) Retriable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// RetryAfter surfaces the registrar's pacing hint when it sent one.
func (e *APIError) RetryAfter() (time.Duration, bool) {
	if e.RetryAfterSec <= 0 {
		return 0, false
	}
	return time.Duration(e.RetryAfterSec) * time.Second, true
}
