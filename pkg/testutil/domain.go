package testutil

import (
	"testing"

	"hangar/pkg/domain"
)

// MustDomainName parses a domain name or fails the test.
func MustDomainName(t *testing.T, raw string) domain.DomainName {
	t.Helper()
	name, err := domain.ParseDomainName(raw)
	if err != nil {
		t.Fatalf("parse domain name %q: %v", raw, err)
	}
	return name
}

// MustSiteID parses a site ID or fails the test.
func MustSiteID(t *testing.T, raw string) domain.SiteID {
	t.Helper()
	id, err := domain.ParseSiteID(raw)
	if err != nil {
		t.Fatalf("parse site id %q: %v", raw, err)
	}
	return id
}

// MustBatchID parses a batch ID or fails the test.
func MustBatchID(t *testing.T, raw string) domain.BatchID {
	t.Helper()
	id, err := domain.ParseBatchID(raw)
	if err != nil {
		t.Fatalf("parse batch id %q: %v", raw, err)
	}
	return id
}
