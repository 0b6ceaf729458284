package domain

import (
	"strings"

	dErrors "hangar/pkg/domain-errors"
)

// DomainName is a validated, lowercased fully qualified domain name.
// Invariant: non-empty, at most 253 characters, at least two labels, each
// label 1-63 characters of letters, digits and inner hyphens, alphabetic TLD.
//
// Usage: construct via ParseDomainName at trust boundaries; direct casting
// bypasses validation.
type DomainName string

const (
	maxDomainLength = 253
	maxLabelLength  = 63
)

// ParseDomainName validates and normalizes a raw domain string.
//
// Errors: returns CodeInvalidInput for anything that is not a plausible FQDN;
// no other errors are expected.
func ParseDomainName(raw string) (DomainName, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "domain cannot be empty")
	}
	if len(s) > maxDomainLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "domain exceeds 253 characters")
	}
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "domain must have at least two labels")
	}
	for _, label := range labels {
		if err := validateLabel(label); err != nil {
			return "", err
		}
	}
	if !isAlpha(labels[len(labels)-1]) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "top-level domain must be alphabetic")
	}
	return DomainName(s), nil
}

func validateLabel(label string) error {
	if label == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "domain contains an empty label")
	}
	if len(label) > maxLabelLength {
		return dErrors.New(dErrors.CodeInvalidInput, "domain label exceeds 63 characters")
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return dErrors.New(dErrors.CodeInvalidInput, "domain label cannot start or end with a hyphen")
	}
	for _, r := range label {
		if !isLabelRune(r) {
			return dErrors.New(dErrors.CodeInvalidInput, "domain contains an unsupported character")
		}
	}
	return nil
}

func isLabelRune(r rune) bool {
	return r == '-' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z')
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return s != ""
}

// String returns the normalized name.
func (d DomainName) String() string {
	return string(d)
}

// IsNil returns true if the domain name is empty.
func (d DomainName) IsNil() bool {
	return d == ""
}

// Labels returns the dot-separated labels of the name.
func (d DomainName) Labels() []string {
	if d == "" {
		return nil
	}
	return strings.Split(string(d), ".")
}

// Host returns the leftmost label, the part classification rules inspect
// most often.
func (d DomainName) Host() string {
	labels := d.Labels()
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}
