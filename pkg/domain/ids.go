package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "hangar/pkg/domain-errors"
)

// SiteID identifies a hosting site. Site IDs are lowercase alphanumeric
// tokens with inner hyphens, the grammar hosting platforms accept for site
// names.
//
// Usage: construct via ParseSiteID at trust boundaries; direct casting
// bypasses validation.
type SiteID string

// ParseSiteID validates a raw site identifier.
//
// Errors: returns CodeInvalidInput when the value is empty or outside the
// site-name grammar; no other errors are expected.
func ParseSiteID(s string) (SiteID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "site id cannot be empty")
	}
	if len(s) > maxLabelLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "site id exceeds 63 characters")
	}
	if strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "site id cannot start or end with a hyphen")
	}
	for _, r := range s {
		if !isLabelRune(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "site id contains an unsupported character")
		}
	}
	return SiteID(s), nil
}

// String returns the string representation of the site ID.
func (s SiteID) String() string {
	return string(s)
}

// IsNil returns true if the site ID is empty.
func (s SiteID) IsNil() bool {
	return s == ""
}

// BatchID identifies a batch provisioning run.
// Invariant: must be a valid, non-nil UUID.
type BatchID uuid.UUID

// NewBatchID generates a fresh batch run identifier.
func NewBatchID() BatchID {
	return BatchID(uuid.New())
}

// ParseBatchID constructs a BatchID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, malformed, or the
// nil UUID; no other errors are expected.
func ParseBatchID(s string) (BatchID, error) {
	if s == "" {
		return BatchID{}, dErrors.New(dErrors.CodeInvalidInput, "batch id cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return BatchID{}, dErrors.New(dErrors.CodeInvalidInput, "batch id must be a valid UUID")
	}
	if id == uuid.Nil {
		return BatchID{}, dErrors.New(dErrors.CodeInvalidInput, "batch id cannot be the nil UUID")
	}
	return BatchID(id), nil
}

// String returns the canonical UUID string.
func (b BatchID) String() string {
	return uuid.UUID(b).String()
}

// MarshalText renders the canonical UUID string for JSON and text codecs.
func (b BatchID) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText parses a canonical UUID string.
func (b *BatchID) UnmarshalText(text []byte) error {
	id, err := ParseBatchID(string(text))
	if err != nil {
		return err
	}
	*b = id
	return nil
}

// IsNil returns true if the batch ID is the nil UUID.
func (b BatchID) IsNil() bool {
	return uuid.UUID(b) == uuid.Nil
}
