package domain

import dErrors "hangar/pkg/domain-errors"

// Category is a domain value that identifies which hosting site group a
// domain belongs to.
// Invariant: the value must be one of the supported categories.
//
// Usage: construct via ParseCategory at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type Category string

// Supported categories.
const (
	CategoryCharacter  Category = "character"
	CategoryOpus       Category = "opus"
	CategoryPilot      Category = "pilot"
	CategoryCommand    Category = "command"
	CategoryFamily2100 Category = "family-2100"
	CategoryAixtiv     Category = "aixtiv"
	CategoryGovernance Category = "governance"
	CategoryAPI        Category = "api"
	CategoryContent    Category = "content"
	CategorySpecialty  Category = "specialty"
)

// CategoryDefault is assigned when no classification rule matches.
const CategoryDefault = CategorySpecialty

// validCategories is the single source of truth for valid categories.
var validCategories = map[Category]bool{
	CategoryCharacter:  true,
	CategoryOpus:       true,
	CategoryPilot:      true,
	CategoryCommand:    true,
	CategoryFamily2100: true,
	CategoryAixtiv:     true,
	CategoryGovernance: true,
	CategoryAPI:        true,
	CategoryContent:    true,
	CategorySpecialty:  true,
}

// categoryOrder fixes the enumeration order for listings.
var categoryOrder = []Category{
	CategoryCharacter,
	CategoryOpus,
	CategoryPilot,
	CategoryCommand,
	CategoryFamily2100,
	CategoryAixtiv,
	CategoryGovernance,
	CategoryAPI,
	CategoryContent,
	CategorySpecialty,
}

// ParseCategory constructs a Category from external input.
//
// Usage: call from handlers/adapters when parsing requests.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported; no
// other errors are expected.
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "category cannot be empty")
	}
	c := Category(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid category")
	}
	return c, nil
}

// IsValid checks if the category is one of the supported enum values.
func (c Category) IsValid() bool {
	return validCategories[c]
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// Categories returns all supported categories in enumeration order.
func Categories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}
