//go:build go1.18

package domain

import (
	"strings"
	"testing"
)

// FuzzParseDomainName tests that parsing never panics on arbitrary input
// and always returns either a valid name or an error.
//
// Justification: Trust boundary functions must handle arbitrary input safely.
// Fuzz tests verify no panics and consistent invariants.
func FuzzParseDomainName(f *testing.F) {
	// Seed corpus with interesting inputs
	f.Add("")
	f.Add("wing3.example.com")
	f.Add("drgrant-pilot3.example.com")
	f.Add("WING3.EXAMPLE.COM.")
	f.Add("..")
	f.Add("a.b")
	f.Add("-leading.example.com")
	f.Add("exa mple.com")
	f.Add(strings.Repeat("a", 300) + ".com")
	f.Add(string([]byte{0x00, 0x01, 0x02}) + ".com")

	f.Fuzz(func(t *testing.T, input string) {
		name, err := ParseDomainName(input)
		if err != nil {
			return
		}

		// Valid names must round-trip unchanged
		roundTrip, err2 := ParseDomainName(name.String())
		if err2 != nil {
			t.Errorf("valid name failed round-trip: %v", err2)
		}
		if roundTrip != name {
			t.Error("round-trip changed name value")
		}

		// Normalization invariant: already lowercase, no trailing dot
		if name.String() != strings.ToLower(name.String()) {
			t.Error("name not lowercased")
		}
		if strings.HasSuffix(name.String(), ".") {
			t.Error("name retained trailing dot")
		}
		if len(name.Labels()) < 2 {
			t.Error("accepted name with fewer than two labels")
		}
	})
}
