// Package phone normalizes user-entered WhatsApp numbers into the 62-prefixed international form.
package phone

import "strings"

// CountryCode is the international prefix every normalized number starts with.
const CountryCode = "62"

// Normalize strips every non-digit character and rewrites the result to start with CountryCode.
// A leading 0 is replaced by the country code, a number already starting with 62 is kept, and
// anything else gets the country code prepended. Empty input yields just the country code.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + len(CountryCode))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "0"):
		return CountryCode + digits[1:]
	case strings.HasPrefix(digits, CountryCode):
		return digits
	default:
		return CountryCode + digits
	}
}
