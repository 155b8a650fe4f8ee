// Package phone canonicalizes phone numbers for identity matching and display.
//
// Two forms exist and must never be mixed up: the normalized digit form is
// used exclusively for matching records against each other and against the
// remote collection; the display form is what gets persisted and shown.
package phone

import (
	"fmt"
	"strings"
)

// NotSpecified is the display value for a missing phone number.
const NotSpecified = "Not Specified"

// Normalize strips every non-digit character from the input. If the result
// is exactly 11 digits and starts with "1", the US country code is dropped.
// Any other length is returned as-is; callers decide what to do with short
// or long outliers. Empty input yields "".
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// Format renders a phone number as "(XXX) XXX-XXXX" when it normalizes to
// exactly 10 digits. Non-standard lengths fall back to the original,
// unnormalized input so no information is lost. Empty input renders as
// NotSpecified.
func Format(raw string) string {
	if raw == "" {
		return NotSpecified
	}
	digits := Normalize(raw)
	if len(digits) != 10 {
		return raw
	}
	return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
}
