package leadimport

import "strings"

// Deduplicate collapses records sharing an identity within one parsed batch.
// Identity is the lowercased real email or the normalized phone; the first
// occurrence wins and later duplicates are discarded, not merged. Placeholder
// emails never participate in email identity since they are unique by
// construction.
func Deduplicate(records []CanonicalRecord) []CanonicalRecord {
	seenEmails := make(map[string]struct{}, len(records))
	seenPhones := make(map[string]struct{}, len(records))

	out := make([]CanonicalRecord, 0, len(records))
	for _, rec := range records {
		email := strings.ToLower(rec.Email)
		if !rec.IsEmailPlaceholder {
			if _, dup := seenEmails[email]; dup {
				continue
			}
		}
		if rec.NormalizedPhone != "" {
			if _, dup := seenPhones[rec.NormalizedPhone]; dup {
				continue
			}
		}

		if !rec.IsEmailPlaceholder {
			seenEmails[email] = struct{}{}
		}
		if rec.NormalizedPhone != "" {
			seenPhones[rec.NormalizedPhone] = struct{}{}
		}
		out = append(out, rec)
	}
	return out
}
