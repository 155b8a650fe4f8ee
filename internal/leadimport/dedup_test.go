package leadimport

import "testing"

func TestDeduplicateByEmail(t *testing.T) {
	// The parser lowercases emails already; dedup must still catch a caller
	// that skipped parsing.
	records := []CanonicalRecord{
		{FirstName: "John", Email: "john@x.com", NormalizedPhone: "5550100001"},
		{FirstName: "Johnny", Email: "JOHN@X.COM", NormalizedPhone: "5550100002"},
	}
	out := Deduplicate(records)
	if len(out) != 1 {
		t.Fatalf("expected 1 record, got %d", len(out))
	}
	if out[0].FirstName != "John" {
		t.Errorf("first occurrence should win, got %q", out[0].FirstName)
	}
}

func TestDeduplicateByPhone(t *testing.T) {
	records := []CanonicalRecord{
		{FirstName: "John", LastName: "Doe", Email: "john@x.com", NormalizedPhone: "5550100001"},
		{FirstName: "JOHN", LastName: "DOE", Email: "other@x.com", NormalizedPhone: "5550100001"},
	}
	out := Deduplicate(records)
	if len(out) != 1 {
		t.Fatalf("identical phones should collapse, got %d records", len(out))
	}
	if out[0].Email != "john@x.com" {
		t.Errorf("first occurrence should win, got %q", out[0].Email)
	}
}

func TestDeduplicatePlaceholdersDoNotCollideOnEmail(t *testing.T) {
	records := []CanonicalRecord{
		{Email: "no_email_1_0@placeholder.com", IsEmailPlaceholder: true, NormalizedPhone: "5550100001"},
		{Email: "no_email_1_1@placeholder.com", IsEmailPlaceholder: true, NormalizedPhone: "5550100002"},
	}
	out := Deduplicate(records)
	if len(out) != 2 {
		t.Fatalf("distinct placeholder records dropped: got %d", len(out))
	}
}

func TestDeduplicateEmptyPhoneNotAnIdentity(t *testing.T) {
	records := []CanonicalRecord{
		{Email: "a@x.com", NormalizedPhone: ""},
		{Email: "b@x.com", NormalizedPhone: ""},
	}
	out := Deduplicate(records)
	if len(out) != 2 {
		t.Fatalf("records without phones must not collide on empty phone, got %d", len(out))
	}
}

func TestDeduplicatePreservesOrder(t *testing.T) {
	records := []CanonicalRecord{
		{Email: "a@x.com"},
		{Email: "b@x.com"},
		{Email: "a@x.com"},
		{Email: "c@x.com"},
	}
	out := Deduplicate(records)
	if len(out) != 3 {
		t.Fatalf("expected 3 records, got %d", len(out))
	}
	want := []string{"a@x.com", "b@x.com", "c@x.com"}
	for i, w := range want {
		if out[i].Email != w {
			t.Errorf("position %d = %q, want %q", i, out[i].Email, w)
		}
	}
}
