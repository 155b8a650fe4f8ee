package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain 10 digit", "5550100199", "5550100199"},
		{"formatted with country code", "+1 (555) 010-0199", "5550100199"},
		{"bare 11 digit with leading 1", "15550100199", "5550100199"},
		{"11 digit not starting with 1", "25550100199", "25550100199"},
		{"dashes and spaces", "555-010-0199", "5550100199"},
		{"short outlier kept", "555-01", "55501"},
		{"long outlier kept", "555010019912345", "555010019912345"},
		{"letters stripped", "555call0199", "5550199"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"", "+1 (555) 010-0199", "15550100199", "555-01", "not a phone", "(555) 010-0199"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", NotSpecified},
		{"ten digits", "5550100199", "(555) 010-0199"},
		{"country code stripped then formatted", "+1 555 010 0199", "(555) 010-0199"},
		{"short number returns original", "555-01", "555-01"},
		{"long number returns original", "555010019912", "555010019912"},
		{"already formatted", "(555) 010-0199", "(555) 010-0199"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.in); got != tt.want {
				t.Errorf("Format(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
