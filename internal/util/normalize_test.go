package util

import "testing"

func TestNormalizePersonName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"DOE^JANE", "doe jane"},
		{"Doe, Jane", "doe jane"},
		{"  doe   jane ", "doe jane"},
		{"LEFÈVRE^ANDRÉ", "lefevre andre"},
		{"Müller^Jürgen", "muller jurgen"},
		{"", ""},
		{"^^", ""},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := NormalizePersonName(tc.in); got != tc.want {
				t.Errorf("NormalizePersonName(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSamePerson(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"DOE^JANE", "Doe, Jane", true},
		{"LEFÈVRE^ANDRÉ", "lefevre andre", true},
		{"DOE^JANE", "DOE^JOHN", false},
		{"", "", false},
		{"^", "  ", false},
	}

	for _, tc := range tests {
		if got := SamePerson(tc.a, tc.b); got != tc.want {
			t.Errorf("SamePerson(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
