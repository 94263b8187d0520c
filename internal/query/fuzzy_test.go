package query

import "testing"

func TestFuzzyMatchSubstring(t *testing.T) {
	if !FuzzyMatch("file", "read_file") {
		t.Fatal("expected substring match between 'file' and 'read_file'")
	}
}

func TestFuzzyMatchExact(t *testing.T) {
	if !FuzzyMatch("Read_File", "read_file") {
		t.Fatal("expected case-insensitive exact match")
	}
}

func TestFuzzyMatchBelowThresholdRejects(t *testing.T) {
	if FuzzyMatch("authn", "authentication") {
		t.Fatal("expected 'authn' vs 'authentication' to fall below the similarity threshold")
	}
}

func TestFuzzyMatchAboveThresholdAccepts(t *testing.T) {
	if !FuzzyMatch("registri", "registry") {
		t.Fatal("expected 'registri' vs 'registry' to clear the similarity threshold")
	}
}

func TestLevenshteinKnownDistances(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"", "abc", 3},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q,%q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
