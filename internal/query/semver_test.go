package query

import "testing"

func TestMatchVersionTilde(t *testing.T) {
	if !MatchVersion("~1.2.0", "1.2.5") {
		t.Fatal("expected ~1.2.0 to match 1.2.5")
	}
	if MatchVersion("~1.2.0", "1.3.0") {
		t.Fatal("expected ~1.2.0 to reject 1.3.0")
	}
}

func TestMatchVersionCaret(t *testing.T) {
	if !MatchVersion("^1.2.0", "1.9.9") {
		t.Fatal("expected ^1.2.0 to match 1.9.9")
	}
	if MatchVersion("^1.2.0", "2.0.0") {
		t.Fatal("expected ^1.2.0 to reject 2.0.0")
	}
}

func TestMatchVersionComparisons(t *testing.T) {
	if !MatchVersion(">=1.0.0", "1.0.0") {
		t.Fatal("expected >=1.0.0 to match 1.0.0")
	}
	if MatchVersion(">1.0.0", "1.0.0") {
		t.Fatal("expected >1.0.0 to reject 1.0.0")
	}
	if !MatchVersion("<2.0.0", "1.9.9") {
		t.Fatal("expected <2.0.0 to match 1.9.9")
	}
	if !MatchVersion("<=1.0.0", "1.0.0") {
		t.Fatal("expected <=1.0.0 to match 1.0.0")
	}
}

func TestMatchVersionExactAndEmpty(t *testing.T) {
	if !MatchVersion("", "9.9.9") {
		t.Fatal("expected empty constraint to match anything")
	}
	if !MatchVersion("=1.2.3", "1.2.3") {
		t.Fatal("expected exact match")
	}
	if MatchVersion("=1.2.3", "1.2.4") {
		t.Fatal("expected exact mismatch to reject")
	}
}

func TestMatchVersionZeroPadsMissingParts(t *testing.T) {
	if !MatchVersion("=1.2", "1.2.0") {
		t.Fatal("expected missing patch part to zero-pad to .0")
	}
}
