package runner

import "testing"

func TestLevenshtein_IdenticalStringsAreZero(t *testing.T) {
	if d := levenshtein("gpt-4o", "gpt-4o"); d != 0 {
		t.Fatalf("got %d, want 0", d)
	}
}

func TestLevenshtein_EmptyStringIsLengthOfOther(t *testing.T) {
	if d := levenshtein("", "abc"); d != 3 {
		t.Fatalf("got %d, want 3", d)
	}
	if d := levenshtein("abc", ""); d != 3 {
		t.Fatalf("got %d, want 3", d)
	}
}

func TestLevenshtein_SingleCharTypo(t *testing.T) {
	if d := levenshtein("gpt-4o-min", "gpt-4o-mini"); d != 1 {
		t.Fatalf("got %d, want 1", d)
	}
}

func TestLevenshtein_Symmetric(t *testing.T) {
	a, b := "claude-3-5-sonnet", "claude-3.5-sonnet"
	if levenshtein(a, b) != levenshtein(b, a) {
		t.Fatal("expected levenshtein to be symmetric")
	}
}
