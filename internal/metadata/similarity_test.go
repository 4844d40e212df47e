package metadata

import (
	"math"
	"testing"
)

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"febo.com", "febo.co", 1},
		{"日本", "日本語", 1},
	}
	for _, tt := range tests {
		if got := LevenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("Febo.com", "febo.com"); got != 1.0 {
		t.Errorf("case-normalized equal should be 1, got %f", got)
	}
	if got := EditSimilarity("febo.co", "febo.com"); math.Abs(got-0.875) > 1e-9 {
		t.Errorf("EditSimilarity = %f, want 0.875", got)
	}
	if got := Similarity("budget report", "Q1 Budget Report (final)"); got != 1.0 {
		t.Errorf("all query words present should score 1, got %f", got)
	}
	if got := Similarity("febo.com", "unrelated.org"); got >= 0.5 {
		t.Errorf("unrelated values should score low, got %f", got)
	}
}
