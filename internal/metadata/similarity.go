package metadata

import (
	"strings"

	"github.com/hyperjump/kensaku/pkg/utils"
)

// LevenshteinDistance calculates the minimum number of single-character edits
// (insertions, deletions, or substitutions) required to change one string into another.
func LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	runesA := []rune(a)
	runesB := []rune(b)
	if len(runesA) == 0 {
		return len(runesB)
	}
	if len(runesB) == 0 {
		return len(runesA)
	}

	// Two rows are enough.
	prev := make([]int, len(runesB)+1)
	curr := make([]int, len(runesB)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(runesA); i++ {
		curr[0] = i
		for j := 1; j <= len(runesB); j++ {
			cost := 0
			if runesA[i-1] != runesB[j-1] {
				cost = 1
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(runesB)]
}

// EditSimilarity returns 1 - distance/maxLen over runes, in [0, 1].
func EditSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := max(la, lb)
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(LevenshteinDistance(a, b))/float64(maxLen)
}

// WordContainment returns the fraction of the query's words present in value.
func WordContainment(query, value string) float64 {
	q := utils.WordSet(query)
	if len(q) == 0 {
		return 0
	}
	v := utils.WordSet(value)
	found := 0
	for w := range q {
		if _, ok := v[w]; ok {
			found++
		}
	}
	return float64(found) / float64(len(q))
}

// Similarity is the fuzzy score between a query value and a stored value: the
// better of edit similarity and word containment, after case normalization.
func Similarity(query, value string) float64 {
	q := normalize(query)
	v := normalize(value)
	if q == v {
		return 1.0
	}
	return max(EditSimilarity(q, v), WordContainment(q, v))
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
