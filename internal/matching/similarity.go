package matching

import "github.com/hbollon/go-edlib"

// Distance is the Levenshtein edit distance between a and b with unit costs,
// counted in runes.
func Distance(a, b string) int {
	return edlib.LevenshteinDistance(a, b)
}

// Similarity returns 100 * (maxLen - distance) / maxLen, in [0,100].
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 100
	}
	return 100 * float64(maxLen-Distance(a, b)) / float64(maxLen)
}
