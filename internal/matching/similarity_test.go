package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"parmesan", "parmesean", 1},
		{"café", "cafe", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Distance(tt.a, tt.b))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 100.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("abc", ""))
	assert.InDelta(t, 57.142857, Similarity("kitten", "sitting"), 0.0001)
	assert.InDelta(t, 88.888888, Similarity("parmesan", "parmesean"), 0.0001)
}

func TestSimilarity_Identity(t *testing.T) {
	for _, s := range []string{"", "a", "bell pepper", "allpurpose flour", "ñandú"} {
		assert.Equal(t, 100.0, Similarity(s, s), s)
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	words := []string{"", "salt", "sugar", "saffron", "bell pepper", "red bell pepper", "kitten", "sitting"}

	for _, a := range words {
		for _, b := range words {
			sab := Similarity(a, b)
			assert.Equal(t, sab, Similarity(b, a), "%q vs %q", a, b)
			assert.GreaterOrEqual(t, sab, 0.0)
			assert.LessOrEqual(t, sab, 100.0)
		}
	}
}
