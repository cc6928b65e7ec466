// Package matching reconciles free-text ingredient and product names coming
// from two independent noisy sources.
package matching

import (
	"regexp"
	"strings"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s]+`)
	multiSpace      = regexp.MustCompile(`\s+`)
)

// NormalizeTitle lowercases, drops everything outside [a-z0-9 ], collapses
// whitespace runs and trims. Used for product titles.
func NormalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeIngredient is NormalizeTitle plus naive plural removal: a single
// trailing "s" is dropped from the last word. Words ending in "ss" and
// one-letter words are left alone so the result is stable when normalized again.
func NormalizeIngredient(s string) string {
	s = NormalizeTitle(s)
	n := len(s)
	if n < 2 || s[n-1] != 's' {
		return s
	}
	prev := s[n-2]
	if prev == 's' || prev == ' ' {
		return s
	}
	return s[:n-1]
}
