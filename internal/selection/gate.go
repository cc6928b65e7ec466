// Package selection decides whether a product search result is good enough
// to accept without asking the user.
package selection

import (
	"errors"
	"slices"

	"github.com/fridgechef/api/internal/matching"
	"github.com/fridgechef/api/internal/model"
)

const (
	DefaultThreshold       = 70
	DefaultSuggestionCount = 3
)

// ErrNotInSuggestions is returned when a user picks a product that was not
// offered for review.
var ErrNotInSuggestions = errors.New("product is not one of the suggestions")

// Decision is the outcome of gating a ranked candidate list.
type Decision struct {
	MatchStatus model.MatchStatus
	// Selected is set only for auto_matched.
	Selected *model.ProductCandidate
	// Suggestions is set only for pending_review.
	Suggestions []model.ProductCandidate
	// Confidence of the best candidate, 0 when there are none.
	Confidence int
}

type Gate struct {
	threshold   int
	suggestions int
}

// NewGate returns a gate that auto-accepts candidates scoring at least
// threshold and otherwise offers up to suggestions of them for review.
func NewGate(threshold, suggestions int) *Gate {
	if suggestions <= 0 {
		suggestions = DefaultSuggestionCount
	}
	return &Gate{threshold: threshold, suggestions: suggestions}
}

func (g *Gate) Threshold() int { return g.threshold }

// Decide re-sorts candidates by confidence (stable) and gates the best one.
// The input slice is not modified.
func (g *Gate) Decide(candidates []model.ProductCandidate) Decision {
	if len(candidates) == 0 {
		return Decision{MatchStatus: model.MatchStatusNoMatch}
	}

	ranked := Rank(candidates)
	top := ranked[0]

	if top.Confidence >= g.threshold {
		return Decision{
			MatchStatus: model.MatchStatusAutoMatched,
			Selected:    &top,
			Confidence:  top.Confidence,
		}
	}

	n := min(g.suggestions, len(ranked))
	return Decision{
		MatchStatus: model.MatchStatusPendingReview,
		Suggestions: ranked[:n:n],
		Confidence:  top.Confidence,
	}
}

// Rank returns a copy of candidates sorted by confidence, highest first.
// Equal confidences keep their search order.
func Rank(candidates []model.ProductCandidate) []model.ProductCandidate {
	ranked := slices.Clone(candidates)
	slices.SortStableFunc(ranked, func(a, b model.ProductCandidate) int {
		return b.Confidence - a.Confidence
	})
	return ranked
}

// Score sets each candidate's confidence from how closely its title matches
// query, ignoring whatever ranking the search returned.
func Score(query string, candidates []model.ProductCandidate) []model.ProductCandidate {
	scored := slices.Clone(candidates)
	for i := range scored {
		scored[i].Confidence = matching.TitleConfidence(query, scored[i].Title)
	}
	return scored
}

// Select returns the suggestion with the given id.
func Select(suggestions []model.ProductCandidate, id string) (*model.ProductCandidate, error) {
	for i := range suggestions {
		if suggestions[i].ID == id {
			c := suggestions[i]
			return &c, nil
		}
	}
	return nil, ErrNotInSuggestions
}
