package matching

import (
	"cmp"
	"math"
	"slices"

	"github.com/fridgechef/api/internal/model"
)

// CalculateMatch scores a recipe with the default threshold.
func CalculateMatch(ingredients []model.IngredientRef, inventory []model.InventoryItem) model.MatchOutcome {
	return NewMatcher(DefaultThreshold).Calculate(ingredients, inventory)
}

// Calculate partitions ingredients into available and missing, keeping their
// order. A recipe without ingredients scores 0.
func (m *Matcher) Calculate(ingredients []model.IngredientRef, inventory []model.InventoryItem) model.MatchOutcome {
	out := model.MatchOutcome{
		AvailableIngredients: []model.IngredientRef{},
		MissingIngredients:   []model.IngredientRef{},
	}
	if len(ingredients) == 0 {
		return out
	}

	for _, ing := range ingredients {
		if m.Match(ing.Name, inventory).Matched {
			out.AvailableIngredients = append(out.AvailableIngredients, ing)
		} else {
			out.MissingIngredients = append(out.MissingIngredients, ing)
		}
	}

	out.MatchPercentage = Percentage(len(out.AvailableIngredients), len(ingredients))
	out.CanMakeNow = out.MatchPercentage == 100
	return out
}

// Percentage is round(100 * available / total), 0 when total is 0.
func Percentage(available, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(available) / float64(total)))
}

// RankOptions filters and pages a bulk ranking.
type RankOptions struct {
	MinPercentage int
	Offset        int
	// Limit <= 0 returns everything after Offset.
	Limit int
}

// Ranked pairs a candidate with its outcome.
type Ranked[T any] struct {
	Candidate T
	Outcome   model.MatchOutcome
}

// Rank scores every candidate, drops those without ingredients or below
// MinPercentage, sorts by percentage descending (ties keep input order) and
// returns the requested page along with the filtered total.
func Rank[T any](m *Matcher, candidates []T, ingredients func(T) []model.IngredientRef, inventory []model.InventoryItem, opts RankOptions) ([]Ranked[T], int) {
	ranked := make([]Ranked[T], 0, len(candidates))
	for _, c := range candidates {
		refs := ingredients(c)
		if len(refs) == 0 {
			continue
		}
		out := m.Calculate(refs, inventory)
		if out.MatchPercentage < opts.MinPercentage {
			continue
		}
		ranked = append(ranked, Ranked[T]{Candidate: c, Outcome: out})
	}

	slices.SortStableFunc(ranked, func(a, b Ranked[T]) int {
		return cmp.Compare(b.Outcome.MatchPercentage, a.Outcome.MatchPercentage)
	})

	total := len(ranked)
	start := min(max(opts.Offset, 0), total)
	end := total
	if opts.Limit > 0 {
		end = min(start+opts.Limit, total)
	}
	return ranked[start:end], total
}
