package matching

import (
	"math"
	"strings"

	"github.com/fridgechef/api/internal/model"
)

const (
	// DefaultThreshold is the minimum fuzzy similarity for an ingredient to
	// count as available.
	DefaultThreshold = 85.0

	substringSimilarity = 95.0
)

// Tier is the strategy that produced a match.
type Tier int

const (
	TierNone Tier = iota
	TierExact
	TierSubstring
	TierFuzzy
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierSubstring:
		return "substring"
	case TierFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// Result of matching one ingredient name against an inventory.
type Result struct {
	Matched    bool
	Item       *model.InventoryItem
	Similarity float64
	Tier       Tier
}

// Matcher holds the matching policy. The zero value is not useful; use
// NewMatcher.
type Matcher struct {
	threshold float64
	bestMatch bool
}

type Option func(*Matcher)

// WithBestMatch makes the matcher scan the whole inventory and keep the
// highest scoring item instead of the first qualifying one.
func WithBestMatch(enabled bool) Option {
	return func(m *Matcher) { m.bestMatch = enabled }
}

func NewMatcher(threshold float64, opts ...Option) *Matcher {
	m := &Matcher{threshold: threshold}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the fuzzy tier cut-off.
func (m *Matcher) Threshold() float64 { return m.threshold }

// MatchIngredient runs the default first-match-wins policy.
func MatchIngredient(name string, inventory []model.InventoryItem, threshold float64) Result {
	return NewMatcher(threshold).Match(name, inventory)
}

// Match decides whether name is available in inventory. Items are tried in
// order; for each item the exact, substring and fuzzy tiers are tried in that
// order. Unless best-match mode is on, the first item satisfying any tier
// wins.
func (m *Matcher) Match(name string, inventory []model.InventoryItem) Result {
	needle := NormalizeIngredient(name)

	var best Result
	for i := range inventory {
		tier, sim := m.compare(needle, NormalizeIngredient(inventory[i].Name))
		if tier == TierNone {
			continue
		}
		r := Result{Matched: true, Item: &inventory[i], Similarity: sim, Tier: tier}
		if !m.bestMatch || tier == TierExact {
			return r
		}
		if !best.Matched || r.Similarity > best.Similarity {
			best = r
		}
	}
	return best
}

func (m *Matcher) compare(a, b string) (Tier, float64) {
	if a == b {
		return TierExact, 100
	}
	if a != "" && b != "" && (strings.Contains(a, b) || strings.Contains(b, a)) {
		return TierSubstring, substringSimilarity
	}
	if sim := Similarity(a, b); sim >= m.threshold {
		return TierFuzzy, sim
	}
	return TierNone, 0
}

// TitleConfidence scores how likely a product title names the same book as
// query, 0-100. Exact is 100, containment at least 95, otherwise the rounded
// similarity.
func TitleConfidence(query, title string) int {
	a, b := NormalizeTitle(query), NormalizeTitle(title)
	if a == b {
		return 100
	}
	sim := Similarity(a, b)
	if a != "" && b != "" && (strings.Contains(a, b) || strings.Contains(b, a)) {
		return max(int(math.Round(sim)), int(substringSimilarity))
	}
	return int(math.Round(sim))
}
