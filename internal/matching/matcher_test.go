package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fridgechef/api/internal/model"
)

func inventory(names ...string) []model.InventoryItem {
	items := make([]model.InventoryItem, len(names))
	for i, n := range names {
		items[i] = model.InventoryItem{ID: n, Name: n}
	}
	return items
}

func TestMatchIngredient_Tiers(t *testing.T) {
	tests := []struct {
		name     string
		needle   string
		inv      []model.InventoryItem
		wantItem string
		wantTier Tier
		wantSim  float64
	}{
		{"exact after normalization", "Eggs", inventory("milk", "egg"), "egg", TierExact, 100},
		{"substring", "red bell peppers", inventory("bell pepper"), "bell pepper", TierSubstring, 95},
		{"reverse substring", "flour", inventory("All-Purpose Flour"), "All-Purpose Flour", TierSubstring, 95},
		{"fuzzy typo", "parmesan", inventory("parmesean"), "parmesean", TierFuzzy, 100.0 * 8 / 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := MatchIngredient(tt.needle, tt.inv, DefaultThreshold)
			require.True(t, r.Matched)
			require.NotNil(t, r.Item)
			assert.Equal(t, tt.wantItem, r.Item.Name)
			assert.Equal(t, tt.wantTier, r.Tier)
			assert.InDelta(t, tt.wantSim, r.Similarity, 0.0001)
		})
	}
}

func TestMatchIngredient_NoMatch(t *testing.T) {
	r := MatchIngredient("saffron", inventory("salt", "sugar"), DefaultThreshold)

	assert.False(t, r.Matched)
	assert.Nil(t, r.Item)
	assert.Equal(t, 0.0, r.Similarity)
	assert.Equal(t, TierNone, r.Tier)
}

func TestMatchIngredient_EmptyInputs(t *testing.T) {
	assert.False(t, MatchIngredient("egg", nil, DefaultThreshold).Matched)
	assert.False(t, MatchIngredient("", inventory("egg"), DefaultThreshold).Matched)
	assert.True(t, MatchIngredient("", inventory("!!"), DefaultThreshold).Matched, "both normalize to empty")
}

func TestMatcher_FirstMatchWins(t *testing.T) {
	inv := inventory("parmesean", "parmesan cheese")

	r := NewMatcher(DefaultThreshold).Match("parmesan", inv)
	require.True(t, r.Matched)
	assert.Equal(t, "parmesean", r.Item.Name)
	assert.Equal(t, TierFuzzy, r.Tier)
}

func TestMatcher_BestMatch(t *testing.T) {
	inv := inventory("parmesean", "parmesan cheese")

	r := NewMatcher(DefaultThreshold, WithBestMatch(true)).Match("parmesan", inv)
	require.True(t, r.Matched)
	assert.Equal(t, "parmesan cheese", r.Item.Name)
	assert.Equal(t, TierSubstring, r.Tier)

	r = NewMatcher(DefaultThreshold, WithBestMatch(true)).Match("milk", inventory("milk chocolate", "milk"))
	assert.Equal(t, TierExact, r.Tier)
	assert.Equal(t, "milk", r.Item.Name)
}

func TestMatchIngredient_LowerThresholdNeverUnmatches(t *testing.T) {
	needles := []string{"saffron", "parmesan", "basil", "tomatoes", "chili", "egg"}
	inv := inventory("salt", "sugar", "parmesean", "basel", "tomato", "chilli")

	for _, needle := range needles {
		for t1 := 100.0; t1 >= 0; t1 -= 5 {
			if !MatchIngredient(needle, inv, t1).Matched {
				continue
			}
			for t2 := t1 - 5; t2 >= 0; t2 -= 5 {
				assert.True(t, MatchIngredient(needle, inv, t2).Matched,
					"%q matched at %v but not at %v", needle, t1, t2)
			}
		}
	}
}

func TestTitleConfidence(t *testing.T) {
	assert.Equal(t, 100, TitleConfidence("Joy of Cooking", "Joy of Cooking"))
	assert.Equal(t, 100, TitleConfidence("Salt Fat Acid Heat", "Salt, Fat, Acid, Heat"))
	assert.Equal(t, 95, TitleConfidence("Joy of Cooking", "Joy of Cooking: 2019 Edition Fully Revised"))
	assert.Less(t, TitleConfidence("The Food Lab", "Kitchen Confidential"), 70)
	assert.Equal(t, 0, TitleConfidence("", "Anything"))
}

func TestTitleConfidence_KeepsPlurals(t *testing.T) {
	// The title normalizer does not strip a trailing s, so these differ.
	assert.Less(t, TitleConfidence("Desserts", "Dessert"), 100)
	assert.Equal(t, 100, TitleConfidence("Desserts", "desserts"))
}
