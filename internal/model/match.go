package model

import (
	"database/sql/driver"
	"time"
)

// MatchOutcome is how much of one recipe the inventory covers. Available and
// Missing keep the recipe's ingredient order.
type MatchOutcome struct {
	MatchPercentage      int             `json:"matchPercentage"`
	AvailableIngredients []IngredientRef `json:"availableIngredients"`
	MissingIngredients   []IngredientRef `json:"missingIngredients"`
	CanMakeNow           bool            `json:"canMakeNow"`
}

// RecipeMatch is the snapshot of a MatchOutcome written when a match job
// completes.
type RecipeMatch struct {
	ID                   string         `gorm:"type:uuid;primaryKey" json:"id"`
	MatchJobID           string         `gorm:"type:uuid;not null;index" json:"matchJobId"`
	RecipeID             string         `gorm:"type:uuid;not null" json:"recipeId"`
	RecipeName           string         `gorm:"not null" json:"recipeName"`
	MatchPercentage      int            `gorm:"not null;index" json:"matchPercentage"`
	TotalIngredients     int            `gorm:"not null" json:"totalIngredients"`
	AvailableCount       int            `gorm:"not null" json:"availableCount"`
	MissingCount         int            `gorm:"not null" json:"missingCount"`
	AvailableIngredients IngredientRefs `gorm:"type:jsonb" json:"availableIngredients"`
	MissingIngredients   IngredientRefs `gorm:"type:jsonb" json:"missingIngredients"`
	CanMakeNow           bool           `gorm:"not null" json:"canMakeNow"`
	CreatedAt            time.Time      `json:"createdAt"`
}

// ProductCandidate is one product returned by the product search, with the
// confidence computed from title similarity.
type ProductCandidate struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ImageURL   string `json:"imageUrl,omitempty"`
	ProductURL string `json:"productUrl,omitempty"`
	Confidence int    `json:"confidence"`
	IsBook     bool   `json:"isBook"`
}

// ProductCandidates is stored as jsonb on lookup jobs.
type ProductCandidates []ProductCandidate

func (c ProductCandidates) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return jsonValue([]ProductCandidate(c))
}

func (c *ProductCandidates) Scan(src any) error {
	return jsonScan(src, (*[]ProductCandidate)(c))
}

// TrendingRecipe is a recipe that matched the inventory of recent match
// jobs, with how often and for how many users.
type TrendingRecipe struct {
	RecipeID      string    `json:"recipeId"`
	RecipeName    string    `json:"recipeName"`
	Cuisine       *string   `json:"cuisine,omitempty"`
	CookbookID    string    `json:"cookbookId"`
	CookbookName  string    `json:"cookbookName"`
	CoverImageKey *string   `json:"-"`
	MatchCount    int       `json:"matchCount"`
	UniqueUsers   int       `json:"uniqueUsers"`
	LastMatchedAt time.Time `json:"lastMatchedAt"`
}

// PopularCookbook is a cookbook ranked by recent match activity on its
// recipes. Recent uploads without activity have zero counts.
type PopularCookbook struct {
	CookbookID      string  `json:"cookbookId"`
	CookbookName    string  `json:"cookbookName"`
	ProductImageURL *string `json:"productImageUrl"`
	ProductURL      *string `json:"productUrl"`
	RecipeCount     int     `json:"recipeCount"`
	TotalMatches    int     `json:"totalMatches"`
	UniqueUsers     int     `json:"uniqueUsers"`
}

// CuisineCount is how many recipes carry a cuisine.
type CuisineCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
