package model

import (
	"database/sql/driver"
	"time"
)

// Cookbook groups the recipes scanned under one title for one user.
type Cookbook struct {
	ID                     string       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                 string       `gorm:"type:text;not null;index" json:"-"`
	Name                   string       `gorm:"not null" json:"name"`
	ScannedPages           int          `gorm:"not null;default:0" json:"scannedPages"`
	CoverImageKey          *string      `json:"-"`
	ProductID              *string      `json:"productId,omitempty"`
	ProductImageURL        *string      `json:"productImageUrl,omitempty"`
	ProductURL             *string      `json:"productUrl,omitempty"`
	ProductMatchConfidence *int         `json:"productMatchConfidence,omitempty"`
	ProductMatchStatus     *MatchStatus `gorm:"type:varchar(20)" json:"productMatchStatus,omitempty"`
	CreatedAt              time.Time    `json:"createdAt"`
	UpdatedAt              time.Time    `json:"updatedAt"`
	Recipes                []Recipe     `gorm:"constraint:OnDelete:CASCADE" json:"recipes,omitempty"`
}

type Recipe struct {
	ID           string        `gorm:"type:uuid;primaryKey" json:"id"`
	CookbookID   string        `gorm:"type:uuid;not null;index" json:"cookbookId"`
	Name         string        `gorm:"not null" json:"name"`
	PrepTime     *string       `json:"prepTime,omitempty"`
	CookTime     *string       `json:"cookTime,omitempty"`
	TotalTime    *string       `json:"totalTime,omitempty"`
	Servings     *int          `json:"servings,omitempty"`
	Cuisine      *string       `gorm:"index" json:"cuisine,omitempty"`
	Notes        *string       `json:"notes,omitempty"`
	PageNumber   int           `json:"pageNumber"`
	ImageKey     *string       `json:"-"`
	CreatedAt    time.Time     `json:"createdAt"`
	Ingredients  []Ingredient  `gorm:"constraint:OnDelete:CASCADE" json:"ingredients,omitempty"`
	Instructions []Instruction `gorm:"constraint:OnDelete:CASCADE" json:"instructions,omitempty"`

	// Filled by joins, not stored on the row.
	CookbookName  string  `gorm:"->;-:migration" json:"cookbookName,omitempty"`
	CoverImageKey *string `gorm:"->;-:migration" json:"-"`
}

// Refs returns the recipe's ingredients in their stored order.
func (r *Recipe) Refs() []IngredientRef {
	refs := make([]IngredientRef, len(r.Ingredients))
	for i := range r.Ingredients {
		refs[i] = r.Ingredients[i].Ref()
	}
	return refs
}

type Ingredient struct {
	ID         string  `gorm:"type:uuid;primaryKey" json:"id"`
	RecipeID   string  `gorm:"type:uuid;not null;index" json:"-"`
	Name       string  `gorm:"not null" json:"name"`
	Quantity   *string `json:"quantity,omitempty"`
	Unit       *string `json:"unit,omitempty"`
	Notes      *string `json:"notes,omitempty"`
	OrderIndex int     `gorm:"not null" json:"orderIndex"`
}

func (i *Ingredient) Ref() IngredientRef {
	return IngredientRef{ID: i.ID, Name: i.Name, Quantity: i.Quantity, Unit: i.Unit}
}

type Instruction struct {
	ID          string `gorm:"type:uuid;primaryKey" json:"id"`
	RecipeID    string `gorm:"type:uuid;not null;index" json:"-"`
	StepNumber  int    `gorm:"not null" json:"stepNumber"`
	Description string `gorm:"not null" json:"description"`
}

// IngredientRef is the immutable view of an ingredient that match results
// point back to.
type IngredientRef struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity *string `json:"quantity,omitempty"`
	Unit     *string `json:"unit,omitempty"`
}

// IngredientRefs is stored as jsonb on recipe match rows.
type IngredientRefs []IngredientRef

func (r IngredientRefs) Value() (driver.Value, error) {
	if r == nil {
		r = IngredientRefs{}
	}
	return jsonValue([]IngredientRef(r))
}

func (r *IngredientRefs) Scan(src any) error {
	return jsonScan(src, (*[]IngredientRef)(r))
}
