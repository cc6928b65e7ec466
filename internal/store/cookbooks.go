package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fridgechef/api/internal/model"
)

type CookbookRepository struct {
	db *gorm.DB
}

// ProductUpdate is the product data attached to a cookbook by a lookup.
// Nil fields are left as they are.
type ProductUpdate struct {
	ProductID  *string
	ImageURL   *string
	ProductURL *string
	Confidence *int
	Status     model.MatchStatus
}

func orderedRecipes(db *gorm.DB) *gorm.DB {
	return db.Order("recipes.page_number, recipes.created_at")
}

func orderedIngredients(db *gorm.DB) *gorm.DB {
	return db.Order("ingredients.order_index")
}

func orderedInstructions(db *gorm.DB) *gorm.DB {
	return db.Order("instructions.step_number")
}

// GetOrCreate returns the user's cookbook with this name, compared case
// insensitively, creating it if needed. Two scans racing to create the same
// cookbook both end up with the row that won the unique index.
func (r *CookbookRepository) GetOrCreate(ctx context.Context, userID, name string) (*model.Cookbook, error) {
	name = strings.TrimSpace(name)
	db := r.db.WithContext(ctx)

	cb, err := r.findByName(db, userID, name)
	if err == nil {
		return cb, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created := &model.Cookbook{ID: uuid.NewString(), UserID: userID, Name: name}
	// Nested transaction so a unique violation only rolls back to a savepoint
	// when called inside Transact.
	err = db.Transaction(func(tx *gorm.DB) error {
		return tx.Omit("Recipes").Create(created).Error
	})
	if err == nil {
		return created, nil
	}
	if IsUniqueViolation(err) {
		return r.findByName(db, userID, name)
	}
	return nil, fmt.Errorf("create cookbook: %w", err)
}

func (r *CookbookRepository) findByName(db *gorm.DB, userID, name string) (*model.Cookbook, error) {
	var cb model.Cookbook
	err := db.Where("user_id = ? AND lower(name) = lower(?)", userID, name).Take(&cb).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &cb, nil
}

// Get loads a cookbook with its recipes, ingredients and instructions in
// page and step order.
func (r *CookbookRepository) Get(ctx context.Context, userID, id string) (*model.Cookbook, error) {
	var cb model.Cookbook
	err := r.db.WithContext(ctx).
		Preload("Recipes", orderedRecipes).
		Preload("Recipes.Ingredients", orderedIngredients).
		Preload("Recipes.Instructions", orderedInstructions).
		Where("id = ? AND user_id = ?", id, userID).
		Take(&cb).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &cb, nil
}

// GetOwned loads only the cookbook row.
func (r *CookbookRepository) GetOwned(ctx context.Context, userID, id string) (*model.Cookbook, error) {
	return takeOwned[model.Cookbook](r.db.WithContext(ctx), userID, id)
}

func (r *CookbookRepository) List(ctx context.Context, userID string) ([]model.Cookbook, error) {
	var cbs []model.Cookbook
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&cbs).Error
	return cbs, err
}

// AddRecipes inserts recipes found on one page together with their
// ingredients and instructions.
func (r *CookbookRepository) AddRecipes(ctx context.Context, cookbookID string, recipes []model.Recipe) error {
	if len(recipes) == 0 {
		return nil
	}
	for i := range recipes {
		rec := &recipes[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.CookbookID = cookbookID
		for j := range rec.Ingredients {
			if rec.Ingredients[j].ID == "" {
				rec.Ingredients[j].ID = uuid.NewString()
			}
			rec.Ingredients[j].OrderIndex = j
		}
		for j := range rec.Instructions {
			if rec.Instructions[j].ID == "" {
				rec.Instructions[j].ID = uuid.NewString()
			}
			rec.Instructions[j].StepNumber = j + 1
		}
	}
	return r.db.WithContext(ctx).Create(&recipes).Error
}

// PageScanned counts a processed page and keeps the first page as cover.
func (r *CookbookRepository) PageScanned(ctx context.Context, cookbookID, imageKey string) error {
	return r.db.WithContext(ctx).Model(&model.Cookbook{}).
		Where("id = ?", cookbookID).
		Updates(map[string]any{
			"scanned_pages":   gorm.Expr("scanned_pages + 1"),
			"cover_image_key": gorm.Expr("COALESCE(cover_image_key, ?)", imageKey),
		}).Error
}

func (r *CookbookRepository) CountRecipes(ctx context.Context, cookbookID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Recipe{}).Where("cookbook_id = ?", cookbookID).Count(&n).Error
	return n, err
}

// CountRecipesFromImages counts the recipes read from the given page images.
func (r *CookbookRepository) CountRecipesFromImages(ctx context.Context, cookbookID string, imageKeys []string) (int64, error) {
	if len(imageKeys) == 0 {
		return 0, nil
	}
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Recipe{}).
		Where("cookbook_id = ? AND image_key IN ?", cookbookID, imageKeys).
		Count(&n).Error
	return n, err
}

// RecipesWithIngredients loads every recipe of a cookbook with ordered
// ingredients.
func (r *CookbookRepository) RecipesWithIngredients(ctx context.Context, cookbookID string) ([]model.Recipe, error) {
	var recipes []model.Recipe
	err := orderedRecipes(r.db.WithContext(ctx)).
		Preload("Ingredients", orderedIngredients).
		Where("cookbook_id = ?", cookbookID).
		Find(&recipes).Error
	return recipes, err
}

// ListRecipesForOthers returns the newest recipes from cookbooks not owned
// by userID, optionally restricted to a cuisine.
func (r *CookbookRepository) ListRecipesForOthers(ctx context.Context, userID, cuisine string, limit int) ([]model.Recipe, error) {
	q := r.db.WithContext(ctx).
		Select("recipes.*, cookbooks.name AS cookbook_name, cookbooks.cover_image_key AS cover_image_key").
		Joins("JOIN cookbooks ON cookbooks.id = recipes.cookbook_id").
		Where("cookbooks.user_id <> ?", userID).
		Preload("Ingredients", orderedIngredients)
	if cuisine != "" {
		q = q.Where("recipes.cuisine ILIKE ?", cuisine)
	}

	var recipes []model.Recipe
	err := q.Order("recipes.created_at DESC").Limit(limit).Find(&recipes).Error
	return recipes, err
}

// GetRecipe loads a recipe visible to anyone, with ingredients and
// instructions.
func (r *CookbookRepository) GetRecipe(ctx context.Context, id string) (*model.Recipe, error) {
	var rec model.Recipe
	err := r.db.WithContext(ctx).
		Select("recipes.*, cookbooks.name AS cookbook_name, cookbooks.cover_image_key AS cover_image_key").
		Joins("JOIN cookbooks ON cookbooks.id = recipes.cookbook_id").
		Preload("Ingredients", orderedIngredients).
		Preload("Instructions", orderedInstructions).
		Where("recipes.id = ?", id).
		Take(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (r *CookbookRepository) UpdateProduct(ctx context.Context, cookbookID string, p ProductUpdate) error {
	cols := map[string]any{"product_match_status": p.Status}
	if p.ProductID != nil {
		cols["product_id"] = *p.ProductID
	}
	if p.ImageURL != nil {
		cols["product_image_url"] = *p.ImageURL
	}
	if p.ProductURL != nil {
		cols["product_url"] = *p.ProductURL
	}
	if p.Confidence != nil {
		cols["product_match_confidence"] = *p.Confidence
	}
	return r.db.WithContext(ctx).Model(&model.Cookbook{}).Where("id = ?", cookbookID).Updates(cols).Error
}

// Rename changes the name of a user's cookbook. A name another cookbook of
// the user already has, compared case insensitively, is ErrDuplicate.
func (r *CookbookRepository) Rename(ctx context.Context, userID, id, name string) (*model.Cookbook, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&model.Cookbook{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("name", strings.TrimSpace(name))
	if res.Error != nil {
		if IsUniqueViolation(res.Error) {
			return nil, ErrDuplicate
		}
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return takeOwned[model.Cookbook](db, userID, id)
}

// Delete removes a user's cookbook. Recipes, ingredients and instructions
// go with it through the foreign key cascades.
func (r *CookbookRepository) Delete(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&model.Cookbook{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

var activeStatuses = []model.JobStatus{
	model.JobStatusPending,
	model.JobStatusProcessing,
	model.JobStatusPendingReview,
}

// ActiveJobs counts the scan, match and lookup jobs on a cookbook that a
// worker or the user may still act on.
func (r *CookbookRepository) ActiveJobs(ctx context.Context, cookbookID string) (int64, error) {
	db := r.db.WithContext(ctx)
	var total int64
	for _, table := range []any{&model.ScanJob{}, &model.MatchJob{}, &model.ProductLookupJob{}} {
		var n int64
		err := db.Model(table).Where("cookbook_id = ? AND status IN ?", cookbookID, activeStatuses).Count(&n).Error
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// ListRecipes returns one page of a cookbook's recipes in page order with
// ingredients and instructions, and the cookbook's recipe count.
func (r *CookbookRepository) ListRecipes(ctx context.Context, cookbookID string, limit, offset int) ([]model.Recipe, int64, error) {
	db := r.db.WithContext(ctx)

	var total int64
	if err := db.Model(&model.Recipe{}).Where("cookbook_id = ?", cookbookID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recipes []model.Recipe
	err := orderedRecipes(db).
		Preload("Ingredients", orderedIngredients).
		Preload("Instructions", orderedInstructions).
		Where("cookbook_id = ?", cookbookID).
		Limit(limit).Offset(offset).
		Find(&recipes).Error
	return recipes, total, err
}

// GetOwnedRecipe loads a recipe from one of the user's cookbooks.
func (r *CookbookRepository) GetOwnedRecipe(ctx context.Context, userID, id string) (*model.Recipe, error) {
	var rec model.Recipe
	err := r.db.WithContext(ctx).
		Select("recipes.*, cookbooks.name AS cookbook_name, cookbooks.cover_image_key AS cover_image_key").
		Joins("JOIN cookbooks ON cookbooks.id = recipes.cookbook_id").
		Preload("Ingredients", orderedIngredients).
		Preload("Instructions", orderedInstructions).
		Where("recipes.id = ? AND cookbooks.user_id = ?", id, userID).
		Take(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// RecentCookbooks returns the newest cookbooks that have at least one
// recipe, leaving out the given ids.
func (r *CookbookRepository) RecentCookbooks(ctx context.Context, exclude []string, limit int) ([]model.PopularCookbook, error) {
	q := r.db.WithContext(ctx).Table("cookbooks AS c").
		Select("c.id AS cookbook_id, c.name AS cookbook_name, c.product_image_url, c.product_url, " +
			"COUNT(r.id) AS recipe_count, 0 AS total_matches, 0 AS unique_users").
		Joins("JOIN recipes r ON r.cookbook_id = c.id")
	if len(exclude) > 0 {
		q = q.Where("c.id NOT IN ?", exclude)
	}

	var rows []model.PopularCookbook
	err := q.Group("c.id, c.name, c.product_image_url, c.product_url, c.created_at").
		Order("c.created_at DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// Cuisines counts recipes per cuisine, most common first.
func (r *CookbookRepository) Cuisines(ctx context.Context) ([]model.CuisineCount, error) {
	var rows []model.CuisineCount
	err := r.db.WithContext(ctx).Model(&model.Recipe{}).
		Select("cuisine AS name, COUNT(*) AS count").
		Where("cuisine IS NOT NULL AND cuisine <> ''").
		Group("cuisine").
		Order("count DESC, name").
		Scan(&rows).Error
	return rows, err
}
