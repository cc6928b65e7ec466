package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fridgechef/api/internal/model"
)

type MatchJobRepository struct {
	db *gorm.DB
}

func (r *MatchJobRepository) Create(ctx context.Context, job *model.MatchJob) error {
	return r.db.WithContext(ctx).Omit("Results").Create(job).Error
}

func (r *MatchJobRepository) Get(ctx context.Context, userID, id string) (*model.MatchJob, error) {
	return takeOwned[model.MatchJob](r.db.WithContext(ctx), userID, id)
}

func (r *MatchJobRepository) GetByID(ctx context.Context, id string) (*model.MatchJob, error) {
	return takeByID[model.MatchJob](r.db.WithContext(ctx), id)
}

func (r *MatchJobRepository) List(ctx context.Context, userID string, limit, offset int) ([]model.MatchJob, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.MatchJob{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []model.MatchJob
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&jobs).Error
	return jobs, total, err
}

// SaveResults inserts the per-recipe snapshots of a match job.
func (r *MatchJobRepository) SaveResults(ctx context.Context, results []model.RecipeMatch) error {
	if len(results) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(results, 100).Error
}

// Results returns a job's recipe matches, best first.
func (r *MatchJobRepository) Results(ctx context.Context, jobID string) ([]model.RecipeMatch, error) {
	var results []model.RecipeMatch
	err := r.db.WithContext(ctx).
		Where("match_job_id = ?", jobID).
		Order("match_percentage DESC, recipe_name").
		Find(&results).Error
	return results, err
}

// TrendingFilter selects the recipe matches counted as trending.
type TrendingFilter struct {
	Since   time.Time
	Cuisine string
	Limit   int
	Offset  int
}

// TrendingRecipes ranks recipes by how many match results since f.Since
// found at least one of their ingredients, then by distinct users. It also
// returns how many recipes qualify.
func (r *MatchJobRepository) TrendingRecipes(ctx context.Context, f TrendingFilter) ([]model.TrendingRecipe, int64, error) {
	q := r.db.WithContext(ctx).Table("recipe_matches AS rm").
		Joins("JOIN match_jobs mj ON mj.id = rm.match_job_id").
		Joins("JOIN recipes r ON r.id = rm.recipe_id").
		Joins("JOIN cookbooks c ON c.id = r.cookbook_id").
		Where("rm.match_percentage > 0 AND rm.created_at >= ?", f.Since)
	if f.Cuisine != "" {
		q = q.Where("r.cuisine ILIKE ?", f.Cuisine)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Distinct("rm.recipe_id").Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []model.TrendingRecipe
	err := q.Select("r.id AS recipe_id, r.name AS recipe_name, r.cuisine, " +
		"c.id AS cookbook_id, c.name AS cookbook_name, c.cover_image_key, " +
		"COUNT(rm.id) AS match_count, COUNT(DISTINCT mj.user_id) AS unique_users, " +
		"MAX(rm.created_at) AS last_matched_at").
		Group("r.id, r.name, r.cuisine, c.id, c.name, c.cover_image_key").
		Order("match_count DESC, unique_users DESC, r.id").
		Limit(f.Limit).Offset(f.Offset).
		Scan(&rows).Error
	return rows, total, err
}

// PopularCookbooks ranks cookbooks by the match results their recipes got
// since the given time, then by distinct users.
func (r *MatchJobRepository) PopularCookbooks(ctx context.Context, since time.Time, limit int) ([]model.PopularCookbook, error) {
	var rows []model.PopularCookbook
	err := r.db.WithContext(ctx).Table("cookbooks AS c").
		Select("c.id AS cookbook_id, c.name AS cookbook_name, c.product_image_url, c.product_url, "+
			"COUNT(DISTINCT r.id) AS recipe_count, COUNT(rm.id) AS total_matches, "+
			"COUNT(DISTINCT mj.user_id) AS unique_users").
		Joins("JOIN recipes r ON r.cookbook_id = c.id").
		Joins("JOIN recipe_matches rm ON rm.recipe_id = r.id").
		Joins("JOIN match_jobs mj ON mj.id = rm.match_job_id").
		Where("rm.created_at >= ?", since).
		Group("c.id, c.name, c.product_image_url, c.product_url").
		Order("total_matches DESC, unique_users DESC, c.id").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
