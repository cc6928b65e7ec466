package store

import (
	"context"
	"fmt"

	"github.com/fridgechef/api/internal/model"
)

// Migrate creates or updates every table and the indexes gorm tags cannot
// express.
func (db *DB) Migrate(ctx context.Context) error {
	gdb := db.gorm.WithContext(ctx)

	if err := gdb.AutoMigrate(
		&model.Cookbook{},
		&model.Recipe{},
		&model.Ingredient{},
		&model.Instruction{},
		&model.InventoryItem{},
		&model.ScanJob{},
		&model.MatchJob{},
		&model.RecipeMatch{},
		&model.ProductLookupJob{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_cookbooks_user_lower_name ON cookbooks (user_id, lower(name))`,
		`CREATE INDEX IF NOT EXISTS idx_ingredients_recipe_order ON ingredients (recipe_id, order_index)`,
		`CREATE INDEX IF NOT EXISTS idx_recipe_matches_job_pct ON recipe_matches (match_job_id, match_percentage DESC)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_lookup_jobs_active ON product_lookup_jobs (cookbook_id) WHERE status IN ('pending', 'processing', 'pending_review')`,
	}
	for _, stmt := range stmts {
		if err := gdb.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate index: %w", err)
		}
	}

	db.log.Info("database migrated")
	return nil
}
