package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/store"
)

// CookbookService reads and edits the cookbooks built by cookbook scans.
type CookbookService struct {
	db  *store.DB
	log *zap.Logger
}

func NewCookbookService(db *store.DB, log *zap.Logger) *CookbookService {
	return &CookbookService{db: db, log: log.Named("cookbooks")}
}

type RecipeList struct {
	Recipes []model.Recipe `json:"recipes"`
	Total   int64          `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	HasMore bool           `json:"hasMore"`
}

// List returns the user's cookbooks, newest first, without recipes.
func (s *CookbookService) List(ctx context.Context, userID string) ([]model.Cookbook, error) {
	cbs, err := s.db.Repos().Cookbooks.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cbs == nil {
		cbs = []model.Cookbook{}
	}
	return cbs, nil
}

// Get returns a cookbook with its recipes in page order.
func (s *CookbookService) Get(ctx context.Context, userID, id string) (*model.Cookbook, error) {
	return s.db.Repos().Cookbooks.Get(ctx, userID, id)
}

// Rename gives a cookbook a new name. Later cookbook scans under that name
// add their pages to it.
func (s *CookbookService) Rename(ctx context.Context, userID, id, name string) (*model.Cookbook, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}
	cb, err := s.db.Repos().Cookbooks.Rename(ctx, userID, id, name)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, ErrCookbookNameTaken
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("cookbook renamed", zap.String("cookbook_id", id), zap.String("user_id", userID))
	return cb, nil
}

// Delete removes a cookbook with its recipes. It is refused while a scan,
// match or lookup on the cookbook is still active.
func (s *CookbookService) Delete(ctx context.Context, userID, id string) error {
	err := s.db.Transact(ctx, func(r *store.Repos) error {
		if _, err := r.Cookbooks.GetOwned(ctx, userID, id); err != nil {
			return err
		}
		active, err := r.Cookbooks.ActiveJobs(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrCookbookBusy
		}
		return r.Cookbooks.Delete(ctx, userID, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("cookbook deleted", zap.String("cookbook_id", id), zap.String("user_id", userID))
	return nil
}

// Recipes returns one page of a cookbook's recipes.
func (s *CookbookService) Recipes(ctx context.Context, userID, id string, limit, offset int) (*RecipeList, error) {
	repos := s.db.Repos()
	if _, err := repos.Cookbooks.GetOwned(ctx, userID, id); err != nil {
		return nil, err
	}
	recipes, total, err := repos.Cookbooks.ListRecipes(ctx, id, limit, offset)
	if err != nil {
		return nil, err
	}
	if recipes == nil {
		recipes = []model.Recipe{}
	}
	return &RecipeList{
		Recipes: recipes,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+len(recipes)) < total,
	}, nil
}

// Recipe returns one of the user's recipes with ingredients and
// instructions.
func (s *CookbookService) Recipe(ctx context.Context, userID, id string) (*model.Recipe, error) {
	return s.db.Repos().Cookbooks.GetOwnedRecipe(ctx, userID, id)
}
