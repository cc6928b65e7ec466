package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/cache"
	"github.com/fridgechef/api/internal/client"
	"github.com/fridgechef/api/internal/config"
	"github.com/fridgechef/api/internal/matching"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/store"
)

// Recommendation is one recipe from another user's cookbook that the
// caller's inventory covers well enough.
type Recommendation struct {
	RecipeID             string  `json:"recipeId"`
	RecipeName           string  `json:"recipeName"`
	CookbookID           string  `json:"cookbookId"`
	CookbookName         string  `json:"cookbookName"`
	Cuisine              *string `json:"cuisine,omitempty"`
	CoverImageURL        *string `json:"coverImageUrl"`
	ProductSearchURL     string  `json:"productSearchUrl"`
	MatchPercentage      int     `json:"matchPercentage"`
	TotalIngredients     int     `json:"totalIngredients"`
	AvailableIngredients int     `json:"availableIngredients"`
	MissingIngredients   int     `json:"missingIngredients"`
	CanMakeNow           bool    `json:"canMakeNow"`
}

type RecommendationPage struct {
	Recipes        []Recommendation `json:"recipes"`
	InventoryCount int              `json:"inventoryCount"`
	Total          int              `json:"total"`
	Limit          int              `json:"limit"`
	Offset         int              `json:"offset"`
	HasMore        bool             `json:"hasMore"`
}

// RecipeMatch is an on demand match of one recipe.
type RecipeMatch struct {
	Recipe *model.Recipe `json:"recipe"`
	model.MatchOutcome
}

// RecommendationService ranks other users' recipes against the caller's
// current inventory.
type RecommendationService struct {
	db      *store.DB
	matcher *matching.Matcher
	storage client.StorageClient
	cache   *cache.Cache
	cfg     config.RecommendationConfig
	tag     string
	log     *zap.Logger
}

func NewRecommendationService(db *store.DB, matcher *matching.Matcher, storage client.StorageClient, c *cache.Cache, cfg config.RecommendationConfig, associatesTag string, log *zap.Logger) *RecommendationService {
	return &RecommendationService{
		db:      db,
		matcher: matcher,
		storage: storage,
		cache:   c,
		cfg:     cfg,
		tag:     associatesTag,
		log:     log,
	}
}

// Normalize fills defaults and clamps the query to the configured bounds.
func (s *RecommendationService) Normalize(q model.RecommendationQuery) model.RecommendationQuery {
	if q.Limit <= 0 {
		q.Limit = s.cfg.DefaultLimit
	}
	q.Limit = min(q.Limit, s.cfg.MaxLimit)
	q.Offset = max(q.Offset, 0)
	minMatch := s.cfg.MinMatch
	if q.MinMatch != nil {
		minMatch = *q.MinMatch
	}
	minMatch = min(max(minMatch, 0), 100)
	q.MinMatch = &minMatch
	return q
}

// Recommend returns one page of recommendations. Pages are cached per user
// and query until the user's inventory changes.
func (s *RecommendationService) Recommend(ctx context.Context, userID string, q model.RecommendationQuery) (*RecommendationPage, error) {
	q = s.Normalize(q)
	key := cache.UserKey(userID, "recommendations",
		fmt.Sprint(*q.MinMatch), fmt.Sprint(q.Limit), fmt.Sprint(q.Offset), url.QueryEscape(q.Cuisine))

	return cache.Remember(ctx, s.cache, key, func() (*RecommendationPage, error) {
		return s.recommend(ctx, userID, q)
	})
}

func (s *RecommendationService) recommend(ctx context.Context, userID string, q model.RecommendationQuery) (*RecommendationPage, error) {
	repos := s.db.Repos()

	inventory, err := repos.Inventory.List(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	page := &RecommendationPage{
		Recipes:        []Recommendation{},
		InventoryCount: len(inventory),
		Limit:          q.Limit,
		Offset:         q.Offset,
	}
	if len(inventory) == 0 {
		return page, nil
	}

	candidates, err := repos.Cookbooks.ListRecipesForOthers(ctx, userID, q.Cuisine, s.cfg.CandidateLimit)
	if err != nil {
		return nil, err
	}

	ranked, total := matching.Rank(s.matcher, candidates, func(r model.Recipe) []model.IngredientRef { return r.Refs() },
		inventory, matching.RankOptions{MinPercentage: *q.MinMatch, Offset: q.Offset, Limit: q.Limit})

	page.Total = total
	page.HasMore = q.Offset+q.Limit < total
	for _, r := range ranked {
		page.Recipes = append(page.Recipes, s.recommendation(ctx, r.Candidate, r.Outcome))
	}
	return page, nil
}

func (s *RecommendationService) recommendation(ctx context.Context, r model.Recipe, out model.MatchOutcome) Recommendation {
	rec := Recommendation{
		RecipeID:             r.ID,
		RecipeName:           r.Name,
		CookbookID:           r.CookbookID,
		CookbookName:         r.CookbookName,
		Cuisine:              r.Cuisine,
		ProductSearchURL:     ProductSearchURL(r.CookbookName, s.tag),
		MatchPercentage:      out.MatchPercentage,
		TotalIngredients:     len(out.AvailableIngredients) + len(out.MissingIngredients),
		AvailableIngredients: len(out.AvailableIngredients),
		MissingIngredients:   len(out.MissingIngredients),
		CanMakeNow:           out.CanMakeNow,
	}
	if r.CoverImageKey != nil {
		signed, err := s.storage.GetSignedURL(ctx, *r.CoverImageKey, s.signedURLExpiry())
		if err != nil {
			s.log.Warn("failed to sign cover url", zap.String("recipe_id", r.ID), zap.Error(err))
		} else {
			rec.CoverImageURL = &signed
		}
	}
	return rec
}

// Signed URLs must outlive the cached page.
func (s *RecommendationService) signedURLExpiry() time.Duration {
	return max(s.cfg.CacheTTL*2, time.Hour)
}

// MatchRecipe matches one recipe against the caller's current inventory.
func (s *RecommendationService) MatchRecipe(ctx context.Context, userID, recipeID string) (*RecipeMatch, error) {
	repos := s.db.Repos()
	recipe, err := repos.Cookbooks.GetRecipe(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	inventory, err := repos.Inventory.List(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	return &RecipeMatch{Recipe: recipe, MatchOutcome: s.matcher.Calculate(recipe.Refs(), inventory)}, nil
}

// ProductSearchURL links to a retail search for a cookbook title.
func ProductSearchURL(title, tag string) string {
	v := url.Values{}
	v.Set("k", title)
	if tag != "" {
		v.Set("tag", tag)
	}
	return "https://www.amazon.com/s?" + v.Encode()
}
