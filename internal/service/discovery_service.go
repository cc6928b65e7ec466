package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/cache"
	"github.com/fridgechef/api/internal/client"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/store"
)

const (
	defaultTrendingDays   = 30
	defaultHotLimit       = 20
	defaultPopularLimit   = 10
	discoverySignedURLTTL = 2 * time.Hour
)

// HotRecipe is a trending recipe with a link to its cookbook cover and a
// retail search for the cookbook.
type HotRecipe struct {
	model.TrendingRecipe
	CoverImageURL    *string `json:"coverImageUrl"`
	ProductSearchURL string  `json:"productSearchUrl"`
}

type HotRecipePage struct {
	Recipes []HotRecipe `json:"recipes"`
	Period  int         `json:"period"`
	Total   int64       `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"hasMore"`
}

type PopularCookbookList struct {
	Cookbooks []model.PopularCookbook `json:"cookbooks"`
	Period    int                     `json:"period"`
}

type CuisineList struct {
	Cuisines []model.CuisineCount `json:"cuisines"`
}

// DiscoveryService serves lists shared by every user: recipes that match
// many fridges lately, the cookbooks behind them and the cuisines on file.
// Results are cached globally.
type DiscoveryService struct {
	db      *store.DB
	storage client.StorageClient
	cache   *cache.Cache
	tag     string
	now     func() time.Time
	log     *zap.Logger
}

func NewDiscoveryService(db *store.DB, storage client.StorageClient, c *cache.Cache, associatesTag string, log *zap.Logger) *DiscoveryService {
	return &DiscoveryService{
		db:      db,
		storage: storage,
		cache:   c,
		tag:     associatesTag,
		now:     time.Now,
		log:     log.Named("discovery"),
	}
}

func trendingDays(period int) int {
	if period <= 0 {
		return defaultTrendingDays
	}
	return period
}

// HotRecipes returns the recipes matched most often over the last
// q.Period days, optionally for one cuisine.
func (s *DiscoveryService) HotRecipes(ctx context.Context, q model.HotRecipeQuery) (*HotRecipePage, error) {
	q.Period = trendingDays(q.Period)
	if q.Limit <= 0 {
		q.Limit = defaultHotLimit
	}
	cuisine := strings.TrimSpace(q.Cuisine)
	key := cache.GlobalKey("hot_recipes", fmt.Sprint(q.Period), fmt.Sprint(q.Limit), fmt.Sprint(q.Offset),
		url.QueryEscape(strings.ToLower(cuisine)))

	return cache.Remember(ctx, s.cache, key, func() (*HotRecipePage, error) {
		rows, total, err := s.db.Repos().Matches.TrendingRecipes(ctx, store.TrendingFilter{
			Since:   s.since(q.Period),
			Cuisine: cuisine,
			Limit:   q.Limit,
			Offset:  q.Offset,
		})
		if err != nil {
			return nil, err
		}

		page := &HotRecipePage{
			Recipes: make([]HotRecipe, 0, len(rows)),
			Period:  q.Period,
			Total:   total,
			Limit:   q.Limit,
			Offset:  q.Offset,
			HasMore: int64(q.Offset+len(rows)) < total,
		}
		for _, r := range rows {
			page.Recipes = append(page.Recipes, HotRecipe{
				TrendingRecipe:   r,
				CoverImageURL:    s.coverURL(ctx, r.CoverImageKey),
				ProductSearchURL: ProductSearchURL(r.CookbookName, s.tag),
			})
		}
		return page, nil
	})
}

// PopularCookbooks ranks cookbooks by recent match activity and fills the
// remaining slots with the newest cookbooks that have recipes. Cookbooks
// without a looked up product link to a retail search instead.
func (s *DiscoveryService) PopularCookbooks(ctx context.Context, q model.PopularCookbookQuery) (*PopularCookbookList, error) {
	q.Period = trendingDays(q.Period)
	if q.Limit <= 0 {
		q.Limit = defaultPopularLimit
	}
	key := cache.GlobalKey("popular_cookbooks", fmt.Sprint(q.Period), fmt.Sprint(q.Limit))

	return cache.Remember(ctx, s.cache, key, func() (*PopularCookbookList, error) {
		repos := s.db.Repos()
		popular, err := repos.Matches.PopularCookbooks(ctx, s.since(q.Period), q.Limit)
		if err != nil {
			return nil, err
		}

		if remaining := q.Limit - len(popular); remaining > 0 {
			ids := make([]string, len(popular))
			for i := range popular {
				ids[i] = popular[i].CookbookID
			}
			recent, err := repos.Cookbooks.RecentCookbooks(ctx, ids, remaining)
			if err != nil {
				return nil, err
			}
			popular = append(popular, recent...)
		}

		for i := range popular {
			if popular[i].ProductURL == nil {
				link := ProductSearchURL(popular[i].CookbookName, s.tag)
				popular[i].ProductURL = &link
			}
		}
		if popular == nil {
			popular = []model.PopularCookbook{}
		}
		return &PopularCookbookList{Cookbooks: popular, Period: q.Period}, nil
	})
}

// Cuisines counts recipes per cuisine across all cookbooks.
func (s *DiscoveryService) Cuisines(ctx context.Context) (*CuisineList, error) {
	return cache.Remember(ctx, s.cache, cache.GlobalKey("cuisines"), func() (*CuisineList, error) {
		rows, err := s.db.Repos().Cookbooks.Cuisines(ctx)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []model.CuisineCount{}
		}
		return &CuisineList{Cuisines: rows}, nil
	})
}

func (s *DiscoveryService) since(days int) time.Time {
	return s.now().AddDate(0, 0, -days)
}

func (s *DiscoveryService) coverURL(ctx context.Context, key *string) *string {
	if key == nil {
		return nil
	}
	signed, err := s.storage.GetSignedURL(ctx, *key, discoverySignedURLTTL)
	if err != nil {
		s.log.Warn("failed to sign cover url", zap.String("key", *key), zap.Error(err))
		return nil
	}
	return &signed
}
