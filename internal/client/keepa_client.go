package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fridgechef/api/internal/config"
	"github.com/fridgechef/api/internal/model"
	"github.com/go-resty/resty/v2"
)

const (
	// BooksCategory is Amazon's root category id for books.
	BooksCategory = 283155
	// MaxCandidates is how many search hits are scored.
	MaxCandidates = 3

	amazonImageBase = "https://m.media-amazon.com/images/I/"
	amazonProductFn = "https://www.amazon.com/dp/%s?tag=%s"
)

// ProductSearcher finds retail products by title.
type ProductSearcher interface {
	SearchProducts(ctx context.Context, title string) ([]model.ProductCandidate, error)
}

// ProductSearchError carries the upstream HTTP status.
type ProductSearchError struct {
	StatusCode int
	Body       string
}

func (e *ProductSearchError) Error() string {
	return fmt.Sprintf("product search returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *ProductSearchError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// KeepaClient searches Amazon products through the Keepa API
type KeepaClient struct {
	client *resty.Client
	apiKey string
	domain int
	tag    string
}

type keepaProduct struct {
	ASIN         string `json:"asin"`
	Title        string `json:"title"`
	ImagesCSV    string `json:"imagesCSV"`
	RootCategory int64  `json:"rootCategory"`
}

type keepaSearchResponse struct {
	Products []keepaProduct `json:"products"`
}

// NewKeepaClient returns nil when no API key is configured.
func NewKeepaClient(cfg config.ProductSearchConfig) *KeepaClient {
	if cfg.APIKey == "" {
		return nil
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &KeepaClient{
		client: client,
		apiKey: cfg.APIKey,
		domain: cfg.Domain,
		tag:    cfg.AssociatesTag,
	}
}

// SearchProducts returns at most MaxCandidates products in upstream order.
// Confidence is left at zero for the caller to score.
func (c *KeepaClient) SearchProducts(ctx context.Context, title string) ([]model.ProductCandidate, error) {
	var result keepaSearchResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":     c.apiKey,
			"domain":  strconv.Itoa(c.domain),
			"type":    "product",
			"term":    title,
			"page":    "0",
			"history": "0",
		}).
		SetResult(&result).
		Get("/search")
	if err != nil {
		return nil, fmt.Errorf("failed to call product search: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, &ProductSearchError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	products := result.Products
	if len(products) > MaxCandidates {
		products = products[:MaxCandidates]
	}

	candidates := make([]model.ProductCandidate, 0, len(products))
	for _, p := range products {
		if p.ASIN == "" {
			continue
		}
		candidates = append(candidates, c.candidate(p))
	}
	return candidates, nil
}

func (c *KeepaClient) candidate(p keepaProduct) model.ProductCandidate {
	out := model.ProductCandidate{
		ID:         p.ASIN,
		Title:      p.Title,
		ProductURL: fmt.Sprintf(amazonProductFn, p.ASIN, c.tag),
		IsBook:     p.RootCategory == BooksCategory,
	}
	if first, _, _ := strings.Cut(p.ImagesCSV, ","); first != "" {
		out.ImageURL = amazonImageBase + first
	}
	return out
}
