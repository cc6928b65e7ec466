package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fridgechef/api/internal/config"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

var (
	// ErrNoJSON is returned when the model answered without a JSON object.
	ErrNoJSON = errors.New("no JSON found in vision response")
	// ErrEmptyResponse is returned when the model produced no choices.
	ErrEmptyResponse = errors.New("empty vision response")
)

// Vision extracts structured data from photos.
type Vision interface {
	ExtractRecipes(ctx context.Context, image []byte) (*RecipeExtraction, error)
	ExtractFridgeItems(ctx context.Context, image []byte) (*FridgeExtraction, error)
}

// RecipeExtraction is what the model read off one cookbook page.
type RecipeExtraction struct {
	Recipes         []ExtractedRecipe `json:"recipes"`
	PageNumber      string            `json:"pageNumber,omitempty"`
	BookTitle       string            `json:"bookTitle,omitempty"`
	IsValidCookbook bool              `json:"isValidCookbook"`
}

type ExtractedRecipe struct {
	Name         string                `json:"name"`
	Ingredients  []ExtractedIngredient `json:"ingredients"`
	Instructions []string              `json:"instructions"`
	PrepTime     string                `json:"prepTime,omitempty"`
	CookTime     string                `json:"cookTime,omitempty"`
	TotalTime    string                `json:"totalTime,omitempty"`
	Servings     int                   `json:"servings,omitempty"`
	Cuisine      string                `json:"cuisine,omitempty"`
	Notes        string                `json:"notes,omitempty"`
}

type ExtractedIngredient struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// FridgeExtraction is what the model identified in one fridge photo.
type FridgeExtraction struct {
	Items         []ExtractedItem `json:"items"`
	ImageQuality  string          `json:"imageQuality,omitempty"`
	IsValidFridge bool            `json:"isValidFridge"`
}

type ExtractedItem struct {
	Name       string `json:"name"`
	Quantity   string `json:"quantity,omitempty"`
	Category   string `json:"category,omitempty"`
	Freshness  string `json:"freshness,omitempty"`
	Confidence string `json:"confidence,omitempty"`
}

// VisionClient calls an OpenAI compatible chat completion endpoint with the
// image inlined as a data URL.
type VisionClient struct {
	client openai.Client
	model  string
}

// NewVisionClient returns nil when no API key is configured.
func NewVisionClient(cfg config.VisionConfig) *VisionClient {
	if cfg.APIKey == "" {
		return nil
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(2),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &VisionClient{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

// ExtractRecipes reads every recipe on a cookbook page
func (c *VisionClient) ExtractRecipes(ctx context.Context, image []byte) (*RecipeExtraction, error) {
	var out RecipeExtraction
	if err := c.complete(ctx, cookbookPrompt, image, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExtractFridgeItems lists the food visible in a fridge photo
func (c *VisionClient) ExtractFridgeItems(ctx context.Context, image []byte) (*FridgeExtraction, error) {
	var out FridgeExtraction
	if err := c.complete(ctx, fridgePrompt, image, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *VisionClient) complete(ctx context.Context, prompt string, image []byte, dst any) error {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL(image),
				}),
			}),
		},
		Temperature: openai.Float(0.1),
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return fmt.Errorf("vision API call failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return ErrEmptyResponse
	}

	return DecodeJSONObject(completion.Choices[0].Message.Content, dst)
}

// IsRateLimitError reports whether the provider throttled the request.
func IsRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// DecodeJSONObject decodes the outermost JSON object in a model reply,
// ignoring any prose or code fences around it.
func DecodeJSONObject(text string, dst any) error {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), dst); err != nil {
		return fmt.Errorf("invalid JSON in vision response: %w", err)
	}
	return nil
}

func dataURL(image []byte) string {
	return "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
}

const cookbookPrompt = `You are a recipe extraction assistant. Analyze this cookbook page image and extract ALL recipes visible.

Return JSON in exactly this shape:
{
  "recipes": [
    {
      "name": "Recipe Name",
      "ingredients": [{"name": "ingredient name", "quantity": "amount", "unit": "measurement unit", "notes": "optional"}],
      "instructions": ["Step 1 description", "Step 2 description"],
      "prepTime": "10 minutes",
      "cookTime": "20 minutes",
      "totalTime": "30 minutes",
      "servings": 4,
      "cuisine": "cuisine if obvious",
      "notes": "tips"
    }
  ],
  "pageNumber": "page number if visible",
  "bookTitle": "cookbook title if visible on page",
  "isValidCookbook": true
}

Rules:
- If no recipes are found, return an empty recipes array
- If the image is not a cookbook page, set "isValidCookbook": false
- Keep quantities exactly as written (e.g. "1/2 cup")
- Ingredient names must not contain the quantity or unit
- Return ONLY valid JSON, no additional text`

const fridgePrompt = `You are a food identification assistant. Analyze this refrigerator image and identify ALL visible food items.

Return JSON in exactly this shape:
{
  "items": [
    {"name": "item name", "quantity": "estimated amount", "category": "produce", "freshness": "fresh", "confidence": "high"}
  ],
  "imageQuality": "good",
  "isValidFridge": true
}

Rules:
- If the image is not a fridge, set "isValidFridge": false
- Be specific ("red bell pepper", not "pepper")
- Group similar items ("3 eggs", not three entries)
- Ignore non-food items
- confidence is one of high, medium, low
- Return ONLY valid JSON, no additional text`
