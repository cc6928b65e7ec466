package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fridgechef/api/internal/model"
)

// MemoryStorage keeps objects in memory. Used when no bucket is configured
// and in tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte), baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (m *MemoryStorage) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return m.GetPublicURL(key), nil
}

func (m *MemoryStorage) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return bytes.Clone(data), nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) GetSignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("%s?expires=%d", m.GetPublicURL(key), int(expiry.Seconds())), nil
}

func (m *MemoryStorage) GetPublicURL(key string) string {
	return fmt.Sprintf("%s/%s", m.baseURL, key)
}

// Len is the number of stored objects.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// MockVision returns canned extractions so the pipeline runs without a
// vision provider.
type MockVision struct{}

func (MockVision) ExtractRecipes(_ context.Context, _ []byte) (*RecipeExtraction, error) {
	return &RecipeExtraction{
		IsValidCookbook: true,
		Recipes: []ExtractedRecipe{
			{
				Name: "Simple Omelette",
				Ingredients: []ExtractedIngredient{
					{Name: "eggs", Quantity: "3"},
					{Name: "butter", Quantity: "1", Unit: "tbsp"},
					{Name: "salt", Quantity: "1", Unit: "pinch"},
				},
				Instructions: []string{"Whisk the eggs with salt.", "Melt butter and cook the eggs gently."},
				TotalTime:    "10 minutes",
				Servings:     1,
			},
		},
	}, nil
}

func (MockVision) ExtractFridgeItems(_ context.Context, _ []byte) (*FridgeExtraction, error) {
	return &FridgeExtraction{
		IsValidFridge: true,
		ImageQuality:  "good",
		Items: []ExtractedItem{
			{Name: "eggs", Quantity: "6", Category: "dairy", Confidence: "high"},
			{Name: "butter", Quantity: "1 block", Category: "dairy", Confidence: "high"},
			{Name: "milk", Quantity: "1 liter", Category: "dairy", Confidence: "medium"},
		},
	}, nil
}

// MockProductSearch echoes the title back as a single exact hit.
type MockProductSearch struct{}

func (MockProductSearch) SearchProducts(_ context.Context, title string) ([]model.ProductCandidate, error) {
	return []model.ProductCandidate{
		{ID: "MOCK000001", Title: title, IsBook: true},
	}, nil
}
