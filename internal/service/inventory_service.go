package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/cache"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/store"
)

// InventoryService edits a user's fridge inventory. Every change drops the
// user's cached recommendations.
type InventoryService struct {
	db    *store.DB
	cache *cache.Cache
	log   *zap.Logger
}

func NewInventoryService(db *store.DB, c *cache.Cache, log *zap.Logger) *InventoryService {
	return &InventoryService{db: db, cache: c, log: log}
}

func (s *InventoryService) List(ctx context.Context, userID, category string) ([]model.InventoryItem, error) {
	items, err := s.db.Repos().Inventory.List(ctx, userID, category)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.InventoryItem{}
	}
	return items, nil
}

// Add stores manually entered items.
func (s *InventoryService) Add(ctx context.Context, userID string, req *model.AddInventoryRequest) ([]model.InventoryItem, error) {
	items := make([]model.InventoryItem, 0, len(req.Items))
	for _, in := range req.Items {
		items = append(items, model.InventoryItem{
			UserID:   userID,
			Name:     strings.TrimSpace(in.Name),
			Quantity: in.Quantity,
			Category: in.Category,
		})
	}
	if err := s.db.Repos().Inventory.Create(ctx, items); err != nil {
		return nil, err
	}
	s.cache.InvalidateUser(ctx, userID)
	return items, nil
}

func (s *InventoryService) Update(ctx context.Context, userID, id string, req *model.UpdateInventoryRequest) (*model.InventoryItem, error) {
	u := store.InventoryUpdate{Quantity: req.Quantity, Category: req.Category}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		u.Name = &name
	}
	item, err := s.db.Repos().Inventory.Update(ctx, userID, id, u)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateUser(ctx, userID)
	return item, nil
}

func (s *InventoryService) Delete(ctx context.Context, userID, id string) error {
	if err := s.db.Repos().Inventory.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.cache.InvalidateUser(ctx, userID)
	return nil
}

// Clear removes every item and reports how many were removed.
func (s *InventoryService) Clear(ctx context.Context, userID string) (int64, error) {
	n, err := s.db.Repos().Inventory.Clear(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.cache.InvalidateUser(ctx, userID)
	s.log.Info("inventory cleared", zap.String("user_id", userID), zap.Int64("removed", n))
	return n, nil
}
