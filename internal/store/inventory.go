package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fridgechef/api/internal/model"
)

type InventoryRepository struct {
	db *gorm.DB
}

// InventoryUpdate holds the editable fields of an item. Nil means unchanged.
type InventoryUpdate struct {
	Name     *string
	Quantity *string
	Category *string
}

func (r *InventoryRepository) List(ctx context.Context, userID, category string) ([]model.InventoryItem, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if category != "" {
		q = q.Where("category = ?", category)
	}

	var items []model.InventoryItem
	err := q.Order("created_at, id").Find(&items).Error
	return items, err
}

// ListByScan returns the items a fridge scan produced, in insertion order.
func (r *InventoryRepository) ListByScan(ctx context.Context, userID, scanJobID string) ([]model.InventoryItem, error) {
	var items []model.InventoryItem
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND scan_job_id = ?", userID, scanJobID).
		Order("created_at, id").
		Find(&items).Error
	return items, err
}

func (r *InventoryRepository) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.InventoryItem{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

func (r *InventoryRepository) Create(ctx context.Context, items []model.InventoryItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *InventoryRepository) Update(ctx context.Context, userID, id string, u InventoryUpdate) (*model.InventoryItem, error) {
	cols := map[string]any{}
	if u.Name != nil {
		cols["name"] = *u.Name
	}
	if u.Quantity != nil {
		cols["quantity"] = *u.Quantity
	}
	if u.Category != nil {
		cols["category"] = *u.Category
	}

	db := r.db.WithContext(ctx)
	if len(cols) > 0 {
		res := db.Model(&model.InventoryItem{}).Where("id = ? AND user_id = ?", id, userID).Updates(cols)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return takeOwned[model.InventoryItem](db, userID, id)
}

func (r *InventoryRepository) Delete(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&model.InventoryItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear deletes all of the user's items and returns how many there were.
func (r *InventoryRepository) Clear(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.InventoryItem{})
	return res.RowsAffected, res.Error
}
