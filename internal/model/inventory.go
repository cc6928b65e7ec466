package model

import "time"

// InventoryItem is one thing in a user's fridge. It comes from a fridge scan
// (ScanJobID set) or manual entry.
type InventoryItem struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string    `gorm:"type:text;not null;index" json:"-"`
	Name       string    `gorm:"not null" json:"name"`
	Quantity   *string   `json:"quantity,omitempty"`
	Category   *string   `gorm:"index" json:"category,omitempty"`
	Confidence *string   `gorm:"type:varchar(10)" json:"confidence,omitempty"`
	ScanJobID  *string   `gorm:"type:uuid;index" json:"scanJobId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (InventoryItem) TableName() string { return "inventory_items" }
