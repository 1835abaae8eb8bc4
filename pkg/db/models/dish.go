package models

import "time"

// Dish is a chef's listed item. Only id, chef and price matter to the escrow
// core; browsing fields live with the catalogue service.
type Dish struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ChefID     int64  `gorm:"column:chef_id;not null;index"`
	Title      string `gorm:"column:title;not null"`
	PriceCents int64  `gorm:"column:price_cents;not null"`
	Available  bool   `gorm:"column:available;not null;default:true"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
