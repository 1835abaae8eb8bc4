package models

import "time"

// OrderLine snapshots one dish at checkout time. UnitPriceCents is copied from
// the dish when the order is created and is immutable afterwards.
type OrderLine struct {
	ID             int64 `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID        int64 `gorm:"column:order_id;not null;index"`
	DishID         int64 `gorm:"column:dish_id;not null"`
	Quantity       int64 `gorm:"column:quantity;not null"`
	UnitPriceCents int64 `gorm:"column:unit_price_cents;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
