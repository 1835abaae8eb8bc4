package checkout

import (
	"context"

	"gorm.io/gorm"

	"github.com/homeplate-app/homeplate-backend/pkg/db/models"
)

// DishRepository loads the dishes a checkout references.
type DishRepository interface {
	FindByIDs(ctx context.Context, ids []int64) ([]models.Dish, error)
}

type dishRepository struct {
	db *gorm.DB
}

// NewDishRepository builds the gorm-backed dish repository.
func NewDishRepository(db *gorm.DB) DishRepository {
	return &dishRepository{db: db}
}

func (r *dishRepository) FindByIDs(ctx context.Context, ids []int64) ([]models.Dish, error) {
	var dishes []models.Dish
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&dishes).Error
	if err != nil {
		return nil, err
	}
	return dishes, nil
}
