package chefs

import (
	"context"
	"errors"

	"github.com/homeplate-app/homeplate-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository provides chef profile lookups and the payout-account mirror writes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id int64) (*models.Chef, error)
	FindByUserID(ctx context.Context, userID string) (*models.Chef, error)
	FindByAccountID(ctx context.Context, accountID string) (*models.Chef, error)
	// SetAccountID persists the payout account id only when none is stored yet.
	// Returns false when another writer got there first.
	SetAccountID(ctx context.Context, chefID int64, accountID string) (bool, error)
	SetChargesEnabled(ctx context.Context, chefID int64, enabled bool) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a chef repository backed by the provided DB.
func NewRepository(db *gorm.DB) Repository {
	if db == nil {
		return nil
	}
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Chef, error) {
	var chef models.Chef
	if err := r.db.WithContext(ctx).First(&chef, id).Error; err != nil {
		return nil, err
	}
	return &chef, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID string) (*models.Chef, error) {
	var chef models.Chef
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&chef).Error
	if err != nil {
		return nil, err
	}
	return &chef, nil
}

func (r *repository) FindByAccountID(ctx context.Context, accountID string) (*models.Chef, error) {
	if accountID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var chef models.Chef
	err := r.db.WithContext(ctx).Where("stripe_account_id = ?", accountID).First(&chef).Error
	if err != nil {
		return nil, err
	}
	return &chef, nil
}

func (r *repository) SetAccountID(ctx context.Context, chefID int64, accountID string) (bool, error) {
	if accountID == "" {
		return false, errors.New("account id is required")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Chef{}).
		Where("id = ? AND stripe_account_id IS NULL", chefID).
		Update("stripe_account_id", accountID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetChargesEnabled(ctx context.Context, chefID int64, enabled bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Chef{}).
		Where("id = ?", chefID).
		Update("charges_enabled", enabled).Error
}
