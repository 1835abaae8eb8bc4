package orders

import (
	"context"
	"time"

	"github.com/homeplate-app/homeplate-backend/pkg/db/models"
	"github.com/homeplate-app/homeplate-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository persists orders. Every lifecycle mutation is a conditional write:
// the update applies only when the stored row still matches the expected
// pre-state, and the caller learns whether it won the race.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, order *models.Order) error
	CreateLines(ctx context.Context, lines []models.OrderLine) error
	// Delete is the compensating delete used when line insertion fails right
	// after the order row was created. Orders with lines are never deleted.
	Delete(ctx context.Context, orderID int64) error

	FindByID(ctx context.Context, orderID int64) (*models.Order, error)
	// FindByPaymentIntent matches payment_intent_id first and falls back to the
	// legacy column for rows written before the rename.
	FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
	FindExpiredRequested(ctx context.Context, cutoff time.Time) ([]models.Order, error)

	SetTransferGroup(ctx context.Context, orderID int64, group string) error
	SetCheckoutSession(ctx context.Context, orderID int64, sessionID string, intentID *string) error
	SetPaymentIntentID(ctx context.Context, orderID int64, intentID string) error
	SetPaymentStatus(ctx context.Context, orderID int64, status enums.PaymentStatus) error

	// ApplyAcceptance flips requested→pending and records the transfer, only if
	// no transfer was recorded yet.
	ApplyAcceptance(ctx context.Context, orderID int64, transferID string, feeCents int64) (bool, error)
	// ApplyStatus is the generic compare-and-set lifecycle write. A nil payment
	// status leaves payment_status untouched.
	ApplyStatus(ctx context.Context, orderID int64, from, to enums.OrderStatus, payment *enums.PaymentStatus) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an order repository backed by the provided DB.
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

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Lines").Create(order).Error
}

func (r *repository) CreateLines(ctx context.Context, lines []models.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

func (r *repository) Delete(ctx context.Context, orderID int64) error {
	return r.db.WithContext(ctx).Delete(&models.Order{}, orderID).Error
}

func (r *repository) FindByID(ctx context.Context, orderID int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Lines").First(&order, orderID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	if intentID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var order models.Order
	err := r.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).First(&order).Error
	if err == nil {
		return &order, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	err = r.db.WithContext(ctx).Where("stripe_payment_intent_id = ?", intentID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindExpiredRequested(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var stale []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", enums.OrderStatusRequested, cutoff).
		Order("id").
		Find(&stale).Error
	if err != nil {
		return nil, err
	}
	return stale, nil
}

func (r *repository) SetTransferGroup(ctx context.Context, orderID int64, group string) error {
	// transfer_group is assigned once; re-assignment is silently refused.
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND transfer_group = ''", orderID).
		Update("transfer_group", group).Error
}

func (r *repository) SetCheckoutSession(ctx context.Context, orderID int64, sessionID string, intentID *string) error {
	updates := map[string]any{"checkout_session_id": sessionID}
	if intentID != nil && *intentID != "" {
		updates["payment_intent_id"] = *intentID
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

func (r *repository) SetPaymentIntentID(ctx context.Context, orderID int64, intentID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("payment_intent_id", intentID).Error
}

func (r *repository) SetPaymentStatus(ctx context.Context, orderID int64, status enums.PaymentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("payment_status", status).Error
}

func (r *repository) ApplyAcceptance(ctx context.Context, orderID int64, transferID string, feeCents int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND transfer_id IS NULL", orderID, enums.OrderStatusRequested).
		Updates(map[string]any{
			"status":             enums.OrderStatusPending,
			"transfer_id":        transferID,
			"platform_fee_cents": feeCents,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ApplyStatus(ctx context.Context, orderID int64, from, to enums.OrderStatus, payment *enums.PaymentStatus) (bool, error) {
	updates := map[string]any{"status": to}
	if payment != nil {
		updates["payment_status"] = *payment
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
