package models

import (
	"time"

	"github.com/homeplate-app/homeplate-backend/pkg/enums"
)

// Order is the escrow record tying a buyer's checkout to a chef's payout.
// Once lines are attached it is never deleted; it serves as the audit trail
// for every money movement.
type Order struct {
	ID          int64             `gorm:"column:id;primaryKey;autoIncrement"`
	BuyerUserID string            `gorm:"column:buyer_user_id;not null;index"`
	ChefID      int64             `gorm:"column:chef_id;not null;index"`
	Status      enums.OrderStatus `gorm:"column:status;not null;default:'requested'"`

	// TotalCents is fixed at creation as the sum over lines and never recomputed.
	TotalCents int64 `gorm:"column:total_cents;not null"`

	PickupAt  time.Time `gorm:"column:pickup_at;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`

	CheckoutSessionID *string `gorm:"column:checkout_session_id"`
	PaymentIntentID   *string `gorm:"column:payment_intent_id"`

	// LegacyPaymentIntentID is the pre-rename column that older rows still carry.
	// resolvePaymentIntentID in internal/orders is the only reader.
	LegacyPaymentIntentID *string `gorm:"column:stripe_payment_intent_id"`

	// TransferGroup is assigned once at creation and never reassigned.
	TransferGroup string `gorm:"column:transfer_group;not null;default:''"`

	// TransferID is set at most once across the order's lifetime.
	TransferID       *string `gorm:"column:transfer_id"`
	PlatformFeeCents int64   `gorm:"column:platform_fee_cents;not null;default:0"`

	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;not null;default:'requires_payment_method'"`

	Lines []OrderLine `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
