package models

import "time"

// Chef is the seller profile. StripeAccountID and ChargesEnabled are the local
// mirror of the connected payout account; the webhook ingestor and the connect
// status endpoint keep them current.
type Chef struct {
	ID     int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID string `gorm:"column:user_id;not null;uniqueIndex"`
	Name   string `gorm:"column:name;not null"`
	Email  string `gorm:"column:email;not null"`

	// StripeAccountID is persisted exactly once when onboarding starts.
	StripeAccountID *string `gorm:"column:stripe_account_id;uniqueIndex"`
	ChargesEnabled  bool    `gorm:"column:charges_enabled;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
