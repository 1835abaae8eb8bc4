package orders

import "github.com/homeplate-app/homeplate-backend/pkg/db/models"

// resolvePaymentIntentID returns the order's active payment-intent identifier.
// The column was renamed at some point; older rows only carry the legacy field,
// so the new column wins and the legacy one is the fallback. Every caller that
// needs "the" intent id goes through here rather than reading the fields inline.
func resolvePaymentIntentID(order *models.Order) string {
	if order == nil {
		return ""
	}
	if order.PaymentIntentID != nil && *order.PaymentIntentID != "" {
		return *order.PaymentIntentID
	}
	if order.LegacyPaymentIntentID != nil && *order.LegacyPaymentIntentID != "" {
		return *order.LegacyPaymentIntentID
	}
	return ""
}
