package controllers

import (
	"net/http"
	"time"

	"github.com/homeplate-app/homeplate-backend/api/middleware"
	"github.com/homeplate-app/homeplate-backend/api/responses"
	"github.com/homeplate-app/homeplate-backend/api/validators"
	checkoutsvc "github.com/homeplate-app/homeplate-backend/internal/checkout"
	pkgerrors "github.com/homeplate-app/homeplate-backend/pkg/errors"
	"github.com/homeplate-app/homeplate-backend/pkg/logger"
)

type checkoutItem struct {
	DishID   int64 `json:"dishId" validate:"required,gt=0"`
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

type checkoutRequest struct {
	Items       []checkoutItem `json:"items" validate:"required,min=1,dive"`
	PickupAtISO string         `json:"pickupAtISO" validate:"required"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// Checkout creates a requested order from the submitted cart and returns the
// hosted payment page URL.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pickupAt, err := time.Parse(time.RFC3339, payload.PickupAtISO)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "pickupAtISO must be an RFC3339 timestamp"))
			return
		}

		items := make([]checkoutsvc.Item, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, checkoutsvc.Item{DishID: item.DishID, Quantity: item.Quantity})
		}

		result, err := svc.Create(r.Context(), userID, items, pickupAt)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, checkoutResponse{URL: result.CheckoutURL})
	}
}
