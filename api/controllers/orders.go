package controllers

import (
	"net/http"

	"github.com/homeplate-app/homeplate-backend/api/middleware"
	"github.com/homeplate-app/homeplate-backend/api/responses"
	"github.com/homeplate-app/homeplate-backend/api/validators"
	"github.com/homeplate-app/homeplate-backend/internal/orders"
	"github.com/homeplate-app/homeplate-backend/pkg/enums"
	pkgerrors "github.com/homeplate-app/homeplate-backend/pkg/errors"
	"github.com/homeplate-app/homeplate-backend/pkg/logger"
)

type orderActionRequest struct {
	OrderID int64 `json:"orderId" validate:"required,gt=0"`
}

type cancelOrderRequest struct {
	OrderID int64  `json:"orderId" validate:"required,gt=0"`
	Reason  string `json:"reason,omitempty" validate:"omitempty,oneof=chef_rejected expired user_cancelled"`
}

type acceptOrderResponse struct {
	OK         bool   `json:"ok"`
	TransferID string `json:"transferId"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type sweepResponse struct {
	Checked  int `json:"checked"`
	Rejected int `json:"rejected"`
}

func actorFromContext(r *http.Request) orders.Actor {
	return orders.Actor{
		UserID: middleware.UserIDFromContext(r.Context()),
		Role:   enums.Role(middleware.RoleFromContext(r.Context())),
	}
}

// AcceptOrder confirms a requested order and pays the chef their share.
func AcceptOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var payload orderActionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Accept(r.Context(), actorFromContext(r), payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, acceptOrderResponse{OK: true, TransferID: result.TransferID})
	}
}

// CaptureOrder is the recovery path for orders whose authorization was never
// captured by the normal acceptance flow.
func CaptureOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var payload orderActionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Capture(r.Context(), actorFromContext(r), payload.OrderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, okResponse{OK: true})
	}
}

// CancelOrder voids or refunds the payment and closes the order. An omitted
// reason defaults to the buyer self-service cancellation.
func CancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var payload cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reason := enums.CancelReasonUserCancelled
		if payload.Reason != "" {
			reason = enums.CancelReason(payload.Reason)
		}

		if err := svc.Cancel(r.Context(), actorFromContext(r), payload.OrderID, reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, okResponse{OK: true})
	}
}

// SweepOrders runs one expiry pass on demand and reports what it touched.
func SweepOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		result, err := svc.Sweep(r.Context())
		if err != nil && result.Checked == 0 {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err != nil && logg != nil {
			logg.Error(r.Context(), "sweep finished with per-order failures", err)
		}

		responses.WriteSuccess(w, sweepResponse{Checked: result.Checked, Rejected: result.Rejected})
	}
}
