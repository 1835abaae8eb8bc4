package controllers

import (
	"net/http"

	"github.com/homeplate-app/homeplate-backend/api/middleware"
	"github.com/homeplate-app/homeplate-backend/api/responses"
	"github.com/homeplate-app/homeplate-backend/internal/connect"
	pkgerrors "github.com/homeplate-app/homeplate-backend/pkg/errors"
	"github.com/homeplate-app/homeplate-backend/pkg/logger"
)

type onboardResponse struct {
	URL string `json:"url"`
}

type connectStatusResponse struct {
	HasAccount       bool              `json:"hasAccount"`
	AccountID        string            `json:"accountId,omitempty"`
	ChargesEnabled   bool              `json:"charges_enabled"`
	PayoutsEnabled   bool              `json:"payouts_enabled"`
	DetailsSubmitted bool              `json:"details_submitted"`
	Requirements     []string          `json:"requirements"`
	Capabilities     map[string]string `json:"capabilities"`
	LoginLink        string            `json:"loginLink,omitempty"`
}

// ConnectOnboard starts or resumes the chef's payout onboarding.
func ConnectOnboard(svc connect.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "connect service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		url, err := svc.Onboard(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, onboardResponse{URL: url})
	}
}

// ConnectStatus reports the chef's live payout readiness.
func ConnectStatus(svc connect.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "connect service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		status, err := svc.AccountStatus(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, connectStatusResponse{
			HasAccount:       status.HasAccount,
			AccountID:        status.AccountID,
			ChargesEnabled:   status.ChargesEnabled,
			PayoutsEnabled:   status.PayoutsEnabled,
			DetailsSubmitted: status.DetailsSubmitted,
			Requirements:     status.Requirements,
			Capabilities:     status.Capabilities,
			LoginLink:        status.LoginLink,
		})
	}
}
