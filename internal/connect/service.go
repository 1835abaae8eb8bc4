package connect

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v84"

	"github.com/homeplate-app/homeplate-backend/internal/chefs"
	"github.com/homeplate-app/homeplate-backend/pkg/config"
	"github.com/homeplate-app/homeplate-backend/pkg/db"
	"github.com/homeplate-app/homeplate-backend/pkg/db/models"
	pkgerrors "github.com/homeplate-app/homeplate-backend/pkg/errors"
	"github.com/homeplate-app/homeplate-backend/pkg/logger"
)

// Status reports a chef's payout readiness. The zero value means no
// connected account exists yet.
type Status struct {
	HasAccount       bool
	AccountID        string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	Requirements     []string
	Capabilities     map[string]string
	LoginLink        string
}

type accountGateway interface {
	CreateAccount(ctx context.Context, params *stripe.AccountParams) (*stripe.Account, error)
	GetAccount(ctx context.Context, id string) (*stripe.Account, error)
	CreateAccountLink(ctx context.Context, params *stripe.AccountLinkParams) (*stripe.AccountLink, error)
	CreateLoginLink(ctx context.Context, accountID string) (*stripe.LoginLink, error)
}

// Service handles chef payout onboarding with the processor's hosted flow.
type Service interface {
	// Onboard ensures the chef has a connected account and returns a hosted
	// onboarding link. Safe to call repeatedly.
	Onboard(ctx context.Context, userID string) (string, error)
	// AccountStatus fetches the live account state and mirrors the
	// charges-enabled bit locally.
	AccountStatus(ctx context.Context, userID string) (*Status, error)
}

// ServiceParams configure the connect service.
type ServiceParams struct {
	Logger  *logger.Logger
	Chefs   chefs.Repository
	Gateway accountGateway
	Stripe  config.StripeConfig
}

type service struct {
	logg    *logger.Logger
	chefs   chefs.Repository
	gateway accountGateway
	stripe  config.StripeConfig
}

// NewService builds the connect service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Chefs == nil {
		return nil, fmt.Errorf("chefs repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("account gateway required")
	}
	return &service{
		logg:    params.Logger,
		chefs:   params.Chefs,
		gateway: params.Gateway,
		stripe:  params.Stripe,
	}, nil
}

func (s *service) Onboard(ctx context.Context, userID string) (string, error) {
	chef, err := s.loadChef(ctx, userID)
	if err != nil {
		return "", err
	}

	accountID, err := s.ensureAccount(ctx, chef.ID, chef.StripeAccountID, chef.Email)
	if err != nil {
		return "", err
	}

	link, err := s.gateway.CreateAccountLink(ctx, &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
		ReturnURL:  stripe.String(s.stripe.OnboardReturnURL),
		RefreshURL: stripe.String(s.stripe.OnboardRefreshURL),
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create onboarding link")
	}
	return link.URL, nil
}

func (s *service) AccountStatus(ctx context.Context, userID string) (*Status, error) {
	chef, err := s.loadChef(ctx, userID)
	if err != nil {
		return nil, err
	}
	if chef.StripeAccountID == nil || *chef.StripeAccountID == "" {
		return &Status{}, nil
	}

	account, err := s.gateway.GetAccount(ctx, *chef.StripeAccountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch connected account")
	}

	if account.ChargesEnabled != chef.ChargesEnabled {
		if err := s.chefs.SetChargesEnabled(ctx, chef.ID, account.ChargesEnabled); err != nil {
			// The processor already answered; the account.updated webhook
			// will catch the local flag up.
			logCtx := s.logg.WithField(ctx, "chef_id", chef.ID)
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "failed to mirror charges flag")
		}
	}

	status := &Status{
		HasAccount:       true,
		AccountID:        *chef.StripeAccountID,
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
	}
	if account.Requirements != nil {
		status.Requirements = account.Requirements.CurrentlyDue
	}
	if account.Capabilities != nil {
		status.Capabilities = map[string]string{
			"transfers": string(account.Capabilities.Transfers),
		}
	}
	if account.ChargesEnabled {
		login, err := s.gateway.CreateLoginLink(ctx, *chef.StripeAccountID)
		if err != nil {
			// Dashboard access is a convenience; report status without it.
			logCtx := s.logg.WithUserID(ctx, userID)
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "failed to create dashboard login link")
		} else {
			status.LoginLink = login.URL
		}
	}
	return status, nil
}

// ensureAccount creates the connected account on first use. The conditional
// write loses to a concurrent onboard; re-read and use whichever account won.
func (s *service) ensureAccount(ctx context.Context, chefID int64, existing *string, email string) (string, error) {
	if existing != nil && *existing != "" {
		return *existing, nil
	}

	account, err := s.gateway.CreateAccount(ctx, &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{
				Requested: stripe.Bool(true),
			},
		},
		// Lets account.updated events find the chef before the local
		// account id write lands.
		Metadata: map[string]string{
			"chef_id": strconv.FormatInt(chefID, 10),
		},
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create connected account")
	}

	applied, err := s.chefs.SetAccountID(ctx, chefID, account.ID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record connected account")
	}
	if !applied {
		chef, err := s.chefs.FindByID(ctx, chefID)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload chef")
		}
		if chef.StripeAccountID == nil || *chef.StripeAccountID == "" {
			return "", pkgerrors.New(pkgerrors.CodeInternal, "connected account write lost without a winner")
		}
		logCtx := s.logg.WithField(ctx, "orphan_account_id", account.ID)
		s.logg.Warn(logCtx, "concurrent onboard won; created account is orphaned")
		return *chef.StripeAccountID, nil
	}
	return account.ID, nil
}

func (s *service) loadChef(ctx context.Context, userID string) (*models.Chef, error) {
	chef, err := s.chefs.FindByUserID(ctx, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "chef profile not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load chef")
	}
	return chef, nil
}
