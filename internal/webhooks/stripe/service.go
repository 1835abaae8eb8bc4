package stripewebhook

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/stripe/stripe-go/v84"

	"github.com/homeplate-app/homeplate-backend/pkg/db"
	"github.com/homeplate-app/homeplate-backend/pkg/db/models"
	"github.com/homeplate-app/homeplate-backend/pkg/enums"
	pkgerrors "github.com/homeplate-app/homeplate-backend/pkg/errors"
	"github.com/homeplate-app/homeplate-backend/pkg/logger"
)

type orderRepository interface {
	FindByID(ctx context.Context, orderID int64) (*models.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error)
	SetPaymentIntentID(ctx context.Context, orderID int64, intentID string) error
	SetPaymentStatus(ctx context.Context, orderID int64, status enums.PaymentStatus) error
}

type chefRepository interface {
	FindByID(ctx context.Context, chefID int64) (*models.Chef, error)
	FindByAccountID(ctx context.Context, accountID string) (*models.Chef, error)
	SetAccountID(ctx context.Context, chefID int64, accountID string) (bool, error)
	SetChargesEnabled(ctx context.Context, chefID int64, enabled bool) error
}

// ServiceParams configure the webhook service.
type ServiceParams struct {
	Logger *logger.Logger
	Orders orderRepository
	Chefs  chefRepository
}

// Service mirrors processor events onto local records. Handlers only ever
// touch payment_status and the connected-account flags; the order lifecycle
// status stays owned by the API paths.
type Service struct {
	logg   *logger.Logger
	orders orderRepository
	chefs  chefRepository
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Chefs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "chefs repo required")
	}
	return &Service{
		logg:   params.Logger,
		orders: params.Orders,
		chefs:  params.Chefs,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		return s.handleSessionCompleted(ctx, &sess)
	case stripe.EventTypePaymentIntentCanceled:
		return s.handleIntentStatus(ctx, event, enums.PaymentStatusCanceled)
	case stripe.EventTypePaymentIntentPaymentFailed:
		return s.handleIntentStatus(ctx, event, enums.PaymentStatusFailed)
	case stripe.EventTypeAccountUpdated:
		var account stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &account); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode account event")
		}
		return s.handleAccountUpdated(ctx, &account)
	default:
		logCtx := s.logg.WithField(ctx, "event_type", string(event.Type))
		s.logg.Info(logCtx, "ignoring unhandled stripe event")
		return nil
	}
}

func (s *Service) handleSessionCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	raw := sess.Metadata["order_id"]
	if raw == "" {
		raw = sess.ClientReferenceID
	}
	orderID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logCtx := s.logg.WithField(ctx, "session_id", sess.ID)
		s.logg.Warn(logCtx, "checkout session carries no usable order id")
		return nil
	}

	logCtx := s.logg.WithOrderID(ctx, orderID)
	order, err := s.orders.FindByID(logCtx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			s.logg.Warn(logCtx, "checkout session references unknown order")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	if (order.PaymentIntentID == nil || *order.PaymentIntentID == "") &&
		sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		if err := s.orders.SetPaymentIntentID(logCtx, order.ID, sess.PaymentIntent.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "backfill payment intent")
		}
	}

	if err := s.orders.SetPaymentStatus(logCtx, order.ID, enums.PaymentStatusSucceeded); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment success")
	}
	s.logg.Info(logCtx, "payment authorized for order")
	return nil
}

func (s *Service) handleIntentStatus(ctx context.Context, event *stripe.Event, status enums.PaymentStatus) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
	}

	order, err := s.orders.FindByPaymentIntent(ctx, intent.ID)
	if err != nil {
		if db.IsNotFound(err) {
			logCtx := s.logg.WithField(ctx, "payment_intent_id", intent.ID)
			s.logg.Warn(logCtx, "payment intent event matches no order")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find order by payment intent")
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID)
	if err := s.orders.SetPaymentStatus(logCtx, order.ID, status); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment status")
	}
	s.logg.Info(s.logg.WithField(logCtx, "payment_status", status.String()), "payment status mirrored")
	return nil
}

func (s *Service) handleAccountUpdated(ctx context.Context, account *stripe.Account) error {
	chef, err := s.chefs.FindByAccountID(ctx, account.ID)
	if err != nil {
		if !db.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find chef by account")
		}
		chef, err = s.backfillAccountID(ctx, account)
		if err != nil {
			return err
		}
		if chef == nil {
			logCtx := s.logg.WithField(ctx, "account_id", account.ID)
			s.logg.Warn(logCtx, "account event matches no chef")
			return nil
		}
	}

	if chef.ChargesEnabled == account.ChargesEnabled {
		return nil
	}
	if err := s.chefs.SetChargesEnabled(ctx, chef.ID, account.ChargesEnabled); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mirror charges flag")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"chef_id":         chef.ID,
		"charges_enabled": account.ChargesEnabled,
	})
	s.logg.Info(logCtx, "chef payout readiness updated")
	return nil
}

// backfillAccountID locates the chef through the creation metadata when the
// event lands before the onboarding write does, and links the account to the
// profile. Returns nil when the account carries no usable chef reference.
func (s *Service) backfillAccountID(ctx context.Context, account *stripe.Account) (*models.Chef, error) {
	chefID, err := strconv.ParseInt(account.Metadata["chef_id"], 10, 64)
	if err != nil {
		return nil, nil
	}

	chef, err := s.chefs.FindByID(ctx, chefID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find chef by account metadata")
	}

	applied, err := s.chefs.SetAccountID(ctx, chef.ID, account.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "backfill account id")
	}
	if !applied {
		// The conditional write only applies while the profile is unlinked,
		// so losing it means a different account already owns this chef.
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"chef_id":    chef.ID,
			"account_id": account.ID,
		})
		s.logg.Warn(logCtx, "chef already linked to a different account")
		return nil, nil
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"chef_id":    chef.ID,
		"account_id": account.ID,
	})
	s.logg.Info(logCtx, "connected account id backfilled")
	return chef, nil
}
