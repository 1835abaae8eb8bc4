package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/homeplate-app/homeplate-backend/pkg/db"
	"github.com/homeplate-app/homeplate-backend/pkg/db/models"
	"github.com/homeplate-app/homeplate-backend/pkg/enums"
	pkgerrors "github.com/homeplate-app/homeplate-backend/pkg/errors"
	"github.com/homeplate-app/homeplate-backend/pkg/logger"
)

// Actor identifies the authenticated caller for order-level actions.
type Actor struct {
	UserID string
	Role   enums.Role
}

// AcceptResult reports the transfer recorded on acceptance.
type AcceptResult struct {
	TransferID       string
	PlatformFeeCents int64
}

// SweepResult aggregates one expiry pass.
type SweepResult struct {
	Checked  int
	Rejected int
}

type chefLoader interface {
	FindByID(ctx context.Context, id int64) (*models.Chef, error)
	FindByUserID(ctx context.Context, userID string) (*models.Chef, error)
}

type paymentGateway interface {
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
	GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
	CreateTransfer(ctx context.Context, params *stripe.TransferParams) (*stripe.Transfer, error)
}

// NowFunc supplies the sweep cutoff; injectable for tests.
type NowFunc func() time.Time

func defaultNow() time.Time { return time.Now().UTC() }

// Service drives the order lifecycle: acceptance with payout transfer, the
// cancel/refund path, the legacy manual capture and the expiry sweep.
type Service interface {
	Accept(ctx context.Context, actor Actor, orderID int64) (*AcceptResult, error)
	Cancel(ctx context.Context, actor Actor, orderID int64, reason enums.CancelReason) error
	Capture(ctx context.Context, actor Actor, orderID int64) error
	Sweep(ctx context.Context) (SweepResult, error)
}

// ServiceParams configure the order service.
type ServiceParams struct {
	Logger     *logger.Logger
	Repo       Repository
	Chefs      chefLoader
	Gateway    paymentGateway
	FeePercent int64
	Now        NowFunc
}

type service struct {
	logg       *logger.Logger
	repo       Repository
	chefs      chefLoader
	gateway    paymentGateway
	feePercent int64
	now        NowFunc
}

// NewService builds the order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Chefs == nil {
		return nil, fmt.Errorf("chef loader required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	// Zero is a legitimate fee; the config default supplies the usual 10.
	if params.FeePercent < 0 || params.FeePercent > 100 {
		return nil, fmt.Errorf("fee percent must be between 0 and 100")
	}
	feePercent := params.FeePercent
	now := params.Now
	if now == nil {
		now = defaultNow
	}
	return &service{
		logg:       params.Logger,
		repo:       params.Repo,
		chefs:      params.Chefs,
		gateway:    params.Gateway,
		feePercent: feePercent,
		now:        now,
	}, nil
}

func (s *service) Accept(ctx context.Context, actor Actor, orderID int64) (*AcceptResult, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != enums.OrderStatusRequested {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is not in requested state")
	}
	if order.TransferID != nil && *order.TransferID != "" {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already accepted")
	}

	intentID := resolvePaymentIntentID(order)
	if order.TransferGroup == "" || intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is missing payment information")
	}

	chef, err := s.authorizeChefAction(ctx, actor, order)
	if err != nil {
		return nil, err
	}
	if chef.StripeAccountID == nil || !chef.ChargesEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "complete payouts onboarding before accepting orders")
	}

	feeCents := PlatformFeeCents(order.TotalCents, s.feePercent)
	transferAmount := order.TotalCents - feeCents
	if transferAmount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transfer amount must be positive")
	}

	tr, err := s.gateway.CreateTransfer(ctx, &stripe.TransferParams{
		Amount:        stripe.Int64(transferAmount),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		Destination:   stripe.String(*chef.StripeAccountID),
		TransferGroup: stripe.String(order.TransferGroup),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transfer")
	}

	applied, err := s.repo.ApplyAcceptance(ctx, order.ID, tr.ID, feeCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist acceptance")
	}
	if !applied {
		// The transfer went out but another writer advanced the order first.
		// Surface the lost race; the transfer id is in the logs for manual review.
		logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": order.ID, "transfer_id": tr.ID})
		s.logg.Error(logCtx, "acceptance lost race after transfer", nil)
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently")
	}

	return &AcceptResult{TransferID: tr.ID, PlatformFeeCents: feeCents}, nil
}

func (s *service) Cancel(ctx context.Context, actor Actor, orderID int64, reason enums.CancelReason) error {
	if !reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid cancel reason")
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}

	// user_cancelled is buyer self-service and intentionally skips the chef
	// check; the other reasons are chef/admin actions.
	if reason != enums.CancelReasonUserCancelled {
		if _, err := s.authorizeChefAction(ctx, actor, order); err != nil {
			return err
		}
	}

	intentID := resolvePaymentIntentID(order)
	if intentID == "" {
		return pkgerrors.New(pkgerrors.CodeConflict, "order is missing payment information")
	}

	if reason == enums.CancelReasonUserCancelled {
		if _, err := s.gateway.CancelPaymentIntent(ctx, intentID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel payment authorization")
		}
	} else {
		if _, err := s.gateway.CreateRefund(ctx, &stripe.RefundParams{
			PaymentIntent: stripe.String(intentID),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund payment")
		}
	}

	target := enums.OrderStatusRejected
	if reason == enums.CancelReasonUserCancelled {
		target = enums.OrderStatusCancelled
	}
	canceled := enums.PaymentStatusCanceled
	applied, err := s.repo.ApplyStatus(ctx, order.ID, order.Status, target, &canceled)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist cancellation")
	}
	if !applied {
		return pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently")
	}
	return nil
}

func (s *service) Capture(ctx context.Context, actor Actor, orderID int64) error {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}

	// The sweeper may have rejected the order after its authorization cancel
	// failed upstream; capturing then would take the buyer's money on a dead
	// order. Refuse before touching the processor.
	if order.Status != enums.OrderStatusRequested {
		return pkgerrors.New(pkgerrors.CodeConflict, "order is not in requested state")
	}

	if _, err := s.authorizeChefAction(ctx, actor, order); err != nil {
		return err
	}

	intentID := resolvePaymentIntentID(order)
	if intentID == "" && order.CheckoutSessionID != nil && *order.CheckoutSessionID != "" {
		sess, err := s.gateway.GetCheckoutSession(ctx, *order.CheckoutSessionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch checkout session")
		}
		if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
			intentID = sess.PaymentIntent.ID
			if err := s.repo.SetPaymentIntentID(ctx, order.ID, intentID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "backfill payment intent")
			}
		}
	}
	if intentID == "" {
		return pkgerrors.New(pkgerrors.CodeConflict, "order is missing payment information")
	}

	intent, err := s.gateway.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch payment intent")
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusRequiresCapture:
		if _, err := s.gateway.CapturePaymentIntent(ctx, intentID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "capture payment")
		}
	case stripe.PaymentIntentStatusSucceeded:
		// Already captured upstream; still advance the order so the recovery
		// path is safe to repeat.
	default:
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("payment is not capturable (status %s)", intent.Status))
	}

	applied, err := s.repo.ApplyStatus(ctx, order.ID, enums.OrderStatusRequested, enums.OrderStatusPending, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist capture")
	}
	if !applied {
		return pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently")
	}
	return nil
}

func (s *service) Sweep(ctx context.Context) (SweepResult, error) {
	stale, err := s.repo.FindExpiredRequested(ctx, s.now())
	if err != nil {
		return SweepResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "query expired orders")
	}

	result := SweepResult{Checked: len(stale)}
	var errs error
	for _, order := range stale {
		logCtx := s.logg.WithOrderID(ctx, order.ID)

		if intentID := resolvePaymentIntentID(&order); intentID != "" {
			if _, err := s.gateway.CancelPaymentIntent(logCtx, intentID); err != nil {
				// Best effort: the authorization expires upstream on its own.
				s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "sweeper failed to cancel authorization")
			}
		}

		canceled := enums.PaymentStatusCanceled
		applied, err := s.repo.ApplyStatus(logCtx, order.ID, enums.OrderStatusRequested, enums.OrderStatusRejected, &canceled)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sweep order %d: %w", order.ID, err))
			s.logg.Error(logCtx, "sweeper failed to reject order", err)
			continue
		}
		if applied {
			result.Rejected++
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"checked": result.Checked, "rejected": result.Rejected})
	s.logg.Info(logCtx, "expiry sweep complete")
	return result, errs
}

func (s *service) loadOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

// authorizeChefAction resolves the chef record relevant to the order and
// verifies the actor may act on it: either an admin, or the chef who owns it.
func (s *service) authorizeChefAction(ctx context.Context, actor Actor, order *models.Order) (*models.Chef, error) {
	if actor.Role == enums.RoleAdmin {
		chef, err := s.chefs.FindByID(ctx, order.ChefID)
		if err != nil {
			if db.IsNotFound(err) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "chef not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load chef")
		}
		return chef, nil
	}

	chef, err := s.chefs.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the order's chef may do this")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load chef")
	}
	if chef.ID != order.ChefID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the order's chef may do this")
	}
	return chef, nil
}

// PlatformFeeCents computes the platform's cut, rounded half away from zero.
func PlatformFeeCents(totalCents, feePercent int64) int64 {
	return decimal.NewFromInt(totalCents).
		Mul(decimal.NewFromInt(feePercent)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
