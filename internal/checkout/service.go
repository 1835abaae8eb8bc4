package checkout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/homeplate-app/homeplate-backend/pkg/config"
	"github.com/homeplate-app/homeplate-backend/pkg/db/models"
	"github.com/homeplate-app/homeplate-backend/pkg/enums"
	pkgerrors "github.com/homeplate-app/homeplate-backend/pkg/errors"
	"github.com/homeplate-app/homeplate-backend/pkg/logger"
)

// Item is one dish/quantity pair in a checkout request.
type Item struct {
	DishID   int64
	Quantity int64
}

// Result reports the created order and the hosted payment page to redirect to.
type Result struct {
	OrderID     int64
	CheckoutURL string
	SessionID   string
	TotalCents  int64
	ExpiresAt   time.Time
}

type orderWriter interface {
	Create(ctx context.Context, order *models.Order) error
	CreateLines(ctx context.Context, lines []models.OrderLine) error
	Delete(ctx context.Context, orderID int64) error
	SetTransferGroup(ctx context.Context, orderID int64, group string) error
	SetCheckoutSession(ctx context.Context, orderID int64, sessionID string, intentID *string) error
}

type sessionCreator interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Service turns a validated cart into a requested order plus a hosted
// checkout session with a manual-capture authorization.
type Service interface {
	Create(ctx context.Context, buyerUserID string, items []Item, pickupAt time.Time) (*Result, error)
}

// ServiceParams configure the checkout service.
type ServiceParams struct {
	Logger   *logger.Logger
	Orders   orderWriter
	Dishes   DishRepository
	Gateway  sessionCreator
	Checkout config.CheckoutConfig
	Stripe   config.StripeConfig
	Now      func() time.Time
}

type service struct {
	logg     *logger.Logger
	orders   orderWriter
	dishes   DishRepository
	gateway  sessionCreator
	checkout config.CheckoutConfig
	stripe   config.StripeConfig
	now      func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order writer required")
	}
	if params.Dishes == nil {
		return nil, fmt.Errorf("dish repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		logg:     params.Logger,
		orders:   params.Orders,
		dishes:   params.Dishes,
		gateway:  params.Gateway,
		checkout: params.Checkout,
		stripe:   params.Stripe,
		now:      now,
	}, nil
}

func (s *service) Create(ctx context.Context, buyerUserID string, items []Item, pickupAt time.Time) (*Result, error) {
	if err := s.validatePickup(pickupAt); err != nil {
		return nil, err
	}
	dishes, err := s.loadDishes(ctx, items)
	if err != nil {
		return nil, err
	}

	chefID := dishes[items[0].DishID].ChefID
	var totalCents int64
	lines := make([]models.OrderLine, 0, len(items))
	for _, item := range items {
		dish := dishes[item.DishID]
		if dish.ChefID != chefID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "all dishes must belong to the same chef")
		}
		totalCents += dish.PriceCents * item.Quantity
		lines = append(lines, models.OrderLine{
			DishID:         dish.ID,
			Quantity:       item.Quantity,
			UnitPriceCents: dish.PriceCents,
		})
	}
	if totalCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}

	now := s.now()
	order := &models.Order{
		BuyerUserID:   buyerUserID,
		ChefID:        chefID,
		Status:        enums.OrderStatusRequested,
		PaymentStatus: enums.PaymentStatusRequiresPaymentMethod,
		TotalCents:    totalCents,
		PickupAt:      pickupAt,
		ExpiresAt:     now.Add(s.checkout.OrderTTL),
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}

	for i := range lines {
		lines[i].OrderID = order.ID
	}
	if err := s.orders.CreateLines(ctx, lines); err != nil {
		// Compensate so a half-written order does not sit in the table.
		if delErr := s.orders.Delete(ctx, order.ID); delErr != nil {
			logCtx := s.logg.WithOrderID(ctx, order.ID)
			s.logg.Error(logCtx, "failed to delete order after line insert failure", delErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order lines")
	}

	group := TransferGroup(order.ID)
	if err := s.orders.SetTransferGroup(ctx, order.ID, group); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign transfer group")
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, s.sessionParams(order, items, dishes, group))
	if err != nil {
		// The order stays requested without a session; the expiry sweeper
		// cleans it up if the buyer never retries.
		logCtx := s.logg.WithOrderID(ctx, order.ID)
		s.logg.Error(logCtx, "failed to create checkout session", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	var intentID *string
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		intentID = &sess.PaymentIntent.ID
	}
	if err := s.orders.SetCheckoutSession(ctx, order.ID, sess.ID, intentID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record checkout session")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":    order.ID,
		"session_id":  sess.ID,
		"total_cents": totalCents,
	})
	s.logg.Info(logCtx, "checkout session created")

	return &Result{
		OrderID:     order.ID,
		CheckoutURL: sess.URL,
		SessionID:   sess.ID,
		TotalCents:  totalCents,
		ExpiresAt:   order.ExpiresAt,
	}, nil
}

func (s *service) validatePickup(pickupAt time.Time) error {
	now := s.now()
	if pickupAt.Before(now) {
		return pkgerrors.New(pkgerrors.CodeValidation, "pickup time must be in the future")
	}
	if pickupAt.After(now.AddDate(0, 0, s.checkout.PickupWindowDays)) {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("pickup time must be within %d days", s.checkout.PickupWindowDays))
	}
	hour := pickupAt.Hour()
	if hour < s.checkout.PickupHourStart || hour >= s.checkout.PickupHourEnd {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("pickup must fall between %02d:00 and %02d:00", s.checkout.PickupHourStart, s.checkout.PickupHourEnd))
	}
	return nil
}

// loadDishes fetches every referenced dish and indexes it by id, rejecting
// unknown ids, unavailable dishes and non-positive quantities.
func (s *service) loadDishes(ctx context.Context, items []Item) (map[int64]models.Dish, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be at least 1")
		}
		if seen[item.DishID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("dish %d listed more than once", item.DishID))
		}
		seen[item.DishID] = true
		ids = append(ids, item.DishID)
	}

	found, err := s.dishes.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load dishes")
	}
	byID := make(map[int64]models.Dish, len(found))
	for _, dish := range found {
		byID[dish.ID] = dish
	}
	for _, id := range ids {
		dish, ok := byID[id]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("dish %d not found", id))
		}
		if !dish.Available {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("dish %d is not available", id))
		}
	}
	return byID, nil
}

func (s *service) sessionParams(order *models.Order, items []Item, dishes map[int64]models.Dish, group string) *stripe.CheckoutSessionParams {
	orderID := strconv.FormatInt(order.ID, 10)
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(items))
	for _, item := range items {
		dish := dishes[item.DishID]
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(item.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(dish.PriceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(dish.Title),
				},
			},
		})
	}
	return &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.stripe.CheckoutSuccessURL),
		CancelURL:         stripe.String(s.stripe.CheckoutCancelURL),
		ClientReferenceID: stripe.String(orderID),
		LineItems:         lineItems,
		Metadata:          map[string]string{"order_id": orderID},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
			TransferGroup: stripe.String(group),
			Metadata:      map[string]string{"order_id": orderID},
		},
	}
}

// TransferGroup is the grouping key tying an order's payment and transfer
// together on the processor side.
func TransferGroup(orderID int64) string {
	return fmt.Sprintf("order_%d", orderID)
}
