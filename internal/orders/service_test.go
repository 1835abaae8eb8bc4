package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/homeplate-app/homeplate-backend/pkg/db/models"
	"github.com/homeplate-app/homeplate-backend/pkg/enums"
	pkgerrors "github.com/homeplate-app/homeplate-backend/pkg/errors"
	"github.com/homeplate-app/homeplate-backend/pkg/logger"
	"gorm.io/gorm"
)

type stubOrderRepo struct {
	Repository

	order           *models.Order
	expired         []models.Order
	findExpiredErr  error
	acceptanceOK    bool
	acceptanceCalls int
	statusOK        bool
	statusErr       error
	statusCalls     []statusCall
	intentBackfills []string
}

type statusCall struct {
	orderID int64
	from    enums.OrderStatus
	to      enums.OrderStatus
	payment *enums.PaymentStatus
}

func (s *stubOrderRepo) FindByID(_ context.Context, orderID int64) (*models.Order, error) {
	if s.order == nil || s.order.ID != orderID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s.order
	return &copied, nil
}

func (s *stubOrderRepo) FindExpiredRequested(_ context.Context, _ time.Time) ([]models.Order, error) {
	return s.expired, s.findExpiredErr
}

func (s *stubOrderRepo) SetPaymentIntentID(_ context.Context, _ int64, intentID string) error {
	s.intentBackfills = append(s.intentBackfills, intentID)
	return nil
}

func (s *stubOrderRepo) ApplyAcceptance(_ context.Context, _ int64, _ string, _ int64) (bool, error) {
	s.acceptanceCalls++
	return s.acceptanceOK, nil
}

func (s *stubOrderRepo) ApplyStatus(_ context.Context, orderID int64, from, to enums.OrderStatus, payment *enums.PaymentStatus) (bool, error) {
	s.statusCalls = append(s.statusCalls, statusCall{orderID: orderID, from: from, to: to, payment: payment})
	return s.statusOK, s.statusErr
}

type stubChefLoader struct {
	chefs map[string]*models.Chef
	byID  map[int64]*models.Chef
}

func (s *stubChefLoader) FindByID(_ context.Context, id int64) (*models.Chef, error) {
	if chef, ok := s.byID[id]; ok {
		return chef, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubChefLoader) FindByUserID(_ context.Context, userID string) (*models.Chef, error) {
	if chef, ok := s.chefs[userID]; ok {
		return chef, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type stubGateway struct {
	transfers   []*stripe.TransferParams
	transferErr error

	cancels   []string
	cancelErr error

	refunds   []*stripe.RefundParams
	refundErr error

	captures []string

	intentStatus stripe.PaymentIntentStatus
	session      *stripe.CheckoutSession
}

func (s *stubGateway) GetCheckoutSession(_ context.Context, _ string) (*stripe.CheckoutSession, error) {
	if s.session == nil {
		return nil, errors.New("no session")
	}
	return s.session, nil
}

func (s *stubGateway) GetPaymentIntent(_ context.Context, id string) (*stripe.PaymentIntent, error) {
	return &stripe.PaymentIntent{ID: id, Status: s.intentStatus}, nil
}

func (s *stubGateway) CancelPaymentIntent(_ context.Context, id string) (*stripe.PaymentIntent, error) {
	s.cancels = append(s.cancels, id)
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	return &stripe.PaymentIntent{ID: id}, nil
}

func (s *stubGateway) CapturePaymentIntent(_ context.Context, id string) (*stripe.PaymentIntent, error) {
	s.captures = append(s.captures, id)
	return &stripe.PaymentIntent{ID: id}, nil
}

func (s *stubGateway) CreateRefund(_ context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	s.refunds = append(s.refunds, params)
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	return &stripe.Refund{ID: "re_1"}, nil
}

func (s *stubGateway) CreateTransfer(_ context.Context, params *stripe.TransferParams) (*stripe.Transfer, error) {
	s.transfers = append(s.transfers, params)
	if s.transferErr != nil {
		return nil, s.transferErr
	}
	return &stripe.Transfer{ID: "tr_1"}, nil
}

func strptr(s string) *string { return &s }

func acceptableOrder() *models.Order {
	return &models.Order{
		ID:              7,
		BuyerUserID:     "buyer-1",
		ChefID:          3,
		Status:          enums.OrderStatusRequested,
		TotalCents:      3200,
		TransferGroup:   "order_7",
		PaymentIntentID: strptr("pi_7"),
	}
}

func readyChef() *models.Chef {
	return &models.Chef{
		ID:              3,
		UserID:          "chef-user",
		StripeAccountID: strptr("acct_3"),
		ChargesEnabled:  true,
	}
}

func newTestService(t *testing.T, repo *stubOrderRepo, chefsStub *stubChefLoader, gw *stubGateway) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repo:       repo,
		Chefs:      chefsStub,
		Gateway:    gw,
		FeePercent: 10,
	})
	require.NoError(t, err)
	return svc
}

func TestService_AcceptTransfersNetOfFee(t *testing.T) {
	repo := &stubOrderRepo{order: acceptableOrder(), acceptanceOK: true}
	chefsStub := &stubChefLoader{chefs: map[string]*models.Chef{"chef-user": readyChef()}}
	gw := &stubGateway{}
	svc := newTestService(t, repo, chefsStub, gw)

	actor := Actor{UserID: "chef-user", Role: enums.RoleChef}
	result, err := svc.Accept(context.Background(), actor, 7)
	require.NoError(t, err)

	assert.Equal(t, "tr_1", result.TransferID)
	assert.Equal(t, int64(320), result.PlatformFeeCents)

	require.Len(t, gw.transfers, 1)
	params := gw.transfers[0]
	assert.Equal(t, int64(2880), *params.Amount)
	assert.Equal(t, "acct_3", *params.Destination)
	assert.Equal(t, "order_7", *params.TransferGroup)
	assert.Equal(t, 1, repo.acceptanceCalls)
}

func TestService_AcceptAdminActsForChef(t *testing.T) {
	repo := &stubOrderRepo{order: acceptableOrder(), acceptanceOK: true}
	chefsStub := &stubChefLoader{byID: map[int64]*models.Chef{3: readyChef()}}
	gw := &stubGateway{}
	svc := newTestService(t, repo, chefsStub, gw)

	_, err := svc.Accept(context.Background(), Actor{UserID: "admin-1", Role: enums.RoleAdmin}, 7)
	require.NoError(t, err)
	assert.Len(t, gw.transfers, 1)
}

func TestService_AcceptPreconditions(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*models.Order, *models.Chef)
		actor    Actor
		wantCode pkgerrors.Code
	}{
		{
			name:     "not requested",
			mutate:   func(o *models.Order, _ *models.Chef) { o.Status = enums.OrderStatusPending },
			actor:    Actor{UserID: "chef-user", Role: enums.RoleChef},
			wantCode: pkgerrors.CodeConflict,
		},
		{
			name:     "already accepted",
			mutate:   func(o *models.Order, _ *models.Chef) { o.TransferID = strptr("tr_old") },
			actor:    Actor{UserID: "chef-user", Role: enums.RoleChef},
			wantCode: pkgerrors.CodeConflict,
		},
		{
			name:     "missing payment intent",
			mutate:   func(o *models.Order, _ *models.Chef) { o.PaymentIntentID = nil },
			actor:    Actor{UserID: "chef-user", Role: enums.RoleChef},
			wantCode: pkgerrors.CodeConflict,
		},
		{
			name:     "missing transfer group",
			mutate:   func(o *models.Order, _ *models.Chef) { o.TransferGroup = "" },
			actor:    Actor{UserID: "chef-user", Role: enums.RoleChef},
			wantCode: pkgerrors.CodeConflict,
		},
		{
			name:     "wrong chef",
			mutate:   func(_ *models.Order, _ *models.Chef) {},
			actor:    Actor{UserID: "some-other-user", Role: enums.RoleChef},
			wantCode: pkgerrors.CodeForbidden,
		},
		{
			name:     "payouts not enabled",
			mutate:   func(_ *models.Order, c *models.Chef) { c.ChargesEnabled = false },
			actor:    Actor{UserID: "chef-user", Role: enums.RoleChef},
			wantCode: pkgerrors.CodeConflict,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			order := acceptableOrder()
			chef := readyChef()
			tc.mutate(order, chef)

			repo := &stubOrderRepo{order: order, acceptanceOK: true}
			chefsStub := &stubChefLoader{chefs: map[string]*models.Chef{"chef-user": chef}}
			gw := &stubGateway{}
			svc := newTestService(t, repo, chefsStub, gw)

			_, err := svc.Accept(context.Background(), tc.actor, 7)
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, tc.wantCode, typed.Code())
			assert.Empty(t, gw.transfers, "precondition failures must not move money")
		})
	}
}

func TestService_AcceptLostRaceIsConflict(t *testing.T) {
	repo := &stubOrderRepo{order: acceptableOrder(), acceptanceOK: false}
	chefsStub := &stubChefLoader{chefs: map[string]*models.Chef{"chef-user": readyChef()}}
	gw := &stubGateway{}
	svc := newTestService(t, repo, chefsStub, gw)

	_, err := svc.Accept(context.Background(), Actor{UserID: "chef-user", Role: enums.RoleChef}, 7)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
	assert.Len(t, gw.transfers, 1, "transfer happens before the conditional write")
}

func TestService_CancelUserCancelledVoidsAuthorization(t *testing.T) {
	repo := &stubOrderRepo{order: acceptableOrder(), statusOK: true}
	gw := &stubGateway{}
	svc := newTestService(t, repo, &stubChefLoader{}, gw)

	// Deliberately not the buyer and not the chef: the buyer path does not
	// check the caller, and this test pins that behavior.
	actor := Actor{UserID: "anyone", Role: enums.RoleUser}
	err := svc.Cancel(context.Background(), actor, 7, enums.CancelReasonUserCancelled)
	require.NoError(t, err)

	assert.Equal(t, []string{"pi_7"}, gw.cancels)
	assert.Empty(t, gw.refunds)
	require.Len(t, repo.statusCalls, 1)
	call := repo.statusCalls[0]
	assert.Equal(t, enums.OrderStatusCancelled, call.to)
	require.NotNil(t, call.payment)
	assert.Equal(t, enums.PaymentStatusCanceled, *call.payment)
}

func TestService_CancelChefRejectedRefunds(t *testing.T) {
	repo := &stubOrderRepo{order: acceptableOrder(), statusOK: true}
	chefsStub := &stubChefLoader{chefs: map[string]*models.Chef{"chef-user": readyChef()}}
	gw := &stubGateway{}
	svc := newTestService(t, repo, chefsStub, gw)

	err := svc.Cancel(context.Background(), Actor{UserID: "chef-user", Role: enums.RoleChef}, 7, enums.CancelReasonChefRejected)
	require.NoError(t, err)

	assert.Empty(t, gw.cancels)
	require.Len(t, gw.refunds, 1)
	assert.Equal(t, "pi_7", *gw.refunds[0].PaymentIntent)
	require.Len(t, repo.statusCalls, 1)
	assert.Equal(t, enums.OrderStatusRejected, repo.statusCalls[0].to)
}

func TestService_CancelRequiresChefForNonBuyerReasons(t *testing.T) {
	repo := &stubOrderRepo{order: acceptableOrder(), statusOK: true}
	gw := &stubGateway{}
	svc := newTestService(t, repo, &stubChefLoader{}, gw)

	err := svc.Cancel(context.Background(), Actor{UserID: "stranger", Role: enums.RoleUser}, 7, enums.CancelReasonChefRejected)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
	assert.Empty(t, gw.refunds)
	assert.Empty(t, repo.statusCalls)
}

func TestService_CancelUpstreamFailureLeavesState(t *testing.T) {
	repo := &stubOrderRepo{order: acceptableOrder(), statusOK: true}
	gw := &stubGateway{refundErr: errors.New("stripe down")}
	chefsStub := &stubChefLoader{chefs: map[string]*models.Chef{"chef-user": readyChef()}}
	svc := newTestService(t, repo, chefsStub, gw)

	err := svc.Cancel(context.Background(), Actor{UserID: "chef-user", Role: enums.RoleChef}, 7, enums.CancelReasonChefRejected)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
	assert.Empty(t, repo.statusCalls, "local state mutates only after upstream success")
}

func TestService_CancelWithoutIntentIsConflict(t *testing.T) {
	order := acceptableOrder()
	order.PaymentIntentID = nil
	repo := &stubOrderRepo{order: order, statusOK: true}
	svc := newTestService(t, repo, &stubChefLoader{}, &stubGateway{})

	err := svc.Cancel(context.Background(), Actor{UserID: "anyone", Role: enums.RoleUser}, 7, enums.CancelReasonUserCancelled)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
}

func TestService_CaptureRequiresCaptureFlow(t *testing.T) {
	repo := &stubOrderRepo{order: acceptableOrder(), statusOK: true}
	chefsStub := &stubChefLoader{chefs: map[string]*models.Chef{"chef-user": readyChef()}}
	gw := &stubGateway{intentStatus: stripe.PaymentIntentStatusRequiresCapture}
	svc := newTestService(t, repo, chefsStub, gw)

	err := svc.Capture(context.Background(), Actor{UserID: "chef-user", Role: enums.RoleChef}, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"pi_7"}, gw.captures)
	require.Len(t, repo.statusCalls, 1)
	assert.Equal(t, enums.OrderStatusPending, repo.statusCalls[0].to)
	assert.Nil(t, repo.statusCalls[0].payment)
}

func TestService_CaptureSucceededIntentStillAdvances(t *testing.T) {
	repo := &stubOrderRepo{order: acceptableOrder(), statusOK: true}
	chefsStub := &stubChefLoader{chefs: map[string]*models.Chef{"chef-user": readyChef()}}
	gw := &stubGateway{intentStatus: stripe.PaymentIntentStatusSucceeded}
	svc := newTestService(t, repo, chefsStub, gw)

	err := svc.Capture(context.Background(), Actor{UserID: "chef-user", Role: enums.RoleChef}, 7)
	require.NoError(t, err)
	assert.Empty(t, gw.captures, "already-captured intent is not re-captured")
	require.Len(t, repo.statusCalls, 1)
	assert.Equal(t, enums.OrderStatusPending, repo.statusCalls[0].to)
}

func TestService_CaptureNonCapturableStateIsConflict(t *testing.T) {
	repo := &stubOrderRepo{order: acceptableOrder(), statusOK: true}
	chefsStub := &stubChefLoader{chefs: map[string]*models.Chef{"chef-user": readyChef()}}
	gw := &stubGateway{intentStatus: stripe.PaymentIntentStatusRequiresPaymentMethod}
	svc := newTestService(t, repo, chefsStub, gw)

	err := svc.Capture(context.Background(), Actor{UserID: "chef-user", Role: enums.RoleChef}, 7)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
	assert.Empty(t, repo.statusCalls)
}

func TestService_CaptureRefusesNonRequestedOrder(t *testing.T) {
	// A sweep can reject the order while its authorization cancel fails
	// upstream, leaving the intent capturable. Capture must refuse before
	// calling the processor or the buyer is charged on a dead order.
	tests := []struct {
		name   string
		status enums.OrderStatus
	}{
		{name: "rejected by sweep", status: enums.OrderStatusRejected},
		{name: "already pending", status: enums.OrderStatusPending},
		{name: "cancelled by buyer", status: enums.OrderStatusCancelled},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			order := acceptableOrder()
			order.Status = tc.status
			repo := &stubOrderRepo{order: order, statusOK: true}
			chefsStub := &stubChefLoader{chefs: map[string]*models.Chef{"chef-user": readyChef()}}
			gw := &stubGateway{intentStatus: stripe.PaymentIntentStatusRequiresCapture}
			svc := newTestService(t, repo, chefsStub, gw)

			err := svc.Capture(context.Background(), Actor{UserID: "chef-user", Role: enums.RoleChef}, 7)
			require.Error(t, err)
			assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
			assert.Empty(t, gw.captures, "buyer must not be charged outside the requested state")
			assert.Empty(t, repo.statusCalls)
		})
	}
}

func TestService_CaptureBackfillsIntentFromSession(t *testing.T) {
	order := acceptableOrder()
	order.PaymentIntentID = nil
	order.CheckoutSessionID = strptr("cs_7")
	repo := &stubOrderRepo{order: order, statusOK: true}
	chefsStub := &stubChefLoader{chefs: map[string]*models.Chef{"chef-user": readyChef()}}
	gw := &stubGateway{
		intentStatus: stripe.PaymentIntentStatusRequiresCapture,
		session:      &stripe.CheckoutSession{ID: "cs_7", PaymentIntent: &stripe.PaymentIntent{ID: "pi_from_session"}},
	}
	svc := newTestService(t, repo, chefsStub, gw)

	err := svc.Capture(context.Background(), Actor{UserID: "chef-user", Role: enums.RoleChef}, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"pi_from_session"}, repo.intentBackfills)
	assert.Equal(t, []string{"pi_from_session"}, gw.captures)
}

func TestService_SweepRejectsExpiredBestEffort(t *testing.T) {
	expired := []models.Order{
		{ID: 1, Status: enums.OrderStatusRequested, PaymentIntentID: strptr("pi_1")},
		{ID: 2, Status: enums.OrderStatusRequested, LegacyPaymentIntentID: strptr("pi_legacy_2")},
		{ID: 3, Status: enums.OrderStatusRequested},
	}
	repo := &stubOrderRepo{expired: expired, statusOK: true}
	gw := &stubGateway{cancelErr: errors.New("stripe down")}
	svc := newTestService(t, repo, &stubChefLoader{}, gw)

	result, err := svc.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Checked)
	assert.Equal(t, 3, result.Rejected)
	// Cancellation is attempted with the resolver's precedence but failures
	// never block the reject write.
	assert.Equal(t, []string{"pi_1", "pi_legacy_2"}, gw.cancels)
	require.Len(t, repo.statusCalls, 3)
	for _, call := range repo.statusCalls {
		assert.Equal(t, enums.OrderStatusRequested, call.from)
		assert.Equal(t, enums.OrderStatusRejected, call.to)
	}
}

func TestService_SweepAggregatesPersistFailures(t *testing.T) {
	repo := &stubOrderRepo{
		expired:   []models.Order{{ID: 1, Status: enums.OrderStatusRequested}},
		statusErr: errors.New("db down"),
	}
	svc := newTestService(t, repo, &stubChefLoader{}, &stubGateway{})

	result, err := svc.Sweep(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 0, result.Rejected)
}

func TestService_AcceptHonorsZeroFeePercent(t *testing.T) {
	repo := &stubOrderRepo{order: acceptableOrder(), acceptanceOK: true}
	chefsStub := &stubChefLoader{chefs: map[string]*models.Chef{"chef-user": readyChef()}}
	gw := &stubGateway{}
	svc, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repo:       repo,
		Chefs:      chefsStub,
		Gateway:    gw,
		FeePercent: 0,
	})
	require.NoError(t, err)

	result, err := svc.Accept(context.Background(), Actor{UserID: "chef-user", Role: enums.RoleChef}, 7)
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.PlatformFeeCents)
	require.Len(t, gw.transfers, 1)
	assert.Equal(t, int64(3200), *gw.transfers[0].Amount, "zero fee transfers the full total")
}

func TestService_RejectsOutOfRangeFeePercent(t *testing.T) {
	for _, fee := range []int64{-1, 101} {
		_, err := NewService(ServiceParams{
			Logger:     logger.New(logger.Options{ServiceName: "test"}),
			Repo:       &stubOrderRepo{},
			Chefs:      &stubChefLoader{},
			Gateway:    &stubGateway{},
			FeePercent: fee,
		})
		require.Error(t, err, "fee percent %d must be rejected", fee)
	}
}

func TestPlatformFeeCentsRounds(t *testing.T) {
	assert.Equal(t, int64(320), PlatformFeeCents(3200, 10))
	assert.Equal(t, int64(1), PlatformFeeCents(5, 10))   // 0.5 rounds away from zero
	assert.Equal(t, int64(0), PlatformFeeCents(4, 10))   // 0.4 rounds down
	assert.Equal(t, int64(125), PlatformFeeCents(833, 15))
}

func TestResolvePaymentIntentIDPrecedence(t *testing.T) {
	both := &models.Order{PaymentIntentID: strptr("pi_new"), LegacyPaymentIntentID: strptr("pi_old")}
	assert.Equal(t, "pi_new", resolvePaymentIntentID(both))

	legacyOnly := &models.Order{LegacyPaymentIntentID: strptr("pi_old")}
	assert.Equal(t, "pi_old", resolvePaymentIntentID(legacyOnly))

	assert.Equal(t, "", resolvePaymentIntentID(&models.Order{}))
}
