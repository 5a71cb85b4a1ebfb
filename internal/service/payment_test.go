package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tradejournalai/backend/internal/domain"
	"github.com/tradejournalai/backend/pkg/payment"
)

// --- mocks ---

type mockPaymentUsers struct {
	mock.Mock
}

func (m *mockPaymentUsers) FindByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockPaymentUsers) ExtendSubscription(ctx context.Context, userID, planType string, durationDays int, now time.Time) (domain.Subscription, bool, error) {
	args := m.Called(ctx, userID, planType, durationDays, now)
	return args.Get(0).(domain.Subscription), args.Bool(1), args.Error(2)
}

func (m *mockPaymentUsers) CreditReferrer(ctx context.Context, referrerID string, rewardDays int, now time.Time) (domain.Subscription, error) {
	args := m.Called(ctx, referrerID, rewardDays, now)
	return args.Get(0).(domain.Subscription), args.Error(1)
}

type mockRedemptionClaims struct {
	mock.Mock
}

func (m *mockRedemptionClaims) Claim(ctx context.Context, referredUserID string) (*domain.RedemptionRecord, error) {
	args := m.Called(ctx, referredUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RedemptionRecord), args.Error(1)
}

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) Create(ctx context.Context, o *domain.PaymentOrder) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *mockOrders) FindByID(ctx context.Context, orderID string) (*domain.PaymentOrder, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentOrder), args.Error(1)
}

func (m *mockOrders) ClaimPaid(ctx context.Context, orderID string) (*domain.PaymentOrder, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentOrder), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Order), args.Error(1)
}

func (m *mockGateway) FetchPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func newTestPaymentService() (*PaymentService, *mockPaymentUsers, *mockRedemptionClaims, *mockOrders, *mockGateway, *payment.Verifier) {
	users := new(mockPaymentUsers)
	redemptions := new(mockRedemptionClaims)
	orders := new(mockOrders)
	gateway := new(mockGateway)
	verifier := payment.NewVerifier("test-secret")
	svc := NewPaymentService(users, redemptions, orders, gateway, verifier, "rzp_test_key")
	return svc, users, redemptions, orders, gateway, verifier
}

func proSub(expiresIn time.Duration) domain.Subscription {
	now := time.Now()
	exp := now.Add(expiresIn)
	return domain.Subscription{Plan: domain.PlanPro, Type: domain.PlanMonthly, StartedAt: &now, ExpiresAt: &exp}
}

// --- CreateOrder ---

func TestCreateOrderRejectsUnknownPlan(t *testing.T) {
	svc, _, _, _, _, _ := newTestPaymentService()

	_, err := svc.CreateOrder(context.Background(), "u1", domain.CreateOrderRequest{PlanType: "weekly"})

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.Code)
}

func TestCreateOrderUnknownUser(t *testing.T) {
	svc, users, _, _, _, _ := newTestPaymentService()
	users.On("FindByID", mock.Anything, "ghost").Return(nil, nil)

	_, err := svc.CreateOrder(context.Background(), "ghost", domain.CreateOrderRequest{PlanType: domain.PlanMonthly})

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)
}

func TestCreateOrderAppliesReferralDiscount(t *testing.T) {
	svc, users, _, orders, gateway, _ := newTestPaymentService()

	users.On("FindByID", mock.Anything, "u1").Return(&domain.User{
		ID:       "u1",
		Referral: domain.Referral{DiscountUnlocked: true, DiscountPercent: 10},
	}, nil)
	gateway.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req payment.OrderRequest) bool {
		return req.Amount == 8900 && req.Currency == "INR" // 89 rupees in paise
	})).Return(&payment.Order{ID: "order_1", Amount: 8900, Currency: "INR"}, nil)
	orders.On("Create", mock.Anything, mock.MatchedBy(func(o *domain.PaymentOrder) bool {
		return o.OrderID == "order_1" && o.FinalAmount == 89 && o.OriginalAmount == 99 && o.DiscountApplied
	})).Return(nil)

	resp, err := svc.CreateOrder(context.Background(), "u1", domain.CreateOrderRequest{PlanType: domain.PlanMonthly})

	require.NoError(t, err)
	assert.Equal(t, "order_1", resp.OrderID)
	assert.Equal(t, 89, resp.PayableAmount)
	assert.Equal(t, 99, resp.OriginalAmount)
	assert.True(t, resp.DiscountApplied)
	assert.Equal(t, "rzp_test_key", resp.KeyID)
	orders.AssertExpectations(t)
}

func TestCreateOrderGatewayTimeout(t *testing.T) {
	svc, users, _, orders, gateway, _ := newTestPaymentService()

	users.On("FindByID", mock.Anything, "u1").Return(&domain.User{ID: "u1"}, nil)
	gateway.On("CreateOrder", mock.Anything, mock.Anything).Return(nil, payment.ErrTimeout)

	_, err := svc.CreateOrder(context.Background(), "u1", domain.CreateOrderRequest{PlanType: domain.PlanAnnual})

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 504, appErr.Code)
	orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// --- ProcessPayment ---

func TestProcessPaymentRejectsForgedSignature(t *testing.T) {
	svc, users, redemptions, orders, _, _ := newTestPaymentService()

	_, err := svc.ProcessPayment(context.Background(), "u1", domain.VerifyPaymentRequest{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: "not-a-real-signature",
	})

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.Code)
	assert.Equal(t, "payment verification failed", appErr.Message)

	// No entity may be touched on a forged call.
	orders.AssertNotCalled(t, "ClaimPaid", mock.Anything, mock.Anything)
	users.AssertNotCalled(t, "ExtendSubscription", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	redemptions.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything)
}

func TestProcessPaymentWithoutReferral(t *testing.T) {
	svc, users, redemptions, orders, _, verifier := newTestPaymentService()

	snapshot := &domain.PaymentOrder{
		OrderID: "order_1", UserID: "u1", PlanType: domain.PlanMonthly,
		FinalAmount: 99, Status: domain.OrderStatusCreated,
	}
	orders.On("FindByID", mock.Anything, "order_1").Return(snapshot, nil)
	users.On("FindByID", mock.Anything, "u1").Return(&domain.User{ID: "u1"}, nil)
	orders.On("ClaimPaid", mock.Anything, "order_1").Return(snapshot, nil)
	users.On("ExtendSubscription", mock.Anything, "u1", domain.PlanMonthly, 30, mock.AnythingOfType("time.Time")).
		Return(proSub(30*24*time.Hour), false, nil)
	redemptions.On("Claim", mock.Anything, "u1").Return(nil, nil)

	resp, err := svc.ProcessPayment(context.Background(), "u1", domain.VerifyPaymentRequest{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: verifier.Sign("order_1", "pay_1"),
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, domain.PlanPro, resp.Subscription.Plan)
	assert.False(t, resp.ReferralDiscountUsed)
	users.AssertNotCalled(t, "CreditReferrer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessPaymentCreditsReferrerOnce(t *testing.T) {
	svc, users, redemptions, orders, _, verifier := newTestPaymentService()

	snapshot := &domain.PaymentOrder{
		OrderID: "order_1", UserID: "buyer", PlanType: domain.PlanMonthly,
		DiscountApplied: true, DiscountPercent: 10, FinalAmount: 89,
	}
	orders.On("FindByID", mock.Anything, "order_1").Return(snapshot, nil)
	users.On("FindByID", mock.Anything, "buyer").Return(&domain.User{ID: "buyer"}, nil)
	orders.On("ClaimPaid", mock.Anything, "order_1").Return(snapshot, nil)
	users.On("ExtendSubscription", mock.Anything, "buyer", domain.PlanMonthly, 30, mock.AnythingOfType("time.Time")).
		Return(proSub(30*24*time.Hour), true, nil)
	redemptions.On("Claim", mock.Anything, "buyer").Return(&domain.RedemptionRecord{
		ReferredUserID: "buyer", ReferrerUserID: "referrer", CouponCode: "REFER9XYZ",
		DiscountPercent: 10, RewardProcessed: true,
	}, nil).Once()
	users.On("FindByID", mock.Anything, "referrer").Return(&domain.User{
		ID:           "referrer",
		Subscription: proSub(10 * 24 * time.Hour), // monthly referrer -> 7 reward days
	}, nil)
	users.On("CreditReferrer", mock.Anything, "referrer", 7, mock.AnythingOfType("time.Time")).
		Return(proSub(17*24*time.Hour), nil).Once()

	sig := verifier.Sign("order_1", "pay_1")
	resp, err := svc.ProcessPayment(context.Background(), "buyer", domain.VerifyPaymentRequest{
		OrderID: "order_1", PaymentID: "pay_1", Signature: sig,
	})

	require.NoError(t, err)
	assert.True(t, resp.ReferralDiscountUsed)
	users.AssertExpectations(t)

	// Replay of the same order: the paid CAS already fired, so the whole
	// sequence stops before any entitlement change.
	orders.ExpectedCalls = nil
	orders.On("FindByID", mock.Anything, "order_1").Return(&domain.PaymentOrder{
		OrderID: "order_1", UserID: "buyer", Status: domain.OrderStatusPaid,
	}, nil)
	orders.On("ClaimPaid", mock.Anything, "order_1").Return(nil, nil)

	_, err = svc.ProcessPayment(context.Background(), "buyer", domain.VerifyPaymentRequest{
		OrderID: "order_1", PaymentID: "pay_1", Signature: sig,
	})

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 409, appErr.Code)
	users.AssertNumberOfCalls(t, "CreditReferrer", 1)
	users.AssertNumberOfCalls(t, "ExtendSubscription", 1)
}

func TestProcessPaymentAnnualReferrerGetsThirtyDays(t *testing.T) {
	svc, users, redemptions, orders, _, verifier := newTestPaymentService()

	snapshot := &domain.PaymentOrder{
		OrderID: "order_1", UserID: "buyer", PlanType: domain.PlanAnnual,
	}
	orders.On("FindByID", mock.Anything, "order_1").Return(snapshot, nil)
	users.On("FindByID", mock.Anything, "buyer").Return(&domain.User{ID: "buyer"}, nil)
	orders.On("ClaimPaid", mock.Anything, "order_1").Return(snapshot, nil)
	users.On("ExtendSubscription", mock.Anything, "buyer", domain.PlanAnnual, 365, mock.AnythingOfType("time.Time")).
		Return(proSub(365*24*time.Hour), false, nil)

	annual := proSub(200 * 24 * time.Hour)
	annual.Type = domain.PlanAnnual
	redemptions.On("Claim", mock.Anything, "buyer").Return(&domain.RedemptionRecord{
		ReferredUserID: "buyer", ReferrerUserID: "referrer",
	}, nil)
	users.On("FindByID", mock.Anything, "referrer").Return(&domain.User{ID: "referrer", Subscription: annual}, nil)
	users.On("CreditReferrer", mock.Anything, "referrer", 30, mock.AnythingOfType("time.Time")).
		Return(proSub(230*24*time.Hour), nil)

	_, err := svc.ProcessPayment(context.Background(), "buyer", domain.VerifyPaymentRequest{
		OrderID: "order_1", PaymentID: "pay_1", Signature: verifier.Sign("order_1", "pay_1"),
	})

	require.NoError(t, err)
	users.AssertExpectations(t)
}

func TestProcessPaymentMissingReferrerIsNotAnError(t *testing.T) {
	svc, users, redemptions, orders, _, verifier := newTestPaymentService()

	snapshot := &domain.PaymentOrder{
		OrderID: "order_1", UserID: "buyer", PlanType: domain.PlanMonthly,
	}
	orders.On("FindByID", mock.Anything, "order_1").Return(snapshot, nil)
	users.On("FindByID", mock.Anything, "buyer").Return(&domain.User{ID: "buyer"}, nil)
	orders.On("ClaimPaid", mock.Anything, "order_1").Return(snapshot, nil)
	users.On("ExtendSubscription", mock.Anything, "buyer", domain.PlanMonthly, 30, mock.AnythingOfType("time.Time")).
		Return(proSub(30*24*time.Hour), false, nil)
	redemptions.On("Claim", mock.Anything, "buyer").Return(&domain.RedemptionRecord{
		ReferredUserID: "buyer", ReferrerUserID: "deleted-user",
	}, nil)
	users.On("FindByID", mock.Anything, "deleted-user").Return(nil, nil)

	resp, err := svc.ProcessPayment(context.Background(), "buyer", domain.VerifyPaymentRequest{
		OrderID: "order_1", PaymentID: "pay_1", Signature: verifier.Sign("order_1", "pay_1"),
	})

	// The payer's own payment already succeeded; a vanished referrer must
	// not surface as a payer-visible failure.
	require.NoError(t, err)
	assert.True(t, resp.Success)
	users.AssertNotCalled(t, "CreditReferrer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessPaymentUnknownOrder(t *testing.T) {
	svc, users, _, orders, _, verifier := newTestPaymentService()

	orders.On("FindByID", mock.Anything, "order_x").Return(nil, nil)

	_, err := svc.ProcessPayment(context.Background(), "u1", domain.VerifyPaymentRequest{
		OrderID: "order_x", PaymentID: "pay_1", Signature: verifier.Sign("order_x", "pay_1"),
	})

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)
	orders.AssertNotCalled(t, "ClaimPaid", mock.Anything, mock.Anything)
	users.AssertNotCalled(t, "ExtendSubscription", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessPaymentUnknownPayer(t *testing.T) {
	svc, users, _, orders, _, verifier := newTestPaymentService()

	orders.On("FindByID", mock.Anything, "order_1").Return(&domain.PaymentOrder{
		OrderID: "order_1", UserID: "ghost", PlanType: domain.PlanMonthly,
	}, nil)
	users.On("FindByID", mock.Anything, "ghost").Return(nil, nil)

	_, err := svc.ProcessPayment(context.Background(), "ghost", domain.VerifyPaymentRequest{
		OrderID: "order_1", PaymentID: "pay_1", Signature: verifier.Sign("order_1", "pay_1"),
	})

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)
	orders.AssertNotCalled(t, "ClaimPaid", mock.Anything, mock.Anything)
}

func TestProcessPaymentWrongUserLeavesOrderPayable(t *testing.T) {
	svc, users, redemptions, orders, _, verifier := newTestPaymentService()

	snapshot := &domain.PaymentOrder{
		OrderID: "order_1", UserID: "owner", PlanType: domain.PlanMonthly,
		Status: domain.OrderStatusCreated,
	}
	orders.On("FindByID", mock.Anything, "order_1").Return(snapshot, nil)

	sig := verifier.Sign("order_1", "pay_1")

	// A different authenticated user presenting a valid signature is
	// rejected without flipping the order to paid.
	_, err := svc.ProcessPayment(context.Background(), "intruder", domain.VerifyPaymentRequest{
		OrderID: "order_1", PaymentID: "pay_1", Signature: sig,
	})

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)
	orders.AssertNotCalled(t, "ClaimPaid", mock.Anything, mock.Anything)

	// The real owner's verify must still go through afterwards.
	users.On("FindByID", mock.Anything, "owner").Return(&domain.User{ID: "owner"}, nil)
	orders.On("ClaimPaid", mock.Anything, "order_1").Return(snapshot, nil)
	users.On("ExtendSubscription", mock.Anything, "owner", domain.PlanMonthly, 30, mock.AnythingOfType("time.Time")).
		Return(proSub(30*24*time.Hour), false, nil)
	redemptions.On("Claim", mock.Anything, "owner").Return(nil, nil)

	resp, err := svc.ProcessPayment(context.Background(), "owner", domain.VerifyPaymentRequest{
		OrderID: "order_1", PaymentID: "pay_1", Signature: sig,
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	users.AssertExpectations(t)
}

// --- GetPayment ---

func TestGetPaymentGatewayTimeout(t *testing.T) {
	svc, _, _, _, gateway, _ := newTestPaymentService()

	gateway.On("FetchPayment", mock.Anything, "pay_1").Return(nil, payment.ErrTimeout)

	_, err := svc.GetPayment(context.Background(), "pay_1")

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 504, appErr.Code)
}
