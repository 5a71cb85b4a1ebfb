package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/tradejournalai/backend/internal/domain"
	"github.com/tradejournalai/backend/pkg/payment"
)

// paymentUserStore is the slice of the user repository the payment flow
// depends on.
type paymentUserStore interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	ExtendSubscription(ctx context.Context, userID, planType string, durationDays int, now time.Time) (domain.Subscription, bool, error)
	CreditReferrer(ctx context.Context, referrerID string, rewardDays int, now time.Time) (domain.Subscription, error)
}

// redemptionClaimStore claims unprocessed redemptions.
type redemptionClaimStore interface {
	Claim(ctx context.Context, referredUserID string) (*domain.RedemptionRecord, error)
}

// orderStore persists and claims order snapshots.
type orderStore interface {
	Create(ctx context.Context, o *domain.PaymentOrder) error
	FindByID(ctx context.Context, orderID string) (*domain.PaymentOrder, error)
	ClaimPaid(ctx context.Context, orderID string) (*domain.PaymentOrder, error)
}

// PaymentService creates gateway orders and processes verified payments,
// including the referral reward that a first payment triggers.
type PaymentService struct {
	users       paymentUserStore
	redemptions redemptionClaimStore
	orders      orderStore
	gateway     payment.Gateway
	verifier    *payment.Verifier
	keyID       string
	validate    *validator.Validate
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(users paymentUserStore, redemptions redemptionClaimStore, orders orderStore, gateway payment.Gateway, verifier *payment.Verifier, keyID string) *PaymentService {
	return &PaymentService{
		users:       users,
		redemptions: redemptions,
		orders:      orders,
		gateway:     gateway,
		verifier:    verifier,
		keyID:       keyID,
		validate:    validator.New(),
	}
}

// CreateOrder quotes the payable amount from the buyer's live referral
// state, opens a gateway order for it, and persists the snapshot that
// verification will later trust. Client-supplied amounts are never used.
func (s *PaymentService) CreateOrder(ctx context.Context, userID string, req domain.CreateOrderRequest) (*domain.CreateOrderResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrBadRequest("invalid planType")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}

	quote := domain.Quote(req.PlanType, user.Referral)

	order, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:   int64(quote.FinalAmount) * 100, // paise
		Currency: "INR",
		Receipt:  payment.NewReceipt(userID),
		Notes: map[string]string{
			"userId":   userID,
			"plan":     "Pro Subscription",
			"planType": req.PlanType,
		},
	})
	if err != nil {
		if errors.Is(err, payment.ErrTimeout) {
			return nil, domain.ErrUpstreamTimeout("payment gateway timed out", err)
		}
		return nil, domain.ErrInternal("failed to create order", err)
	}

	snapshot := &domain.PaymentOrder{
		OrderID:         order.ID,
		UserID:          userID,
		PlanType:        req.PlanType,
		OriginalAmount:  quote.OriginalAmount,
		FinalAmount:     quote.FinalAmount,
		DiscountApplied: quote.DiscountApplied,
		DiscountPercent: quote.DiscountPercent,
		Status:          domain.OrderStatusCreated,
		CreatedAt:       time.Now(),
	}
	if err := s.orders.Create(ctx, snapshot); err != nil {
		return nil, domain.ErrInternal("failed to persist order", err)
	}

	return &domain.CreateOrderResponse{
		OrderID:         order.ID,
		Amount:          order.Amount,
		Currency:        order.Currency,
		KeyID:           s.keyID,
		PlanType:        req.PlanType,
		OriginalAmount:  quote.OriginalAmount,
		PayableAmount:   quote.FinalAmount,
		DiscountApplied: quote.DiscountApplied,
		DiscountPercent: quote.DiscountPercent,
	}, nil
}

// ProcessPayment handles a gateway payment confirmation:
// verify signature, activate the payer's subscription (consuming any
// unlocked discount), then grant the referrer's reward exactly once.
//
// The payer's extension commits before any referrer work starts; nothing on
// the referrer side can roll it back. Plan and duration come from the
// stored order snapshot, not from the request.
func (s *PaymentService) ProcessPayment(ctx context.Context, userID string, req domain.VerifyPaymentRequest) (*domain.VerifyPaymentResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrBadRequest("orderId, paymentId and signature are required")
	}

	// Sole trust boundary: nothing below runs on a bad signature.
	if err := s.verifier.Verify(req.OrderID, req.PaymentID, req.Signature); err != nil {
		log.Printf("payment verification failed: order=%s payment=%s user=%s", req.OrderID, req.PaymentID, userID)
		return nil, domain.ErrPaymentVerification()
	}

	// Validate against the snapshot before the paid CAS fires: a rejected
	// call must leave the order claimable by its real owner.
	order, err := s.orders.FindByID(ctx, req.OrderID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load order", err)
	}
	if order == nil {
		return nil, domain.ErrNotFound("order not found")
	}
	if order.UserID != userID {
		return nil, domain.ErrNotFound("order not found")
	}

	payer, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load user", err)
	}
	if payer == nil {
		return nil, domain.ErrNotFound("user not found")
	}

	claimed, err := s.orders.ClaimPaid(ctx, req.OrderID)
	if err != nil {
		return nil, domain.ErrInternal("failed to claim order", err)
	}
	if claimed == nil {
		// Lost the race against another verify of the same order.
		return nil, domain.ErrConflict("payment already processed")
	}

	now := time.Now()
	days := domain.PlanDurationDays(claimed.PlanType)

	sub, discountUsed, err := s.users.ExtendSubscription(ctx, claimed.UserID, claimed.PlanType, days, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound("user not found")
		}
		return nil, domain.ErrInternal("failed to activate subscription", err)
	}

	s.rewardReferrer(ctx, claimed.UserID, now)

	return &domain.VerifyPaymentResponse{
		Success:              true,
		PaymentID:            req.PaymentID,
		Subscription:         sub,
		ReferralDiscountUsed: discountUsed,
	}, nil
}

// rewardReferrer grants the one-time referral reward for a payer's first
// verified payment. Every failure here is logged and swallowed: the payer's
// own payment has already committed and must not surface an error.
func (s *PaymentService) rewardReferrer(ctx context.Context, payerID string, now time.Time) {
	rec, err := s.redemptions.Claim(ctx, payerID)
	if err != nil {
		log.Printf("⚠️ referral reward: failed to claim redemption for user %s: %v", payerID, err)
		return
	}
	if rec == nil {
		// Not referred, or reward already granted.
		return
	}

	referrer, err := s.users.FindByID(ctx, rec.ReferrerUserID)
	if err != nil {
		log.Printf("⚠️ referral reward: failed to load referrer %s: %v", rec.ReferrerUserID, err)
		return
	}
	if referrer == nil {
		// Referrer account deleted; reward has no destination.
		log.Printf("referral reward: referrer %s no longer exists, skipping", rec.ReferrerUserID)
		return
	}

	rewardDays := domain.RewardDaysFor(referrer.Subscription.Type)
	if _, err := s.users.CreditReferrer(ctx, referrer.ID, rewardDays, now); err != nil {
		log.Printf("⚠️ referral reward: failed to credit referrer %s: %v", referrer.ID, err)
		return
	}
	log.Printf("🎁 referral reward: %d days credited to %s for referral of %s", rewardDays, referrer.ID, payerID)
}

// GetPayment fetches gateway-held payment details.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	p, err := s.gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, payment.ErrTimeout) {
			return nil, domain.ErrUpstreamTimeout("payment gateway timed out", err)
		}
		return nil, domain.ErrInternal("failed to fetch payment", err)
	}
	return p, nil
}
