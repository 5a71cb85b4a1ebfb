package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tradejournalai/backend/internal/domain"
	"github.com/tradejournalai/backend/internal/repository"
)

// referralUserStore is the slice of the user repository the referral flow
// depends on.
type referralUserStore interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByReferralCode(ctx context.Context, code string) (*domain.User, error)
	ApplyReferral(ctx context.Context, userID, referrerID string, percent int, now time.Time) error
	SetReferralCode(ctx context.Context, userID, code string) (bool, error)
}

// redemptionStore is the slice of the redemption repository the referral
// flow depends on.
type redemptionStore interface {
	Create(ctx context.Context, rec *domain.RedemptionRecord) error
	FindByReferredUser(ctx context.Context, referredUserID string) (*domain.RedemptionRecord, error)
}

// ReferralService owns referral codes, code redemption, and the referral
// overview.
type ReferralService struct {
	users       referralUserStore
	redemptions redemptionStore
	validate    *validator.Validate
}

// NewReferralService creates a new ReferralService.
func NewReferralService(users referralUserStore, redemptions redemptionStore) *ReferralService {
	return &ReferralService{
		users:       users,
		redemptions: redemptions,
		validate:    validator.New(),
	}
}

// ApplyCode redeems a referral code for the current user, unlocking their
// one-time discount and creating the redemption record that later gates the
// referrer's reward. A user can redeem at most one code, ever.
func (s *ReferralService) ApplyCode(ctx context.Context, userID string, req domain.ApplyCodeRequest) (*domain.ApplyCodeResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrBadRequest("referral code is required")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}
	if user.Referral.DiscountUnlocked {
		return nil, domain.ErrAlreadyApplied()
	}

	existing, err := s.redemptions.FindByReferredUser(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to check redemption", err)
	}
	if existing != nil {
		return nil, domain.ErrAlreadyApplied()
	}

	owner, err := s.users.FindByReferralCode(ctx, code)
	if err != nil {
		return nil, domain.ErrInternal("failed to look up code", err)
	}
	if owner == nil {
		return nil, domain.ErrInvalidCode()
	}
	if owner.ID == userID {
		return nil, domain.ErrSelfReferral()
	}

	rec := &domain.RedemptionRecord{
		ReferredUserID:  userID,
		ReferrerUserID:  owner.ID,
		CouponCode:      code,
		DiscountPercent: domain.ReferralDiscountPercent,
		CreatedAt:       time.Now(),
	}
	if err := s.redemptions.Create(ctx, rec); err != nil {
		if err == repository.ErrDuplicate {
			// Lost a race against a concurrent apply; same outcome.
			return nil, domain.ErrAlreadyApplied()
		}
		return nil, domain.ErrInternal("failed to record redemption", err)
	}

	if err := s.users.ApplyReferral(ctx, userID, owner.ID, domain.ReferralDiscountPercent, time.Now()); err != nil {
		return nil, domain.ErrInternal("failed to unlock discount", err)
	}

	return &domain.ApplyCodeResponse{
		Message:         "🎉 Coupon applied! You unlocked 10% discount.",
		DiscountPercent: domain.ReferralDiscountPercent,
	}, nil
}

// GenerateCode returns the user's referral code, creating one on first use.
// Idempotent: an existing code is returned unchanged.
func (s *ReferralService) GenerateCode(ctx context.Context, userID string) (string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", domain.ErrInternal("failed to load user", err)
	}
	if user == nil {
		return "", domain.ErrNotFound("user not found")
	}
	if user.Referral.Code != "" {
		return user.Referral.Code, nil
	}

	const attempts = 5
	for i := 0; i < attempts; i++ {
		code := ReferralCodeFor(user.Username)
		wrote, err := s.users.SetReferralCode(ctx, userID, code)
		if err == repository.ErrDuplicate {
			log.Printf("referral code collision (%s), retrying", code)
			continue
		}
		if err != nil {
			return "", domain.ErrInternal("failed to save referral code", err)
		}
		if wrote {
			return code, nil
		}
		// A concurrent generate won the IS NULL guard; its code is the one
		// stored, so read it back instead of returning ours.
		fresh, err := s.users.FindByID(ctx, userID)
		if err != nil {
			return "", domain.ErrInternal("failed to load referral code", err)
		}
		if fresh == nil {
			return "", domain.ErrNotFound("user not found")
		}
		return fresh.Referral.Code, nil
	}
	return "", domain.ErrInternal("failed to generate referral code", fmt.Errorf("exhausted %d attempts", attempts))
}

// Overview returns the user's referral state together with their effective
// subscription, for GET /api/referral/me.
func (s *ReferralService) Overview(ctx context.Context, userID string) (*domain.ReferralOverview, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to load user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}
	return &domain.ReferralOverview{
		Referral:     user.Referral,
		Subscription: domain.Effective(user.Subscription, time.Now()),
		Username:     user.Username,
	}, nil
}

const codeSuffixCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ReferralCodeFor builds a referral code from a normalized prefix of the
// username plus a random 4-character suffix, e.g. AYUSHK9F2.
func ReferralCodeFor(username string) string {
	var prefix strings.Builder
	for _, r := range strings.ToUpper(username) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			prefix.WriteRune(r)
			if prefix.Len() >= 6 {
				break
			}
		}
	}
	base := prefix.String()
	if base == "" {
		base = "TJ"
	}

	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	suffix := make([]byte, 4)
	for i, b := range buf {
		suffix[i] = codeSuffixCharset[int(b)%len(codeSuffixCharset)]
	}
	return base + string(suffix)
}
