package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tradejournalai/backend/internal/domain"
	"github.com/tradejournalai/backend/internal/repository"
)

// --- mocks ---

type mockReferralUsers struct {
	mock.Mock
}

func (m *mockReferralUsers) FindByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockReferralUsers) FindByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockReferralUsers) ApplyReferral(ctx context.Context, userID, referrerID string, percent int, now time.Time) error {
	args := m.Called(ctx, userID, referrerID, percent, now)
	return args.Error(0)
}

func (m *mockReferralUsers) SetReferralCode(ctx context.Context, userID, code string) (bool, error) {
	args := m.Called(ctx, userID, code)
	return args.Bool(0), args.Error(1)
}

type mockRedemptions struct {
	mock.Mock
}

func (m *mockRedemptions) Create(ctx context.Context, rec *domain.RedemptionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockRedemptions) FindByReferredUser(ctx context.Context, referredUserID string) (*domain.RedemptionRecord, error) {
	args := m.Called(ctx, referredUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RedemptionRecord), args.Error(1)
}

func newTestReferralService() (*ReferralService, *mockReferralUsers, *mockRedemptions) {
	users := new(mockReferralUsers)
	redemptions := new(mockRedemptions)
	return NewReferralService(users, redemptions), users, redemptions
}

// --- ApplyCode ---

func TestApplyCodeSuccess(t *testing.T) {
	svc, users, redemptions := newTestReferralService()

	users.On("FindByID", mock.Anything, "u1").Return(&domain.User{ID: "u1", Username: "newbie"}, nil)
	redemptions.On("FindByReferredUser", mock.Anything, "u1").Return(nil, nil)
	users.On("FindByReferralCode", mock.Anything, "AYUSHK9F2").Return(&domain.User{ID: "owner"}, nil)
	redemptions.On("Create", mock.Anything, mock.MatchedBy(func(rec *domain.RedemptionRecord) bool {
		return rec.ReferredUserID == "u1" && rec.ReferrerUserID == "owner" &&
			rec.CouponCode == "AYUSHK9F2" && rec.DiscountPercent == 10 && !rec.RewardProcessed
	})).Return(nil)
	users.On("ApplyReferral", mock.Anything, "u1", "owner", 10, mock.AnythingOfType("time.Time")).Return(nil)

	// Case and surrounding whitespace must not matter.
	resp, err := svc.ApplyCode(context.Background(), "u1", domain.ApplyCodeRequest{Code: "  ayushk9f2 "})

	require.NoError(t, err)
	assert.Equal(t, 10, resp.DiscountPercent)
	redemptions.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestApplyCodeSelfReferral(t *testing.T) {
	svc, users, redemptions := newTestReferralService()

	users.On("FindByID", mock.Anything, "u1").Return(&domain.User{
		ID: "u1", Referral: domain.Referral{Code: "MYCODE1X"},
	}, nil)
	redemptions.On("FindByReferredUser", mock.Anything, "u1").Return(nil, nil)
	users.On("FindByReferralCode", mock.Anything, "MYCODE1X").Return(&domain.User{ID: "u1"}, nil)

	for _, code := range []string{"MYCODE1X", "mycode1x", "  MyCoDe1x  "} {
		_, err := svc.ApplyCode(context.Background(), "u1", domain.ApplyCodeRequest{Code: code})
		appErr, ok := domain.AsAppError(err)
		require.True(t, ok, "code %q", code)
		assert.Equal(t, "you cannot use your own referral code", appErr.Message)
	}
	redemptions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestApplyCodeAlreadyUnlocked(t *testing.T) {
	svc, users, redemptions := newTestReferralService()

	users.On("FindByID", mock.Anything, "u1").Return(&domain.User{
		ID: "u1", Referral: domain.Referral{DiscountUnlocked: true, DiscountPercent: 10},
	}, nil)

	_, err := svc.ApplyCode(context.Background(), "u1", domain.ApplyCodeRequest{Code: "FRIEND99"})

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "referral already applied", appErr.Message)
	redemptions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestApplyCodeSecondTimeFails(t *testing.T) {
	svc, users, redemptions := newTestReferralService()

	// Discount already consumed by a payment, but the redemption record
	// remains forever: a second apply must still be rejected.
	users.On("FindByID", mock.Anything, "u1").Return(&domain.User{ID: "u1"}, nil)
	redemptions.On("FindByReferredUser", mock.Anything, "u1").Return(&domain.RedemptionRecord{
		ReferredUserID: "u1", ReferrerUserID: "owner", RewardProcessed: true,
	}, nil)

	_, err := svc.ApplyCode(context.Background(), "u1", domain.ApplyCodeRequest{Code: "FRIEND99"})

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "referral already applied", appErr.Message)
}

func TestApplyCodeInvalid(t *testing.T) {
	svc, users, redemptions := newTestReferralService()

	users.On("FindByID", mock.Anything, "u1").Return(&domain.User{ID: "u1"}, nil)
	redemptions.On("FindByReferredUser", mock.Anything, "u1").Return(nil, nil)
	users.On("FindByReferralCode", mock.Anything, "NOSUCH99").Return(nil, nil)

	_, err := svc.ApplyCode(context.Background(), "u1", domain.ApplyCodeRequest{Code: "nosuch99"})

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid referral code", appErr.Message)
}

func TestApplyCodeLosesCreationRace(t *testing.T) {
	svc, users, redemptions := newTestReferralService()

	users.On("FindByID", mock.Anything, "u1").Return(&domain.User{ID: "u1"}, nil)
	redemptions.On("FindByReferredUser", mock.Anything, "u1").Return(nil, nil)
	users.On("FindByReferralCode", mock.Anything, "FRIEND99").Return(&domain.User{ID: "owner"}, nil)
	redemptions.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicate)

	_, err := svc.ApplyCode(context.Background(), "u1", domain.ApplyCodeRequest{Code: "FRIEND99"})

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "referral already applied", appErr.Message)
	users.AssertNotCalled(t, "ApplyReferral", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// --- GenerateCode ---

func TestGenerateCodeIsIdempotent(t *testing.T) {
	svc, users, _ := newTestReferralService()

	users.On("FindByID", mock.Anything, "u1").Return(&domain.User{
		ID: "u1", Username: "ayush", Referral: domain.Referral{Code: "AYUSH9F2K"},
	}, nil)

	code, err := svc.GenerateCode(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, "AYUSH9F2K", code)
	users.AssertNotCalled(t, "SetReferralCode", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerateCodeRetriesOnCollision(t *testing.T) {
	svc, users, _ := newTestReferralService()

	bare := &domain.User{ID: "u1", Username: "ayush"}
	users.On("FindByID", mock.Anything, "u1").Return(bare, nil).Once()
	users.On("SetReferralCode", mock.Anything, "u1", mock.AnythingOfType("string")).
		Return(false, repository.ErrDuplicate).Once()
	users.On("SetReferralCode", mock.Anything, "u1", mock.AnythingOfType("string")).
		Return(true, nil).Once()

	code, err := svc.GenerateCode(context.Background(), "u1")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, "AYUSH"), "got %s", code)
	assert.Len(t, code, 9)
	users.AssertExpectations(t)
}

func TestGenerateCodeLostRaceReturnsStoredCode(t *testing.T) {
	svc, users, _ := newTestReferralService()

	// The IS NULL guard reports no write: a concurrent generate already
	// assigned a code, and that stored code is the one to hand back.
	users.On("FindByID", mock.Anything, "u1").
		Return(&domain.User{ID: "u1", Username: "ayush"}, nil).Once()
	users.On("SetReferralCode", mock.Anything, "u1", mock.AnythingOfType("string")).
		Return(false, nil).Once()
	users.On("FindByID", mock.Anything, "u1").Return(&domain.User{
		ID: "u1", Username: "ayush", Referral: domain.Referral{Code: "AYUSHZZ99"},
	}, nil).Once()

	code, err := svc.GenerateCode(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, "AYUSHZZ99", code)
	users.AssertExpectations(t)
}

func TestGenerateCodeUnknownUser(t *testing.T) {
	svc, users, _ := newTestReferralService()
	users.On("FindByID", mock.Anything, "ghost").Return(nil, nil)

	_, err := svc.GenerateCode(context.Background(), "ghost")

	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.Code)
}

// --- Overview ---

func TestOverviewReportsEffectiveSubscription(t *testing.T) {
	svc, users, _ := newTestReferralService()

	expired := time.Now().Add(-time.Hour)
	users.On("FindByID", mock.Anything, "u1").Return(&domain.User{
		ID:       "u1",
		Username: "ayush",
		Subscription: domain.Subscription{
			Plan: domain.PlanPro, Type: domain.PlanAnnual,
			StartedAt: &expired, ExpiresAt: &expired,
		},
		Referral: domain.Referral{Code: "AYUSH12AB"},
	}, nil)

	overview, err := svc.Overview(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, "ayush", overview.Username)
	assert.Equal(t, "AYUSH12AB", overview.Referral.Code)
	// A lapsed pro reads as free at the boundary without touching the row.
	assert.Equal(t, domain.PlanFree, overview.Subscription.Plan)
}

// --- code generation ---

func TestReferralCodeFor(t *testing.T) {
	code := ReferralCodeFor("ayush_k")
	assert.True(t, strings.HasPrefix(code, "AYUSHK"), "got %s", code)
	assert.Len(t, code, 10)

	short := ReferralCodeFor("bo")
	assert.True(t, strings.HasPrefix(short, "BO"))
	assert.Len(t, short, 6)

	fallback := ReferralCodeFor("!!!")
	assert.True(t, strings.HasPrefix(fallback, "TJ"), "got %s", fallback)

	// Suffixes are random; two codes for the same name should differ.
	assert.NotEqual(t, ReferralCodeFor("ayush"), ReferralCodeFor("ayush"))
}
