package domain

import "time"

// RedemptionRecord ties one referred user to one referrer. It is the single
// source of truth for whether a referral reward has been granted: created
// once when a code is applied, flipped to RewardProcessed exactly once by
// the referred user's first verified payment, never deleted or reopened.
// ReferredUserID is unique — a user can redeem at most one code, ever.
type RedemptionRecord struct {
	ID              string    `json:"id"`
	ReferredUserID  string    `json:"referredUserId"`
	ReferrerUserID  string    `json:"referrerUserId"`
	CouponCode      string    `json:"couponCode"`
	DiscountPercent int       `json:"discountPercent"`
	RewardProcessed bool      `json:"rewardProcessed"`
	CreatedAt       time.Time `json:"createdAt"`
}
