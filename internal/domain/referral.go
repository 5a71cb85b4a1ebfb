package domain

import "time"

// ReferralDiscountPercent is the one-time discount unlocked by applying a
// referral code.
const ReferralDiscountPercent = 10

// Referral is the referral state embedded in a User.
type Referral struct {
	Code             string        `json:"code"`
	ReferredBy       *string       `json:"referredBy"`
	RedeemedAt       *time.Time    `json:"redeemedAt"`
	DiscountUnlocked bool          `json:"discountUnlocked"`
	DiscountPercent  int           `json:"discountPercent"`
	Stats            ReferralStats `json:"stats"`
}

// ReferralStats are the referrer-side counters.
type ReferralStats struct {
	TotalReferred   int `json:"totalReferred"`
	TotalRewardDays int `json:"totalRewardDays"`
}

// ApplyCodeRequest is the validated input for redeeming a referral code.
type ApplyCodeRequest struct {
	Code string `json:"code" validate:"required,min=4,max=24"`
}

// ApplyCodeResponse is returned after a code is successfully redeemed.
type ApplyCodeResponse struct {
	Message         string `json:"message"`
	DiscountPercent int    `json:"discountPercent"`
}

// ReferralOverview is the API response for GET /api/referral/me.
type ReferralOverview struct {
	Referral     Referral     `json:"referral"`
	Subscription Subscription `json:"subscription"`
	Username     string       `json:"username"`
}
