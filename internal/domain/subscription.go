package domain

import "time"

// Entitlement plans.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Billing period types.
const (
	PlanMonthly = "monthly"
	PlanAnnual  = "annual"
)

// Subscription is the entitlement state embedded in a User.
// A free user has nil timestamps; a pro user has ExpiresAt >= StartedAt.
type Subscription struct {
	Plan      string     `json:"plan"`
	Type      string     `json:"type"`
	StartedAt *time.Time `json:"startedAt"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// PlanDurationDays returns the paid period length for a billing type.
func PlanDurationDays(planType string) int {
	if planType == PlanAnnual {
		return 365
	}
	return 30
}

// RewardDaysFor returns the referral reward granted to a referrer based on
// the referrer's own billing type: annual subscribers earn 30 days per paid
// referral, everyone else earns 7. The table is fixed, not pricing-derived.
func RewardDaysFor(referrerPlanType string) int {
	if referrerPlanType == PlanAnnual {
		return 30
	}
	return 7
}

// Extend returns the subscription after a paid extension of durationDays.
// The new period stacks on top of the current expiry while the subscription
// is still live, and starts from now when it is absent or lapsed, so a
// renewing customer never loses already-paid time.
func Extend(sub Subscription, planType string, durationDays int, now time.Time) Subscription {
	base := now
	if sub.ExpiresAt != nil && sub.ExpiresAt.After(now) {
		base = *sub.ExpiresAt
	}

	started := sub.StartedAt
	if started == nil {
		started = &now
	}
	expires := base.Add(time.Duration(durationDays) * 24 * time.Hour)

	return Subscription{
		Plan:      PlanPro,
		Type:      planType,
		StartedAt: started,
		ExpiresAt: &expires,
	}
}

// Effective returns the subscription as it should be presented at a read
// boundary: a pro subscription whose expiry has passed reads as free. The
// stored row is left untouched; expiry is evaluated lazily at request time
// rather than by a background sweep, so a long-idle pro user's status is
// only refreshed on their next authenticated request.
func Effective(sub Subscription, now time.Time) Subscription {
	if sub.Plan == PlanPro && sub.ExpiresAt != nil && !sub.ExpiresAt.After(now) {
		return Subscription{Plan: PlanFree, Type: PlanMonthly}
	}
	return sub
}
