package domain

import "math"

// Plan prices in rupees. The payment gateway is billed in paise (x100).
const (
	PriceMonthly = 99
	PriceAnnual  = 799
)

// PlanPrice returns the undiscounted price for a billing type.
func PlanPrice(planType string) int {
	if planType == PlanAnnual {
		return PriceAnnual
	}
	return PriceMonthly
}

// PlanOption describes a purchasable plan for the public listing.
type PlanOption struct {
	Type         string `json:"type"`
	Price        int    `json:"price"`
	Currency     string `json:"currency"`
	DurationDays int    `json:"durationDays"`
}

// AvailablePlans returns all purchasable plans.
func AvailablePlans() []PlanOption {
	return []PlanOption{
		{Type: PlanMonthly, Price: PriceMonthly, Currency: "INR", DurationDays: PlanDurationDays(PlanMonthly)},
		{Type: PlanAnnual, Price: PriceAnnual, Currency: "INR", DurationDays: PlanDurationDays(PlanAnnual)},
	}
}

// PriceQuote is the pricing breakdown for a checkout.
type PriceQuote struct {
	PlanType        string `json:"planType"`
	OriginalAmount  int    `json:"originalAmount"`
	FinalAmount     int    `json:"payableAmount"`
	DiscountApplied bool   `json:"discountApplied"`
	DiscountPercent int    `json:"discountPercent"`
}

// Quote computes the payable amount for a plan given the buyer's referral
// state. The discount applies only while it is unlocked and positive; it is
// consumed by the first verified payment. Pure, no I/O.
func Quote(planType string, ref Referral) PriceQuote {
	q := PriceQuote{
		PlanType:       planType,
		OriginalAmount: PlanPrice(planType),
	}
	q.FinalAmount = q.OriginalAmount

	if ref.DiscountUnlocked && ref.DiscountPercent > 0 {
		q.DiscountApplied = true
		q.DiscountPercent = ref.DiscountPercent
		q.FinalAmount = int(math.Round(float64(q.OriginalAmount) * (1 - float64(ref.DiscountPercent)/100)))
	}
	return q
}
