package domain

import "time"

// PaymentOrder is the authoritative snapshot of an order at creation time.
// Verification re-derives plan and amount from this row instead of trusting
// anything in the callback body, so a forged verify call cannot claim a
// cheaper plan than was paid for.
type PaymentOrder struct {
	OrderID         string    `json:"orderId"`
	UserID          string    `json:"userId"`
	PlanType        string    `json:"planType"`
	OriginalAmount  int       `json:"originalAmount"`
	FinalAmount     int       `json:"finalAmount"`
	DiscountApplied bool      `json:"discountApplied"`
	DiscountPercent int       `json:"discountPercent"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Payment order statuses.
const (
	OrderStatusCreated = "created"
	OrderStatusPaid    = "paid"
)

// CreateOrderRequest is the validated input for creating a checkout order.
type CreateOrderRequest struct {
	PlanType string `json:"planType" validate:"required,oneof=monthly annual"`
}

// CreateOrderResponse is returned to the client to open the gateway checkout.
type CreateOrderResponse struct {
	OrderID         string `json:"orderId"`
	Amount          int64  `json:"amount"` // gateway units (paise)
	Currency        string `json:"currency"`
	KeyID           string `json:"keyId"`
	PlanType        string `json:"planType"`
	OriginalAmount  int    `json:"originalAmount"`
	PayableAmount   int    `json:"payableAmount"`
	DiscountApplied bool   `json:"discountApplied"`
	DiscountPercent int    `json:"discountPercent"`
}

// VerifyPaymentRequest is the validated input for the payment callback.
// The plan and amount are deliberately absent: they are read back from the
// stored PaymentOrder.
type VerifyPaymentRequest struct {
	OrderID   string `json:"orderId" validate:"required"`
	PaymentID string `json:"paymentId" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// VerifyPaymentResponse reports the outcome of a verified payment.
type VerifyPaymentResponse struct {
	Success              bool         `json:"success"`
	PaymentID            string       `json:"paymentId"`
	Subscription         Subscription `json:"subscription"`
	ReferralDiscountUsed bool         `json:"referralDiscountUsed"`
}
