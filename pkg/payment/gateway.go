package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout marks a gateway call that ran past its deadline. Callers map
// this to their own retryable-timeout error.
var ErrTimeout = errors.New("payment gateway timeout")

// OrderRequest describes the order to open with the gateway. Amount is in
// the smallest currency unit (paise).
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order is the gateway-held order handle.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Payment is the gateway-held record of a captured payment.
type Payment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
	Email    string `json:"email"`
}

// Gateway defines the payment provider operations the backend depends on.
type Gateway interface {
	// CreateOrder opens an order with the provider for later checkout.
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// FetchPayment retrieves a captured payment by ID.
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
}

// MockGateway is an in-memory implementation for tests and for running
// without gateway credentials.
type MockGateway struct{}

func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (g *MockGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	return &Order{
		ID:       "order_" + uuid.New().String()[:12],
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (g *MockGateway) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("payment not found")
	}
	return &Payment{
		ID:       paymentID,
		Amount:   0,
		Currency: "INR",
		Status:   "captured",
	}, nil
}

// NewReceipt builds a unique receipt reference for an order.
func NewReceipt(userID string) string {
	return fmt.Sprintf("receipt_%d_%s", time.Now().UnixMilli(), userID)
}
