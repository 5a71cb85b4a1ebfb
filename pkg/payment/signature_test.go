package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifierRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")

	sig := v.Sign("order_123", "pay_456")
	assert.NoError(t, v.Verify("order_123", "pay_456", sig))
}

func TestVerifierRejectsForgery(t *testing.T) {
	v := NewVerifier("test-secret")
	sig := v.Sign("order_123", "pay_456")

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
	}{
		{"wrong signature", "order_123", "pay_456", "deadbeef"},
		{"empty signature", "order_123", "pay_456", ""},
		{"signature for other order", "order_999", "pay_456", sig},
		{"signature for other payment", "order_123", "pay_999", sig},
		{"truncated signature", "order_123", "pay_456", sig[:len(sig)-2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.orderID, tt.paymentID, tt.signature)
			assert.ErrorIs(t, err, ErrSignatureMismatch)
		})
	}
}

func TestVerifierKeyedOnSecret(t *testing.T) {
	sig := NewVerifier("secret-a").Sign("order_123", "pay_456")
	err := NewVerifier("secret-b").Verify("order_123", "pay_456", sig)
	require.ErrorIs(t, err, ErrSignatureMismatch)
}
