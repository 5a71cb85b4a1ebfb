package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrSignatureMismatch is returned when a payment confirmation was not
// signed with the shared gateway secret.
var ErrSignatureMismatch = errors.New("signature mismatch")

// Verifier checks that a payment confirmation was genuinely issued by the
// gateway for a given order. This is the sole trust boundary in front of
// entitlement changes.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier keyed with the gateway secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify recomputes HMAC-SHA256 over "orderID|paymentID" and compares it to
// the presented hex signature in constant time.
func (v *Verifier) Verify(orderID, paymentID, signature string) error {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign produces the hex signature for an order/payment pair. Used by tests
// and by the mock checkout flow.
func (v *Verifier) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
