package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrSignatureMismatch is returned when the callback signature does not match the payload.
	ErrSignatureMismatch = errors.New("payments: signature mismatch")
	// ErrMissingSecret is returned when the verifier has no signing secret configured.
	ErrMissingSecret = errors.New("payments: signing secret not configured")
)

// SignatureVerifier validates payment gateway callbacks signed with HMAC-SHA256 over
// "<provider order id>|<provider payment id>" using the merchant key secret.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier constructs a verifier for the supplied key secret.
func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &SignatureVerifier{secret: []byte(secret)}, nil
}

// Verify compares the hex encoded signature against the expected digest in constant time.
func (v *SignatureVerifier) Verify(providerOrderID, providerPaymentID, signature string) error {
	if v == nil || len(v.secret) == 0 {
		return ErrMissingSecret
	}
	providerOrderID = strings.TrimSpace(providerOrderID)
	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if providerOrderID == "" || providerPaymentID == "" {
		return ErrSignatureMismatch
	}

	got, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(signature)))
	if err != nil || len(got) == 0 {
		return ErrSignatureMismatch
	}
	if !hmac.Equal(got, v.digest(providerOrderID, providerPaymentID)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign produces the signature the gateway would send for the pair. Used by tests and local tooling.
func (v *SignatureVerifier) Sign(providerOrderID, providerPaymentID string) string {
	return hex.EncodeToString(v.digest(providerOrderID, providerPaymentID))
}

func (v *SignatureVerifier) digest(providerOrderID, providerPaymentID string) []byte {
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write([]byte(providerOrderID + "|" + providerPaymentID))
	return mac.Sum(nil)
}
