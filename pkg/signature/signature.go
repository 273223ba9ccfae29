// Package signature provides HMAC-SHA256 signing utilities for payment
// gateway callbacks. The gateway signs the checkout result and every webhook
// delivery with a shared secret; we recompute the HMAC over the same payload
// and compare in constant time. Keeping this logic in a dedicated package
// applies consistent signing behaviour across the verify and webhook layers
// without duplicating crypto/hmac wiring throughout the codebase.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 of payload with the given secret
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether providedSignature is a valid hex HMAC-SHA256 of
// payload under secret. Comparison is constant-time.
func Verify(payload []byte, secret, providedSignature string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(providedSignature))
}
