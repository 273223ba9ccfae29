// Package auth - token.go generates reset tokens and one-time login codes.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

// ResetTokenLength is the length of the random part of a reset token in bytes
const ResetTokenLength = 32

// GenerateResetToken creates a new password reset token.
// Returns: plaintext token (goes into the email, shown once) and its SHA-256
// hash (to store). A leaked database row then reveals nothing redeemable.
func GenerateResetToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, ResetTokenLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	token = base64.RawURLEncoding.EncodeToString(randomBytes)
	return token, HashResetToken(token), nil
}

// HashResetToken returns the storage hash for a plaintext reset token.
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateOTP creates a random numeric one-time login code of the given
// length. Codes are uniformly distributed including leading zeros.
func GenerateOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", fmt.Errorf("otp length %d out of range", digits)
	}

	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}

	return fmt.Sprintf("%0*d", digits, n), nil
}
