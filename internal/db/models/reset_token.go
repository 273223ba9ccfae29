// Package models - reset_token.go defines the password reset token model.
package models

import "time"

// ResetToken is a single-use password reset credential. Only the SHA-256 hash
// of the token is stored; the plaintext appears once in the reset email.
type ResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Usable reports whether the token can still redeem a password change.
func (t *ResetToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
