// Package models defines the database model types for Chatdeck.
// Each type corresponds to a database table. Models are pure data types;
// query logic belongs in the repositories layer.
package models

import "time"

// User represents an account. PasswordHash is nil for Google-only accounts;
// GoogleID is nil for password-only accounts. Both may be set once a Google
// login is linked to an existing email.
type User struct {
	ID            string
	Email         string
	Name          string
	PasswordHash  *string
	GoogleID      *string
	AvatarURL     string
	IsAdmin       bool
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPassword reports whether this account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
