// Package models - provider_key.go defines the personal LLM API key model.
package models

import "time"

// ProviderKey represents a user-supplied LLM provider API key. The plaintext
// key is sealed with AES-GCM before storage; KeyDigest is a SHA-256 of the
// plaintext used only for duplicate detection within (user, provider).
type ProviderKey struct {
	ID            string
	UserID        string
	Provider      string
	KeyCiphertext []byte
	KeyDigest     string
	Label         string
	IsDefault     bool
	IsActive      bool
	UsageCount    int64
	LastUsedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MaskedKey returns a display form of the key that never exposes the secret.
// Only the digest prefix is shown, which is enough to tell two keys apart.
func (k *ProviderKey) MaskedKey() string {
	if len(k.KeyDigest) < 8 {
		return "****"
	}
	return "****" + k.KeyDigest[:8]
}
