// Package models - app_key.go defines the platform-owned LLM key model.
package models

import "time"

// AppKey represents a platform-owned provider API key used to serve free-tier
// requests. There is at most one row per provider; rotating a key overwrites
// the existing row.
type AppKey struct {
	ID            string
	Provider      string
	KeyCiphertext []byte
	IsActive      bool
	UsageCount    int64
	LastUsedAt    *time.Time
	CreatedBy     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
