// Package models - quota.go defines the free-tier usage ledger model.
package models

import "time"

// Quota tracks free-tier usage for one (user, provider) pair. MaxCalls is nil
// when the user has no per-user override and the configured default applies.
type Quota struct {
	ID        string
	UserID    string
	Provider  string
	UsedCalls int
	MaxCalls  *int
	UpdatedAt time.Time
}

// Limit resolves the effective call allowance given the deployment default.
func (q *Quota) Limit(defaultFreeCalls int) int {
	if q.MaxCalls != nil {
		return *q.MaxCalls
	}
	return defaultFreeCalls
}

// Remaining returns how many free calls are left, never below zero.
func (q *Quota) Remaining(defaultFreeCalls int) int {
	left := q.Limit(defaultFreeCalls) - q.UsedCalls
	if left < 0 {
		return 0
	}
	return left
}
