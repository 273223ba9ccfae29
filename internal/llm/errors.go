package llm

import (
	"fmt"
	"net/http"
)

// Stable machine-readable reason codes returned to clients and recorded as
// the reason label on chat_rejections_total.
const (
	CodeQuotaExceeded         = "QUOTA_EXCEEDED"
	CodeUserKeyRequired       = "USER_KEY_REQUIRED"
	CodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
)

// ResolutionError is a typed rejection from the key resolution policy. Status
// is the HTTP status the handler should return.
type ResolutionError struct {
	Code     string
	Status   int
	Provider Provider
	Message  string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrQuotaExceeded builds the rejection for an exhausted free-tier allowance.
// The caller must supply a personal key to continue.
func ErrQuotaExceeded(p Provider) *ResolutionError {
	return &ResolutionError{
		Code:     CodeQuotaExceeded,
		Status:   http.StatusTooManyRequests,
		Provider: p,
		Message:  fmt.Sprintf("free-tier quota for %s is exhausted; add your own API key to continue", p),
	}
}

// ErrUserKeyRequired builds the rejection for a provider with no free tier.
func ErrUserKeyRequired(p Provider) *ResolutionError {
	return &ResolutionError{
		Code:     CodeUserKeyRequired,
		Status:   http.StatusBadRequest,
		Provider: p,
		Message:  fmt.Sprintf("%s has no free tier; add your own API key to use it", p),
	}
}

// ErrProviderNotConfigured builds the rejection for a free-tier provider with
// no active platform key installed. This is an operator error, not a user
// error, hence the 500.
func ErrProviderNotConfigured(p Provider) *ResolutionError {
	return &ResolutionError{
		Code:     CodeProviderNotConfigured,
		Status:   http.StatusInternalServerError,
		Provider: p,
		Message:  fmt.Sprintf("no platform key is configured for %s", p),
	}
}
