package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chatdeck/chatdeck/internal/crypto"
	"github.com/chatdeck/chatdeck/internal/db/models"
	"github.com/chatdeck/chatdeck/internal/db/repositories"
	"github.com/chatdeck/chatdeck/internal/telemetry"
)

// Key source labels for chat_requests_total.
const (
	SourceUserKey = "user"
	SourceAppKey  = "app"
)

// keyStore is the slice of ProviderKeyRepository the resolver needs.
type keyStore interface {
	GetDefault(ctx context.Context, userID, provider string) (*models.ProviderKey, error)
	RecordUsage(ctx context.Context, keyID string) error
}

// quotaLedger is the slice of QuotaRepository the resolver needs.
type quotaLedger interface {
	Get(ctx context.Context, userID, provider string) (*models.Quota, error)
	Increment(ctx context.Context, userID, provider string) (*models.Quota, error)
}

// appKeyPool is the slice of AppKeyRepository the resolver needs.
type appKeyPool interface {
	GetActiveByProvider(ctx context.Context, provider string) (*models.AppKey, error)
	RecordUsage(ctx context.Context, provider string) error
}

// ResolvedKey is the outcome of a successful resolution: the plaintext key to
// send upstream plus accounting detail for the response body. Usage is not
// recorded until Commit; resolution alone leaves the ledger untouched.
type ResolvedKey struct {
	Provider Provider
	APIKey   string
	Source   string
	// Remaining is the free calls left after this one. -1 when the request
	// is served by the user's own key and the ledger was not touched.
	Remaining int

	userID string
	keyID  string
}

// Resolver applies the key resolution policy for a (user, provider) pair:
// personal default key first, then the free-tier app key against the quota
// ledger, otherwise a typed rejection.
type Resolver struct {
	keys             keyStore
	quotas           quotaLedger
	pool             appKeyPool
	cipher           *crypto.TokenCipher
	defaultFreeCalls int
}

// NewResolver creates a Resolver. defaultFreeCalls is the per-user allowance
// applied when the ledger row carries no per-user override.
func NewResolver(keys keyStore, quotas quotaLedger, pool appKeyPool, cipher *crypto.TokenCipher, defaultFreeCalls int) *Resolver {
	return &Resolver{
		keys:             keys,
		quotas:           quotas,
		pool:             pool,
		cipher:           cipher,
		defaultFreeCalls: defaultFreeCalls,
	}
}

// Resolve picks the key that serves this request.
//
// A user's active default key always wins and never touches the quota
// ledger. Without one, free-tier providers fall back to the platform key,
// subject to the caller having quota left; other providers reject with
// UserKeyRequired. The quota unit itself is charged by Commit.
func (r *Resolver) Resolve(ctx context.Context, userID string, provider Provider) (*ResolvedKey, error) {
	key, err := r.keys.GetDefault(ctx, userID, provider.String())
	switch {
	case err == nil && key.IsActive:
		plaintext, err := r.cipher.Open(key.KeyCiphertext)
		if err != nil {
			return nil, fmt.Errorf("decrypt user key %s: %w", key.ID, err)
		}
		return &ResolvedKey{
			Provider:  provider,
			APIKey:    plaintext,
			Source:    SourceUserKey,
			Remaining: -1,
			userID:    userID,
			keyID:     key.ID,
		}, nil
	case err != nil && !errors.Is(err, repositories.ErrNotFound):
		return nil, fmt.Errorf("lookup default key: %w", err)
	}

	// No usable personal key. An inactive default counts as absent.
	if !provider.FreeTier() {
		return nil, r.reject(ErrUserKeyRequired(provider))
	}

	remaining := r.defaultFreeCalls
	quota, err := r.quotas.Get(ctx, userID, provider.String())
	switch {
	case err == nil:
		remaining = quota.Remaining(r.defaultFreeCalls)
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, fmt.Errorf("lookup quota: %w", err)
	}
	if remaining <= 0 {
		return nil, r.reject(ErrQuotaExceeded(provider))
	}

	appKey, err := r.pool.GetActiveByProvider(ctx, provider.String())
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, r.reject(ErrProviderNotConfigured(provider))
	}
	if err != nil {
		return nil, fmt.Errorf("lookup app key: %w", err)
	}

	plaintext, err := r.cipher.Open(appKey.KeyCiphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt app key for %s: %w", provider, err)
	}

	// Remaining is a prediction of the post-call standing; Commit replaces
	// it with the ledger's authoritative value once the call succeeds.
	return &ResolvedKey{
		Provider:  provider,
		APIKey:    plaintext,
		Source:    SourceAppKey,
		Remaining: remaining - 1,
		userID:    userID,
	}, nil
}

// Commit records the usage of a resolved key after the upstream call has
// succeeded. Free-tier calls charge one quota unit; personal-key calls only
// bump the key's usage counter. Failed upstream calls are never committed,
// so a provider outage cannot burn free calls.
//
// The increment is a single atomic upsert, so concurrent requests for the
// same pair never lose an increment. Accounting errors are logged rather
// than returned: the model already answered and the response should say so.
func (r *Resolver) Commit(ctx context.Context, rk *ResolvedKey) {
	switch rk.Source {
	case SourceUserKey:
		if err := r.keys.RecordUsage(ctx, rk.keyID); err != nil {
			slog.Warn("failed to record user key usage", "key_id", rk.keyID, "error", err)
		}
	case SourceAppKey:
		charged, err := r.quotas.Increment(ctx, rk.userID, rk.Provider.String())
		if err != nil {
			slog.Warn("failed to charge quota ledger", "user_id", rk.userID, "provider", rk.Provider, "error", err)
			return
		}
		rk.Remaining = charged.Remaining(r.defaultFreeCalls)
		if err := r.pool.RecordUsage(ctx, rk.Provider.String()); err != nil {
			slog.Warn("failed to record app key usage", "provider", rk.Provider, "error", err)
		}
	}
}

func (r *Resolver) reject(e *ResolutionError) error {
	telemetry.ChatRejectionsTotal.WithLabelValues(e.Provider.String(), e.Code).Inc()
	return e
}
