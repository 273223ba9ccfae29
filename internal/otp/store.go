// Package otp stores one-time login codes in Redis.
//
// Codes live entirely in Redis: the TTL doubles as the expiry, deletion
// doubles as consumption, and a per-email attempt counter caps guessing.
// Losing Redis only invalidates in-flight codes, which callers handle by
// requesting a new one.
package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatdeck/chatdeck/internal/auth"
)

// Digits is the length of issued codes
const Digits = 6

var (
	// ErrNotFound is returned when no code is outstanding for the email,
	// either because none was issued or because it expired.
	ErrNotFound = errors.New("no active code for this email")

	// ErrMismatch is returned for a wrong guess that still has attempts left.
	ErrMismatch = errors.New("incorrect code")

	// ErrTooManyAttempts is returned once the guess limit is reached; the
	// code is invalidated and a new one must be requested.
	ErrTooManyAttempts = errors.New("too many incorrect attempts")
)

// Client is the subset of redis.Client the store uses. Declared as an
// interface so tests can substitute a fake without a Redis server.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store issues and verifies one-time login codes
type Store struct {
	rdb         Client
	ttl         time.Duration
	maxAttempts int
}

// NewStore creates a Store with the configured code TTL and guess limit
func NewStore(rdb Client, ttl time.Duration, maxAttempts int) *Store {
	return &Store{rdb: rdb, ttl: ttl, maxAttempts: maxAttempts}
}

func codeKey(email string) string     { return "otp:code:" + email }
func attemptsKey(email string) string { return "otp:attempts:" + email }

// Issue generates a fresh code for the email and stores it under the
// configured TTL. Re-issuing replaces any outstanding code and resets the
// attempt counter.
func (s *Store) Issue(ctx context.Context, email string) (string, error) {
	code, err := auth.GenerateOTP(Digits)
	if err != nil {
		return "", err
	}

	if err := s.rdb.Set(ctx, codeKey(email), code, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store otp: %w", err)
	}
	if err := s.rdb.Del(ctx, attemptsKey(email)).Err(); err != nil {
		return "", fmt.Errorf("failed to reset otp attempts: %w", err)
	}

	return code, nil
}

// Verify checks a submitted code. A correct code is consumed immediately so
// it can never be replayed. A wrong code burns one attempt; once maxAttempts
// is reached the code itself is deleted.
func (s *Store) Verify(ctx context.Context, email, submitted string) error {
	stored, err := s.rdb.Get(ctx, codeKey(email)).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read otp: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1 {
		if err := s.rdb.Del(ctx, codeKey(email), attemptsKey(email)).Err(); err != nil {
			return fmt.Errorf("failed to consume otp: %w", err)
		}
		return nil
	}

	attempts, err := s.rdb.Incr(ctx, attemptsKey(email)).Result()
	if err != nil {
		return fmt.Errorf("failed to count otp attempt: %w", err)
	}
	// The counter must never outlive the code it guards.
	if err := s.rdb.Expire(ctx, attemptsKey(email), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to expire otp attempts: %w", err)
	}

	if attempts >= int64(s.maxAttempts) {
		if err := s.rdb.Del(ctx, codeKey(email), attemptsKey(email)).Err(); err != nil {
			return fmt.Errorf("failed to invalidate otp: %w", err)
		}
		return ErrTooManyAttempts
	}

	return ErrMismatch
}
