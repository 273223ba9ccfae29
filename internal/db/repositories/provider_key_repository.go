package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chatdeck/chatdeck/internal/db/models"
)

// ProviderKeyRepository handles personal LLM API key database operations
type ProviderKeyRepository struct {
	db *sql.DB
}

// NewProviderKeyRepository creates a new ProviderKeyRepository
func NewProviderKeyRepository(db *sql.DB) *ProviderKeyRepository {
	return &ProviderKeyRepository{db: db}
}

const providerKeyColumns = `id, user_id, provider, key_ciphertext, key_digest, label, is_default, is_active, usage_count, last_used_at, created_at, updated_at`

func scanProviderKey(row interface{ Scan(...any) error }) (*models.ProviderKey, error) {
	key := &models.ProviderKey{}
	err := row.Scan(
		&key.ID,
		&key.UserID,
		&key.Provider,
		&key.KeyCiphertext,
		&key.KeyDigest,
		&key.Label,
		&key.IsDefault,
		&key.IsActive,
		&key.UsageCount,
		&key.LastUsedAt,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

// Create inserts a new provider key. When key.IsDefault is set the insert runs
// in a transaction that first clears any existing default for the same
// (user, provider), so the partial unique index never trips on a legitimate
// default change. Returns ErrDuplicate when the same key already exists for
// this user and provider.
func (r *ProviderKeyRepository) Create(ctx context.Context, key *models.ProviderKey) error {
	key.ID = uuid.New().String()
	key.CreatedAt = time.Now()
	key.UpdatedAt = time.Now()

	insert := `
		INSERT INTO provider_keys (id, user_id, provider, key_ciphertext, key_digest, label, is_default, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	args := []any{
		key.ID,
		key.UserID,
		key.Provider,
		key.KeyCiphertext,
		key.KeyDigest,
		key.Label,
		key.IsDefault,
		key.IsActive,
		key.CreatedAt,
		key.UpdatedAt,
	}

	if !key.IsDefault {
		_, err := r.db.ExecContext(ctx, insert, args...)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	clear := `UPDATE provider_keys SET is_default = FALSE, updated_at = now() WHERE user_id = $1 AND provider = $2 AND is_default`
	if _, err := tx.ExecContext(ctx, clear, key.UserID, key.Provider); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}

	return tx.Commit()
}

// GetByID retrieves a provider key by ID, scoped to its owner. Scoping by
// user_id in the query means another user's key ID behaves exactly like a
// nonexistent one.
func (r *ProviderKeyRepository) GetByID(ctx context.Context, userID, keyID string) (*models.ProviderKey, error) {
	query := `SELECT ` + providerKeyColumns + ` FROM provider_keys WHERE id = $1 AND user_id = $2`
	return scanProviderKey(r.db.QueryRowContext(ctx, query, keyID, userID))
}

// GetDefault retrieves the user's default key for a provider
func (r *ProviderKeyRepository) GetDefault(ctx context.Context, userID, provider string) (*models.ProviderKey, error) {
	query := `SELECT ` + providerKeyColumns + ` FROM provider_keys WHERE user_id = $1 AND provider = $2 AND is_default`
	return scanProviderKey(r.db.QueryRowContext(ctx, query, userID, provider))
}

// ListByUser retrieves all keys belonging to a user, newest first
func (r *ProviderKeyRepository) ListByUser(ctx context.Context, userID string) ([]*models.ProviderKey, error) {
	query := `
		SELECT ` + providerKeyColumns + `
		FROM provider_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*models.ProviderKey, 0)
	for rows.Next() {
		key, err := scanProviderKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// SetDefault marks the given key as the default for its provider, clearing
// any previous default for the same (user, provider) in the same transaction.
func (r *ProviderKeyRepository) SetDefault(ctx context.Context, userID, keyID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var provider string
	lookup := `SELECT provider FROM provider_keys WHERE id = $1 AND user_id = $2`
	if err := tx.QueryRowContext(ctx, lookup, keyID, userID).Scan(&provider); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}

	clear := `UPDATE provider_keys SET is_default = FALSE, updated_at = now() WHERE user_id = $1 AND provider = $2 AND is_default`
	if _, err := tx.ExecContext(ctx, clear, userID, provider); err != nil {
		return err
	}

	// A concurrent promotion for the same (user, provider) can win the race
	// between our clear and set statements, tripping the partial unique
	// index on is_default. Surface that as ErrDuplicate so callers can ask
	// the client to retry instead of reporting a server fault.
	set := `UPDATE provider_keys SET is_default = TRUE, updated_at = now() WHERE id = $1`
	if _, err := tx.ExecContext(ctx, set, keyID); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// RotateSecret replaces a key's stored secret in place, keeping its label,
// flags, and usage history. The digest changes with the ciphertext so
// duplicate detection holds against the new material: returns ErrDuplicate
// when the owner already stores the same secret for this provider.
func (r *ProviderKeyRepository) RotateSecret(ctx context.Context, userID, keyID string, ciphertext []byte, digest string) error {
	query := `UPDATE provider_keys SET key_ciphertext = $3, key_digest = $4, updated_at = now() WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, keyID, userID, ciphertext, digest)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// RecordUsage bumps the key's usage counter and last-used timestamp. Called
// once per chat request served with this key.
func (r *ProviderKeyRepository) RecordUsage(ctx context.Context, keyID string) error {
	query := `UPDATE provider_keys SET usage_count = usage_count + 1, last_used_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, keyID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// SetActive toggles whether a key may be used for requests
func (r *ProviderKeyRepository) SetActive(ctx context.Context, userID, keyID string, active bool) error {
	query := `UPDATE provider_keys SET is_active = $3, updated_at = now() WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, keyID, userID, active)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// UpdateLabel renames a key
func (r *ProviderKeyRepository) UpdateLabel(ctx context.Context, userID, keyID, label string) error {
	query := `UPDATE provider_keys SET label = $3, updated_at = now() WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, keyID, userID, label)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// Delete removes a provider key. Deleting the default key leaves the
// (user, provider) pair with no default; the next chat request falls back
// to the free tier.
func (r *ProviderKeyRepository) Delete(ctx context.Context, userID, keyID string) error {
	query := `DELETE FROM provider_keys WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, keyID, userID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// requireRowAffected converts a zero-row write into ErrNotFound so handlers
// can return 404 instead of silently succeeding.
func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
