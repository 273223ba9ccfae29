package repositories

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/chatdeck/chatdeck/internal/db/models"
)

// AppKeyRepository handles platform-owned provider key database operations
type AppKeyRepository struct {
	db *sql.DB
}

// NewAppKeyRepository creates a new AppKeyRepository
func NewAppKeyRepository(db *sql.DB) *AppKeyRepository {
	return &AppKeyRepository{db: db}
}

const appKeyColumns = `id, provider, key_ciphertext, is_active, usage_count, last_used_at, created_by, created_at, updated_at`

func scanAppKey(row interface{ Scan(...any) error }) (*models.AppKey, error) {
	key := &models.AppKey{}
	err := row.Scan(
		&key.ID,
		&key.Provider,
		&key.KeyCiphertext,
		&key.IsActive,
		&key.UsageCount,
		&key.LastUsedAt,
		&key.CreatedBy,
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

// Upsert installs or rotates the platform key for a provider. The table holds
// one row per provider, so setting a key for an existing provider replaces the
// ciphertext in place.
func (r *AppKeyRepository) Upsert(ctx context.Context, key *models.AppKey) error {
	query := `
		INSERT INTO app_keys (id, provider, key_ciphertext, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (provider)
		DO UPDATE SET key_ciphertext = EXCLUDED.key_ciphertext,
		              is_active = EXCLUDED.is_active,
		              created_by = EXCLUDED.created_by,
		              updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, query,
		uuid.New().String(),
		key.Provider,
		key.KeyCiphertext,
		key.IsActive,
		key.CreatedBy,
	)
	return err
}

// GetByProvider retrieves the platform key for a provider
func (r *AppKeyRepository) GetByProvider(ctx context.Context, provider string) (*models.AppKey, error) {
	query := `SELECT ` + appKeyColumns + ` FROM app_keys WHERE provider = $1`
	return scanAppKey(r.db.QueryRowContext(ctx, query, provider))
}

// GetActiveByProvider retrieves the platform key for a provider only when it
// is enabled for serving free-tier traffic.
func (r *AppKeyRepository) GetActiveByProvider(ctx context.Context, provider string) (*models.AppKey, error) {
	query := `SELECT ` + appKeyColumns + ` FROM app_keys WHERE provider = $1 AND is_active`
	return scanAppKey(r.db.QueryRowContext(ctx, query, provider))
}

// List retrieves all platform keys
func (r *AppKeyRepository) List(ctx context.Context) ([]*models.AppKey, error) {
	query := `SELECT ` + appKeyColumns + ` FROM app_keys ORDER BY provider`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*models.AppKey, 0)
	for rows.Next() {
		key, err := scanAppKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// RecordUsage bumps the platform-wide usage counter for a provider's key.
// This tracks consumption of the shared secret, separate from the per-user
// quota ledger.
func (r *AppKeyRepository) RecordUsage(ctx context.Context, provider string) error {
	query := `UPDATE app_keys SET usage_count = usage_count + 1, last_used_at = now() WHERE provider = $1`
	res, err := r.db.ExecContext(ctx, query, provider)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// SetActive toggles whether a provider's platform key serves free-tier traffic
func (r *AppKeyRepository) SetActive(ctx context.Context, provider string, active bool) error {
	query := `UPDATE app_keys SET is_active = $2, updated_at = now() WHERE provider = $1`
	res, err := r.db.ExecContext(ctx, query, provider, active)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// Delete removes a provider's platform key entirely
func (r *AppKeyRepository) Delete(ctx context.Context, provider string) error {
	query := `DELETE FROM app_keys WHERE provider = $1`
	res, err := r.db.ExecContext(ctx, query, provider)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}
