package repositories

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/chatdeck/chatdeck/internal/db/models"
)

// QuotaRepository handles the free-tier usage ledger
type QuotaRepository struct {
	db *sql.DB
}

// NewQuotaRepository creates a new QuotaRepository
func NewQuotaRepository(db *sql.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

const quotaColumns = `id, user_id, provider, used_calls, max_calls, updated_at`

func scanQuota(row interface{ Scan(...any) error }) (*models.Quota, error) {
	q := &models.Quota{}
	err := row.Scan(
		&q.ID,
		&q.UserID,
		&q.Provider,
		&q.UsedCalls,
		&q.MaxCalls,
		&q.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Get retrieves the ledger row for a (user, provider) pair
func (r *QuotaRepository) Get(ctx context.Context, userID, provider string) (*models.Quota, error) {
	query := `SELECT ` + quotaColumns + ` FROM user_quotas WHERE user_id = $1 AND provider = $2`
	return scanQuota(r.db.QueryRowContext(ctx, query, userID, provider))
}

// Increment adds one consumed call to the (user, provider) ledger and returns
// the updated row. A missing row is created with used_calls = 1. The single
// upsert statement makes concurrent increments safe: two simultaneous calls
// always land as two distinct increments, never a lost update.
func (r *QuotaRepository) Increment(ctx context.Context, userID, provider string) (*models.Quota, error) {
	query := `
		INSERT INTO user_quotas (id, user_id, provider, used_calls, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (user_id, provider)
		DO UPDATE SET used_calls = user_quotas.used_calls + 1, updated_at = now()
		RETURNING ` + quotaColumns

	return scanQuota(r.db.QueryRowContext(ctx, query, uuid.New().String(), userID, provider))
}

// Reset zeroes the consumed counter for a (user, provider) pair. Resetting a
// pair with no ledger row is a no-op, not an error: a fresh user is already
// at zero.
func (r *QuotaRepository) Reset(ctx context.Context, userID, provider string) error {
	query := `UPDATE user_quotas SET used_calls = 0, updated_at = now() WHERE user_id = $1 AND provider = $2`
	_, err := r.db.ExecContext(ctx, query, userID, provider)
	return err
}

// SetLimit sets (or clears, when maxCalls is nil) the per-user allowance
// override for a provider, creating the ledger row if needed.
func (r *QuotaRepository) SetLimit(ctx context.Context, userID, provider string, maxCalls *int) error {
	query := `
		INSERT INTO user_quotas (id, user_id, provider, used_calls, max_calls, updated_at)
		VALUES ($1, $2, $3, 0, $4, now())
		ON CONFLICT (user_id, provider)
		DO UPDATE SET max_calls = EXCLUDED.max_calls, updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, query, uuid.New().String(), userID, provider, maxCalls)
	return err
}

// List retrieves a paginated view of the whole ledger, most recently touched
// rows first, plus the total row count
func (r *QuotaRepository) List(ctx context.Context, limit, offset int) ([]*models.Quota, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM user_quotas`
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + quotaColumns + `
		FROM user_quotas
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	quotas := make([]*models.Quota, 0)
	for rows.Next() {
		q, err := scanQuota(rows)
		if err != nil {
			return nil, 0, err
		}
		quotas = append(quotas, q)
	}

	return quotas, total, rows.Err()
}

// ListByUser retrieves all ledger rows for a user
func (r *QuotaRepository) ListByUser(ctx context.Context, userID string) ([]*models.Quota, error) {
	query := `SELECT ` + quotaColumns + ` FROM user_quotas WHERE user_id = $1 ORDER BY provider`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	quotas := make([]*models.Quota, 0)
	for rows.Next() {
		q, err := scanQuota(rows)
		if err != nil {
			return nil, err
		}
		quotas = append(quotas, q)
	}

	return quotas, rows.Err()
}
