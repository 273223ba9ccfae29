package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/chatdeck/chatdeck/internal/db/models"
)

// ResetTokenRepository handles password reset token database operations
type ResetTokenRepository struct {
	db *sql.DB
}

// NewResetTokenRepository creates a new ResetTokenRepository
func NewResetTokenRepository(db *sql.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Create stores a new reset token hash for a user
func (r *ResetTokenRepository) Create(ctx context.Context, token *models.ResetToken) error {
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now()

	query := `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
	)
	return err
}

// GetByHash retrieves a reset token by its stored hash
func (r *ResetTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.ResetToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1
	`

	token := &models.ResetToken{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// MarkUsed consumes a reset token. The used_at IS NULL guard makes redemption
// single-use even under concurrent requests: only one caller sees a row
// affected.
func (r *ResetTokenRepository) MarkUsed(ctx context.Context, tokenID string) error {
	query := `UPDATE password_reset_tokens SET used_at = now() WHERE id = $1 AND used_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, tokenID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// DeleteExpired purges tokens past their expiry plus any already redeemed.
// Returns the number of rows removed.
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM password_reset_tokens WHERE expires_at < $1 OR used_at IS NOT NULL`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InvalidateForUser removes all outstanding tokens for a user; called after a
// successful password change so older reset emails stop working.
func (r *ResetTokenRepository) InvalidateForUser(ctx context.Context, userID string) error {
	query := `DELETE FROM password_reset_tokens WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}
