package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/chatdeck/chatdeck/internal/db/models"
)

// FeedbackRepository handles user feedback database operations
type FeedbackRepository struct {
	db *sql.DB
}

// NewFeedbackRepository creates a new FeedbackRepository
func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

const feedbackColumns = `id, user_id, name, email, message, source, is_read, created_at`

func scanFeedback(row interface{ Scan(...any) error }) (*models.Feedback, error) {
	fb := &models.Feedback{}
	err := row.Scan(
		&fb.ID,
		&fb.UserID,
		&fb.Name,
		&fb.Email,
		&fb.Message,
		&fb.Source,
		&fb.IsRead,
		&fb.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fb, nil
}

// Create stores a feedback submission
func (r *FeedbackRepository) Create(ctx context.Context, fb *models.Feedback) error {
	fb.ID = uuid.New().String()
	fb.CreatedAt = time.Now()

	query := `
		INSERT INTO feedback (id, user_id, name, email, message, source, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		fb.ID,
		fb.UserID,
		fb.Name,
		fb.Email,
		fb.Message,
		fb.Source,
		fb.CreatedAt,
	)
	return err
}

// List retrieves a paginated feedback feed, newest first, plus the total count
func (r *FeedbackRepository) List(ctx context.Context, limit, offset int) ([]*models.Feedback, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM feedback`
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + feedbackColumns + `
		FROM feedback
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]*models.Feedback, 0)
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, fb)
	}

	return items, total, rows.Err()
}

// MarkRead flags a submission as reviewed
func (r *FeedbackRepository) MarkRead(ctx context.Context, id string) error {
	query := `UPDATE feedback SET is_read = TRUE WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

// Delete removes a submission
func (r *FeedbackRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM feedback WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}
