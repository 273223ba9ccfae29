package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/chatdeck/chatdeck/internal/db/models"
)

// PaymentRepository handles payment order database operations
type PaymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, user_id, provider_order_id, amount, currency, plan, status, payment_id, created_at, updated_at`

func scanPaymentOrder(row interface{ Scan(...any) error }) (*models.PaymentOrder, error) {
	order := &models.PaymentOrder{}
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.ProviderOrderID,
		&order.Amount,
		&order.Currency,
		&order.Plan,
		&order.Status,
		&order.PaymentID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Create records a freshly created gateway order
func (r *PaymentRepository) Create(ctx context.Context, order *models.PaymentOrder) error {
	order.ID = uuid.New().String()
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()

	query := `
		INSERT INTO payment_orders (id, user_id, provider_order_id, amount, currency, plan, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.ProviderOrderID,
		order.Amount,
		order.Currency,
		order.Plan,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByProviderOrderID retrieves an order by the gateway's order identifier
func (r *PaymentRepository) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*models.PaymentOrder, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_orders WHERE provider_order_id = $1`
	return scanPaymentOrder(r.db.QueryRowContext(ctx, query, providerOrderID))
}

// MarkPaid records a verified capture against an order. Re-marking an already
// paid order is a no-op so webhook retries stay idempotent.
func (r *PaymentRepository) MarkPaid(ctx context.Context, providerOrderID, paymentID string) error {
	query := `
		UPDATE payment_orders
		SET status = $2, payment_id = $3, updated_at = now()
		WHERE provider_order_id = $1 AND status <> $2
	`
	_, err := r.db.ExecContext(ctx, query, providerOrderID, models.OrderStatusPaid, paymentID)
	return err
}

// MarkFailed records a gateway-reported failure. Paid orders are never
// downgraded: a late failure event for a captured payment is ignored.
func (r *PaymentRepository) MarkFailed(ctx context.Context, providerOrderID string) error {
	query := `
		UPDATE payment_orders
		SET status = $2, updated_at = now()
		WHERE provider_order_id = $1 AND status = $3
	`
	_, err := r.db.ExecContext(ctx, query, providerOrderID, models.OrderStatusFailed, models.OrderStatusCreated)
	return err
}

// ListByUser retrieves a user's orders, newest first
func (r *PaymentRepository) ListByUser(ctx context.Context, userID string) ([]*models.PaymentOrder, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_orders WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*models.PaymentOrder, 0)
	for rows.Next() {
		order, err := scanPaymentOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}
