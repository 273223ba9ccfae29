package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// StatsRepository aggregates counts for the admin dashboard. It is read-only
// and uses sqlx so the aggregate rows scan straight into tagged structs.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository creates a new StatsRepository
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// DashboardStats is one row of platform-wide totals.
type DashboardStats struct {
	Users          int64 `db:"user_count" json:"users"`
	Admins         int64 `db:"admin_count" json:"admins"`
	ProviderKeys   int64 `db:"provider_key_count" json:"provider_keys"`
	AppKeys        int64 `db:"app_key_count" json:"app_keys"`
	FreeCallsUsed  int64 `db:"free_calls_used" json:"free_calls_used"`
	Feedback       int64 `db:"feedback_count" json:"feedback"`
	FeedbackUnread int64 `db:"feedback_unread" json:"feedback_unread"`
	PaidOrders     int64 `db:"paid_order_count" json:"paid_orders"`
	Revenue        int64 `db:"revenue_total" json:"revenue"`
}

// ProviderUsage is free-tier consumption for one provider.
type ProviderUsage struct {
	Provider  string `db:"provider" json:"provider"`
	Users     int64  `db:"user_count" json:"users"`
	CallsUsed int64  `db:"calls_used" json:"calls_used"`
}

// Dashboard loads the platform totals in a single round-trip
func (r *StatsRepository) Dashboard(ctx context.Context) (*DashboardStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users) AS user_count,
			(SELECT COUNT(*) FROM users WHERE is_admin) AS admin_count,
			(SELECT COUNT(*) FROM provider_keys) AS provider_key_count,
			(SELECT COUNT(*) FROM app_keys WHERE is_active) AS app_key_count,
			(SELECT COALESCE(SUM(used_calls), 0) FROM user_quotas) AS free_calls_used,
			(SELECT COUNT(*) FROM feedback) AS feedback_count,
			(SELECT COUNT(*) FROM feedback WHERE NOT is_read) AS feedback_unread,
			(SELECT COUNT(*) FROM payment_orders WHERE status = 'paid') AS paid_order_count,
			(SELECT COALESCE(SUM(amount), 0) FROM payment_orders WHERE status = 'paid') AS revenue_total
	`
	stats := &DashboardStats{}
	if err := r.db.GetContext(ctx, stats, query); err != nil {
		return nil, err
	}
	return stats, nil
}

// UsageByProvider breaks free-tier consumption down per provider
func (r *StatsRepository) UsageByProvider(ctx context.Context) ([]ProviderUsage, error) {
	query := `
		SELECT provider,
		       COUNT(DISTINCT user_id) AS user_count,
		       COALESCE(SUM(used_calls), 0) AS calls_used
		FROM user_quotas
		GROUP BY provider
		ORDER BY calls_used DESC
	`
	usage := []ProviderUsage{}
	if err := r.db.SelectContext(ctx, &usage, query); err != nil {
		return nil, err
	}
	return usage, nil
}
