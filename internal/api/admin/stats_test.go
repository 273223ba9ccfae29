package admin

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/chatdeck/chatdeck/internal/db/repositories"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newStatsTestHandlers(t *testing.T) (*StatsHandlers, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	repo := repositories.NewStatsRepository(sqlx.NewDb(db, "sqlmock"))
	return NewStatsHandlers(repo), mock
}

func newStatsRouter(h *StatsHandlers) *gin.Engine {
	r := gin.New()
	r.Use(asAdmin("admin-1"))
	r.GET("/stats", h.DashboardHandler())
	r.GET("/stats/usage", h.UsageByProviderHandler())
	return r
}

var dashboardCols = []string{
	"user_count", "admin_count", "provider_key_count", "app_key_count",
	"free_calls_used", "feedback_count", "feedback_unread", "paid_order_count", "revenue_total",
}

// ---------------------------------------------------------------------------
// DashboardHandler
// ---------------------------------------------------------------------------

func TestDashboardHandler(t *testing.T) {
	h, mock := newStatsTestHandlers(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users").
		WillReturnRows(sqlmock.NewRows(dashboardCols).
			AddRow(120, 2, 45, 2, 3400, 18, 5, 9, 89100))

	w := doJSON(newStatsRouter(h), http.MethodGet, "/stats", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	stats, _ := decodeBody(t, w)["stats"].(map[string]interface{})
	if stats["users"] != float64(120) || stats["admins"] != float64(2) {
		t.Errorf("stats = %v, want 120 users and 2 admins", stats)
	}
	if stats["free_calls_used"] != float64(3400) {
		t.Errorf("free_calls_used = %v, want 3400", stats["free_calls_used"])
	}
	if stats["paid_orders"] != float64(9) || stats["revenue"] != float64(89100) {
		t.Errorf("revenue block = %v", stats)
	}
}

func TestDashboardHandler_DBError(t *testing.T) {
	h, mock := newStatsTestHandlers(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users").
		WillReturnError(errors.New("db down"))

	w := doJSON(newStatsRouter(h), http.MethodGet, "/stats", nil)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Failed to load stats" {
		t.Errorf("error = %v", body["error"])
	}
}

// ---------------------------------------------------------------------------
// UsageByProviderHandler
// ---------------------------------------------------------------------------

func TestUsageByProviderHandler(t *testing.T) {
	h, mock := newStatsTestHandlers(t)

	mock.ExpectQuery("SELECT provider.*FROM user_quotas.*GROUP BY provider").
		WillReturnRows(sqlmock.NewRows([]string{"provider", "user_count", "calls_used"}).
			AddRow("gemini", 80, 2100).
			AddRow("openai", 55, 1300))

	w := doJSON(newStatsRouter(h), http.MethodGet, "/stats/usage", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	usage, _ := decodeBody(t, w)["usage"].([]interface{})
	if len(usage) != 2 {
		t.Fatalf("usage = %v, want two providers", usage)
	}
	top, _ := usage[0].(map[string]interface{})
	if top["provider"] != "gemini" || top["calls_used"] != float64(2100) {
		t.Errorf("top provider = %v", top)
	}
}

func TestUsageByProviderHandler_Empty(t *testing.T) {
	h, mock := newStatsTestHandlers(t)

	mock.ExpectQuery("SELECT provider.*FROM user_quotas").
		WillReturnRows(sqlmock.NewRows([]string{"provider", "user_count", "calls_used"}))

	w := doJSON(newStatsRouter(h), http.MethodGet, "/stats/usage", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"usage":[]`) {
		t.Errorf("empty usage should serialize as [], got %s", w.Body.String())
	}
}
