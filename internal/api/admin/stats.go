package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatdeck/chatdeck/internal/db/repositories"
)

// StatsHandlers serves the admin dashboard aggregates.
type StatsHandlers struct {
	statsRepo *repositories.StatsRepository
}

// NewStatsHandlers creates a new StatsHandlers instance
func NewStatsHandlers(statsRepo *repositories.StatsRepository) *StatsHandlers {
	return &StatsHandlers{statsRepo: statsRepo}
}

// DashboardHandler returns platform-wide totals
// @Summary Dashboard stats
// @Description Platform totals for the admin dashboard: accounts, keys, free-tier usage, feedback, and revenue
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Router /api/v1/admin/stats [get]
func (h *StatsHandlers) DashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.statsRepo.Dashboard(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"stats": stats})
	}
}

// UsageByProviderHandler breaks free-tier usage down per provider
// @Summary Usage by provider
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Router /api/v1/admin/stats/usage [get]
func (h *StatsHandlers) UsageByProviderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		usage, err := h.statsRepo.UsageByProvider(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load usage"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"usage": usage})
	}
}
