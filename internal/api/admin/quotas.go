package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/chatdeck/chatdeck/internal/db/models"
	"github.com/chatdeck/chatdeck/internal/db/repositories"
	"github.com/chatdeck/chatdeck/internal/llm"
)

// QuotaHandlers exposes the free-tier ledger to the admin panel.
type QuotaHandlers struct {
	cfg       *config.Config
	quotaRepo *repositories.QuotaRepository
}

// NewQuotaHandlers creates a new QuotaHandlers instance
func NewQuotaHandlers(cfg *config.Config, quotaRepo *repositories.QuotaRepository) *QuotaHandlers {
	return &QuotaHandlers{cfg: cfg, quotaRepo: quotaRepo}
}

type quotaResponse struct {
	UserID    string    `json:"user_id"`
	Provider  string    `json:"provider"`
	UsedCalls int       `json:"used_calls"`
	MaxCalls  int       `json:"max_calls"`
	Remaining int       `json:"remaining"`
	Override  bool      `json:"override"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *QuotaHandlers) quotaToResponse(q *models.Quota) quotaResponse {
	def := h.cfg.Quota.DefaultFreeCalls
	return quotaResponse{
		UserID:    q.UserID,
		Provider:  q.Provider,
		UsedCalls: q.UsedCalls,
		MaxCalls:  q.Limit(def),
		Remaining: q.Remaining(def),
		Override:  q.MaxCalls != nil,
		UpdatedAt: q.UpdatedAt,
	}
}

// ListQuotasHandler lists the free-tier ledger across all users
// @Summary List user quotas
// @Description Paginated view of free-tier consumption, most recently active rows first
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param page query int false "Page number (default 1)"
// @Param per_page query int false "Items per page, max 100 (default 20)"
// @Router /api/v1/admin/user-quotas [get]
func (h *QuotaHandlers) ListQuotasHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := parsePagination(c)

		quotas, total, err := h.quotaRepo.List(c.Request.Context(), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list quotas"})
			return
		}

		resp := make([]quotaResponse, 0, len(quotas))
		for _, q := range quotas {
			resp = append(resp, h.quotaToResponse(q))
		}

		c.JSON(http.StatusOK, gin.H{
			"quotas": resp,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// ResetQuotaHandler zeroes a user's consumed calls for one provider
// @Summary Reset a quota
// @Description Sets used_calls back to zero for a (user, provider) pair. Resetting a pair with no ledger row succeeds.
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param userId path string true "User ID"
// @Param provider path string true "Provider name"
// @Router /api/v1/admin/reset-quota/{userId}/{provider} [post]
func (h *QuotaHandlers) ResetQuotaHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		providerParam := c.Param("provider")

		// Only free-tier providers have a ledger. A reset against anything
		// else is a request about a resource that cannot exist.
		provider, ok := llm.ParseProvider(providerParam)
		if !ok || !provider.FreeTier() {
			c.JSON(http.StatusNotFound, gin.H{"error": "No free-tier quota exists for provider " + providerParam})
			return
		}

		if err := h.quotaRepo.Reset(c.Request.Context(), userID, string(provider)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset quota"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Quota reset successfully"})
	}
}

type setQuotaLimitRequest struct {
	MaxCalls *int `json:"max_calls"`
}

// SetQuotaLimitHandler sets or clears a per-user allowance override
// @Summary Set a quota limit
// @Description Overrides the default free-call allowance for a (user, provider) pair. A null max_calls restores the default.
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param provider path string true "Provider name"
// @Router /api/v1/admin/user-quotas/{userId}/{provider} [put]
func (h *QuotaHandlers) SetQuotaLimitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		providerParam := c.Param("provider")

		provider, ok := llm.ParseProvider(providerParam)
		if !ok || !provider.FreeTier() {
			c.JSON(http.StatusNotFound, gin.H{"error": "No free-tier quota exists for provider " + providerParam})
			return
		}

		var req setQuotaLimitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		if req.MaxCalls != nil && *req.MaxCalls < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_calls must not be negative"})
			return
		}

		if err := h.quotaRepo.SetLimit(c.Request.Context(), userID, string(provider), req.MaxCalls); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set quota limit"})
			return
		}

		quota, err := h.quotaRepo.Get(c.Request.Context(), userID, string(provider))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load quota"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"quota": h.quotaToResponse(quota)})
	}
}
