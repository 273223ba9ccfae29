package admin

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chatdeck/chatdeck/internal/crypto"
	"github.com/chatdeck/chatdeck/internal/db/models"
	"github.com/chatdeck/chatdeck/internal/db/repositories"
	"github.com/chatdeck/chatdeck/internal/llm"
	"github.com/chatdeck/chatdeck/internal/middleware"
)

// AppKeyHandlers manages the platform-owned provider keys that serve
// free-tier traffic.
type AppKeyHandlers struct {
	keyRepo *repositories.AppKeyRepository
	cipher  *crypto.TokenCipher
}

// NewAppKeyHandlers creates a new AppKeyHandlers instance
func NewAppKeyHandlers(keyRepo *repositories.AppKeyRepository, cipher *crypto.TokenCipher) *AppKeyHandlers {
	return &AppKeyHandlers{keyRepo: keyRepo, cipher: cipher}
}

// appKeyResponse never carries key material. There is nothing to mask either:
// the ciphertext stays server-side and only metadata leaves the API.
type appKeyResponse struct {
	ID         string     `json:"id"`
	Provider   string     `json:"provider"`
	IsActive   bool       `json:"is_active"`
	UsageCount int64      `json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedBy  *string    `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func appKeyToResponse(k *models.AppKey) appKeyResponse {
	return appKeyResponse{
		ID:         k.ID,
		Provider:   k.Provider,
		IsActive:   k.IsActive,
		UsageCount: k.UsageCount,
		LastUsedAt: k.LastUsedAt,
		CreatedBy:  k.CreatedBy,
		CreatedAt:  k.CreatedAt,
		UpdatedAt:  k.UpdatedAt,
	}
}

// ListAppKeysHandler lists the platform key pool
// @Summary List app keys
// @Description Lists platform-owned provider keys with usage metadata. Key material is never returned.
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Router /api/v1/admin/app-keys [get]
func (h *AppKeyHandlers) ListAppKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keys, err := h.keyRepo.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list app keys"})
			return
		}

		resp := make([]appKeyResponse, 0, len(keys))
		for _, k := range keys {
			resp = append(resp, appKeyToResponse(k))
		}
		c.JSON(http.StatusOK, gin.H{"app_keys": resp, "total": len(resp)})
	}
}

type upsertAppKeyRequest struct {
	Provider string `json:"provider" binding:"required"`
	APIKey   string `json:"api_key" binding:"required"`
	IsActive *bool  `json:"is_active"`
}

// UpsertAppKeyHandler installs or rotates a provider's platform key
// @Summary Install or rotate an app key
// @Description Stores the platform key for a provider. A second upsert for the same provider replaces the key in place.
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Router /api/v1/admin/app-keys [post]
func (h *AppKeyHandlers) UpsertAppKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req upsertAppKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		provider, ok := llm.ParseProvider(req.Provider)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown provider: " + req.Provider})
			return
		}
		if !provider.FreeTier() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Provider " + string(provider) + " does not serve free-tier traffic"})
			return
		}

		rawKey := strings.TrimSpace(req.APIKey)
		if rawKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "API key must not be empty"})
			return
		}

		ciphertext, err := h.cipher.Seal(rawKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encrypt key"})
			return
		}

		key := &models.AppKey{
			Provider:      string(provider),
			KeyCiphertext: ciphertext,
			IsActive:      true,
		}
		if req.IsActive != nil {
			key.IsActive = *req.IsActive
		}
		if caller := middleware.CurrentUser(c); caller != nil {
			key.CreatedBy = &caller.ID
		}

		if err := h.keyRepo.Upsert(c.Request.Context(), key); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save app key"})
			return
		}

		saved, err := h.keyRepo.GetByProvider(c.Request.Context(), string(provider))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load saved app key"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"app_key": appKeyToResponse(saved)})
	}
}

type setAppKeyActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// SetAppKeyActiveHandler toggles a platform key without discarding it
// @Summary Enable or disable an app key
// @Description Turns a provider's platform key on or off for free-tier traffic
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param provider path string true "Provider name"
// @Router /api/v1/admin/app-keys/{provider}/active [patch]
func (h *AppKeyHandlers) SetAppKeyActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := c.Param("provider")

		var req setAppKeyActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		if err := h.keyRepo.SetActive(c.Request.Context(), provider, *req.IsActive); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "No app key installed for provider " + provider})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update app key"})
			return
		}

		key, err := h.keyRepo.GetByProvider(c.Request.Context(), provider)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load app key"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"app_key": appKeyToResponse(key)})
	}
}

// DeleteAppKeyHandler removes a platform key entirely
// @Summary Delete an app key
// @Description Removes a provider's platform key. Free-tier requests for the provider fail afterwards.
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param provider path string true "Provider name"
// @Router /api/v1/admin/app-keys/{provider} [delete]
func (h *AppKeyHandlers) DeleteAppKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := c.Param("provider")

		if err := h.keyRepo.Delete(c.Request.Context(), provider); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "No app key installed for provider " + provider})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete app key"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "App key deleted successfully"})
	}
}
