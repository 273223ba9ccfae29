// Package keys implements the personal LLM API key endpoints. Keys are sealed
// with AES-GCM before storage and only ever leave the server in masked form.
package keys

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

// Handlers holds the dependencies for the key management endpoints.
type Handlers struct {
	keyRepo *repositories.ProviderKeyRepository
	cipher  *crypto.TokenCipher
}

// NewHandlers creates the key handler set.
func NewHandlers(keyRepo *repositories.ProviderKeyRepository, cipher *crypto.TokenCipher) *Handlers {
	return &Handlers{keyRepo: keyRepo, cipher: cipher}
}

// keyResponse is the public shape of a stored key. The secret itself is never
// returned after creation; MaskedKey shows a digest prefix for recognition.
type keyResponse struct {
	ID         string     `json:"id"`
	Provider   string     `json:"provider"`
	Label      string     `json:"label"`
	MaskedKey  string     `json:"masked_key"`
	IsDefault  bool       `json:"is_default"`
	IsActive   bool       `json:"is_active"`
	UsageCount int64      `json:"usage_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toKeyResponse(k *models.ProviderKey) keyResponse {
	return keyResponse{
		ID:         k.ID,
		Provider:   k.Provider,
		Label:      k.Label,
		MaskedKey:  k.MaskedKey(),
		IsDefault:  k.IsDefault,
		IsActive:   k.IsActive,
		UsageCount: k.UsageCount,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// @Summary      List my API keys
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "keys: []keyResponse"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/api-keys [get]
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.ContextUserID)

		keys, err := h.keyRepo.ListByUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list keys"})
			return
		}

		resp := make([]keyResponse, 0, len(keys))
		for _, k := range keys {
			resp = append(resp, toKeyResponse(k))
		}
		c.JSON(http.StatusOK, gin.H{"keys": resp})
	}
}

type createKeyRequest struct {
	Provider  string `json:"provider" binding:"required"`
	APIKey    string `json:"api_key" binding:"required"`
	Label     string `json:"label"`
	IsDefault bool   `json:"is_default"`
}

// @Summary      Add an API key
// @Description  Stores a personal provider key, encrypted at rest. Creating with is_default set atomically demotes any previous default for the same provider.
// @Tags         API Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      201  {object}  map[string]interface{}  "key: keyResponse"
// @Failure      400  {object}  map[string]interface{}  "Unknown provider or duplicate key"
// @Router       /api/v1/api-keys [post]
func (h *Handlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.ContextUserID)

		var req createKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		provider, ok := llm.ParseProvider(req.Provider)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown provider: " + req.Provider})
			return
		}

		rawKey := strings.TrimSpace(req.APIKey)
		if rawKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "API key must not be empty"})
			return
		}

		ciphertext, err := h.cipher.Seal(rawKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store key"})
			return
		}

		key := &models.ProviderKey{
			UserID:        userID,
			Provider:      provider.String(),
			KeyCiphertext: ciphertext,
			KeyDigest:     crypto.Digest(rawKey),
			Label:         strings.TrimSpace(req.Label),
			IsDefault:     req.IsDefault,
			IsActive:      true,
		}
		if err := h.keyRepo.Create(c.Request.Context(), key); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "This key is already saved for " + provider.String()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store key"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"key": toKeyResponse(key)})
	}
}

type updateKeyRequest struct {
	APIKey    *string `json:"api_key"`
	Label     *string `json:"label"`
	IsDefault *bool   `json:"is_default"`
}

// @Summary      Update an API key
// @Description  Rotates the stored secret, renames a key, and/or makes it the provider default. Clearing is_default is not supported; promote another key instead.
// @Tags         API Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Key ID"
// @Success      200  {object}  map[string]interface{}  "key: keyResponse"
// @Failure      404  {object}  map[string]interface{}  "Key not found"
// @Router       /api/v1/api-keys/{id} [put]
func (h *Handlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.ContextUserID)
		keyID := c.Param("id")

		var req updateKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		ctx := c.Request.Context()

		if req.APIKey != nil {
			rawKey := strings.TrimSpace(*req.APIKey)
			if rawKey == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "API key must not be empty"})
				return
			}
			ciphertext, err := h.cipher.Seal(rawKey)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update key"})
				return
			}
			if err := h.keyRepo.RotateSecret(ctx, userID, keyID, ciphertext, crypto.Digest(rawKey)); err != nil {
				switch {
				case errors.Is(err, repositories.ErrNotFound):
					c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
				case errors.Is(err, repositories.ErrDuplicate):
					c.JSON(http.StatusBadRequest, gin.H{"error": "This key is already saved for this provider"})
				default:
					c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update key"})
				}
				return
			}
		}

		if req.Label != nil {
			if err := h.keyRepo.UpdateLabel(ctx, userID, keyID, strings.TrimSpace(*req.Label)); err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update key"})
				return
			}
		}

		if req.IsDefault != nil && *req.IsDefault {
			if err := h.keyRepo.SetDefault(ctx, userID, keyID); err != nil {
				switch {
				case errors.Is(err, repositories.ErrNotFound):
					c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
				case errors.Is(err, repositories.ErrDuplicate):
					c.JSON(http.StatusConflict, gin.H{"error": "Default key changed concurrently, please retry"})
				default:
					c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update key"})
				}
				return
			}
		}

		key, err := h.keyRepo.GetByID(ctx, userID, keyID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update key"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"key": toKeyResponse(key)})
	}
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// @Summary      Enable or disable an API key
// @Description  A disabled key is skipped by chat request key resolution but keeps its default flag, so re-enabling restores the previous behavior.
// @Tags         API Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Key ID"
// @Success      200  {object}  map[string]interface{}  "key: keyResponse"
// @Failure      404  {object}  map[string]interface{}  "Key not found"
// @Router       /api/v1/api-keys/{id}/active [patch]
func (h *Handlers) SetActiveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.ContextUserID)
		keyID := c.Param("id")

		var req setActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		if err := h.keyRepo.SetActive(c.Request.Context(), userID, keyID, *req.IsActive); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update key"})
			return
		}

		key, err := h.keyRepo.GetByID(c.Request.Context(), userID, keyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update key"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": toKeyResponse(key)})
	}
}

// @Summary      Delete an API key
// @Description  Removes the key permanently. Deleting the current default does not promote another key; chat requests fall back to the free tier until a new default is chosen.
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Key ID"
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      404  {object}  map[string]interface{}  "Key not found"
// @Router       /api/v1/api-keys/{id} [delete]
func (h *Handlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.ContextUserID)
		keyID := c.Param("id")

		if err := h.keyRepo.Delete(c.Request.Context(), userID, keyID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete key"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Key deleted"})
	}
}
