// Package chat implements the chat completion endpoint. Each request resolves
// an API key (personal default first, then the free-tier app key pool) and
// forwards the conversation to the provider behind the requested model.
package chat

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatdeck/chatdeck/internal/llm"
	"github.com/chatdeck/chatdeck/internal/middleware"
	"github.com/chatdeck/chatdeck/internal/telemetry"
)

// Handlers holds the dependencies for the chat endpoint.
type Handlers struct {
	resolver *llm.Resolver
	client   *llm.Client
}

// NewHandlers creates the chat handler set.
func NewHandlers(resolver *llm.Resolver, client *llm.Client) *Handlers {
	return &Handlers{resolver: resolver, client: client}
}

type sendRequest struct {
	Messages []llm.Message `json:"messages" binding:"required,min=1"`
	ModelID  string        `json:"modelId" binding:"required"`
}

// @Summary      Send a chat request
// @Description  Routes the conversation to the provider inferred from modelId. Uses the caller's default key for that provider when one is set; otherwise free-tier providers are served from the app key pool against the caller's quota.
// @Tags         Chat
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "content, model, provider, key_source, remaining_free_calls"
// @Failure      400  {object}  map[string]interface{}  "Unknown model or USER_KEY_REQUIRED"
// @Failure      429  {object}  map[string]interface{}  "QUOTA_EXCEEDED"
// @Failure      500  {object}  map[string]interface{}  "PROVIDER_NOT_CONFIGURED"
// @Failure      502  {object}  map[string]interface{}  "Upstream provider error"
// @Router       /api/v1/chat/send [post]
func (h *Handlers) SendHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.ContextUserID)

		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		provider, ok := llm.ProviderForModel(req.ModelID)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown model: " + req.ModelID})
			return
		}

		resolved, err := h.resolver.Resolve(c.Request.Context(), userID, provider)
		if err != nil {
			var resErr *llm.ResolutionError
			if errors.As(err, &resErr) {
				c.JSON(resErr.Status, gin.H{
					"error":    resErr.Message,
					"code":     resErr.Code,
					"provider": resErr.Provider,
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
			return
		}

		resp, err := h.client.ChatCompletion(c.Request.Context(), provider, resolved.APIKey, req.ModelID, req.Messages)
		if err != nil {
			var upErr *llm.UpstreamError
			if errors.As(err, &upErr) {
				c.JSON(http.StatusBadGateway, gin.H{
					"error":    upErr.Message,
					"provider": string(provider),
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reach the model provider"})
			return
		}

		// Usage is recorded only for calls the provider actually answered.
		h.resolver.Commit(c.Request.Context(), resolved)

		telemetry.ChatRequestsTotal.WithLabelValues(string(provider), resolved.Source).Inc()

		out := gin.H{
			"content":    resp.Content,
			"model":      resp.Model,
			"provider":   string(provider),
			"key_source": resolved.Source,
		}
		// Quota standing only applies when the call was served from the pool.
		if resolved.Source == llm.SourceAppKey {
			out["remaining_free_calls"] = resolved.Remaining
		}
		c.JSON(http.StatusOK, out)
	}
}
