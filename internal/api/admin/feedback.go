package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chatdeck/chatdeck/internal/db/models"
	"github.com/chatdeck/chatdeck/internal/db/repositories"
)

// FeedbackHandlers exposes the feedback inbox to the admin panel.
type FeedbackHandlers struct {
	feedbackRepo *repositories.FeedbackRepository
}

// NewFeedbackHandlers creates a new FeedbackHandlers instance
func NewFeedbackHandlers(feedbackRepo *repositories.FeedbackRepository) *FeedbackHandlers {
	return &FeedbackHandlers{feedbackRepo: feedbackRepo}
}

type feedbackResponse struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"user_id,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func feedbackToResponse(fb *models.Feedback) feedbackResponse {
	return feedbackResponse{
		ID:        fb.ID,
		UserID:    fb.UserID,
		Name:      fb.Name,
		Email:     fb.Email,
		Message:   fb.Message,
		Source:    fb.Source,
		IsRead:    fb.IsRead,
		CreatedAt: fb.CreatedAt,
	}
}

// ListFeedbackHandler lists feedback submissions
// @Summary List feedback
// @Description Paginated feedback feed, newest first
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param page query int false "Page number (default 1)"
// @Param per_page query int false "Items per page, max 100 (default 20)"
// @Router /api/v1/admin/feedback [get]
func (h *FeedbackHandlers) ListFeedbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := parsePagination(c)

		items, total, err := h.feedbackRepo.List(c.Request.Context(), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list feedback"})
			return
		}

		resp := make([]feedbackResponse, 0, len(items))
		for _, fb := range items {
			resp = append(resp, feedbackToResponse(fb))
		}

		c.JSON(http.StatusOK, gin.H{
			"feedback": resp,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// MarkFeedbackReadHandler flags a submission as reviewed
// @Summary Mark feedback read
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "Feedback ID"
// @Router /api/v1/admin/feedback/{id}/read [patch]
func (h *FeedbackHandlers) MarkFeedbackReadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		if err := h.feedbackRepo.MarkRead(c.Request.Context(), id); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Feedback not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update feedback"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Feedback marked as read"})
	}
}

// DeleteFeedbackHandler removes a submission
// @Summary Delete feedback
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "Feedback ID"
// @Router /api/v1/admin/feedback/{id} [delete]
func (h *FeedbackHandlers) DeleteFeedbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		if err := h.feedbackRepo.Delete(c.Request.Context(), id); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Feedback not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete feedback"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Feedback deleted successfully"})
	}
}
