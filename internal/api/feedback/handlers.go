// Package feedback implements the public feedback submission endpoint.
package feedback

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chatdeck/chatdeck/internal/db/models"
	"github.com/chatdeck/chatdeck/internal/db/repositories"
	"github.com/chatdeck/chatdeck/internal/middleware"
)

// Handlers holds the dependencies for the feedback endpoint.
type Handlers struct {
	feedbackRepo *repositories.FeedbackRepository
}

// NewHandlers creates the feedback handler set.
func NewHandlers(feedbackRepo *repositories.FeedbackRepository) *Handlers {
	return &Handlers{feedbackRepo: feedbackRepo}
}

type submitRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message" binding:"required"`
	Source  string `json:"source"`
}

// @Summary      Submit feedback
// @Description  Accepts feedback from anyone. When the request carries a valid session the submission is linked to the account; name and email are otherwise whatever the submitter typed.
// @Tags         Feedback
// @Accept       json
// @Produce      json
// @Success      201  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "Missing message"
// @Router       /api/v1/feedback [post]
func (h *Handlers) SubmitHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
			return
		}

		fb := &models.Feedback{
			Name:    strings.TrimSpace(req.Name),
			Email:   strings.TrimSpace(req.Email),
			Message: strings.TrimSpace(req.Message),
			Source:  strings.TrimSpace(req.Source),
		}
		if fb.Message == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
			return
		}

		// Optional auth: a logged-in submitter gets linked to their account.
		if user := middleware.CurrentUser(c); user != nil {
			fb.UserID = &user.ID
			if fb.Name == "" {
				fb.Name = user.Name
			}
			if fb.Email == "" {
				fb.Email = user.Email
			}
		}

		if err := h.feedbackRepo.Create(c.Request.Context(), fb); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save feedback"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"message": "Thanks for the feedback!"})
	}
}
