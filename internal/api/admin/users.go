// Package admin implements the admin panel endpoints. Every handler in this
// package sits behind AuthMiddleware plus RequireAdmin in the router.
package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chatdeck/chatdeck/internal/db/models"
	"github.com/chatdeck/chatdeck/internal/db/repositories"
	"github.com/chatdeck/chatdeck/internal/middleware"
)

// UserHandlers handles user management endpoints
type UserHandlers struct {
	userRepo *repositories.UserRepository
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(userRepo *repositories.UserRepository) *UserHandlers {
	return &UserHandlers{userRepo: userRepo}
}

type adminUserResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	IsAdmin       bool      `json:"is_admin"`
	EmailVerified bool      `json:"email_verified"`
	HasPassword   bool      `json:"has_password"`
	HasGoogle     bool      `json:"has_google"`
	CreatedAt     time.Time `json:"created_at"`
}

func userToAdminResponse(u *models.User) adminUserResponse {
	return adminUserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		AvatarURL:     u.AvatarURL,
		IsAdmin:       u.IsAdmin,
		EmailVerified: u.EmailVerified,
		HasPassword:   u.HasPassword(),
		HasGoogle:     u.GoogleID != nil,
		CreatedAt:     u.CreatedAt,
	}
}

func parsePagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage, (page - 1) * perPage
}

// ListUsersHandler lists all users with pagination
// @Summary List users
// @Description Get a paginated list of all accounts
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param page query int false "Page number (default 1)"
// @Param per_page query int false "Items per page, max 100 (default 20)"
// @Router /api/v1/admin/users [get]
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := parsePagination(c)

		users, total, err := h.userRepo.ListUsers(c.Request.Context(), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}

		resp := make([]adminUserResponse, 0, len(users))
		for _, u := range users {
			resp = append(resp, userToAdminResponse(u))
		}

		c.JSON(http.StatusOK, gin.H{
			"users": resp,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// SearchUsersHandler searches users by email or name
// @Summary Search users
// @Description Search accounts by email or name substring
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param q query string true "Search query"
// @Router /api/v1/admin/users/search [get]
func (h *UserHandlers) SearchUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("q")
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Search query is required"})
			return
		}

		page, perPage, offset := parsePagination(c)

		users, err := h.userRepo.Search(c.Request.Context(), query, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search users"})
			return
		}

		resp := make([]adminUserResponse, 0, len(users))
		for _, u := range users {
			resp = append(resp, userToAdminResponse(u))
		}

		c.JSON(http.StatusOK, gin.H{
			"users": resp,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
			},
		})
	}
}

type setAdminRequest struct {
	IsAdmin *bool `json:"is_admin" binding:"required"`
}

// SetAdminHandler grants or revokes the admin flag
// @Summary Set admin flag
// @Description Grants or revokes admin rights on an account. Admins cannot demote themselves.
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Router /api/v1/admin/users/{id}/admin [patch]
func (h *UserHandlers) SetAdminHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		var req setAdminRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		// Self-demotion is blocked so a deployment always keeps at least the
		// acting admin.
		if caller := middleware.CurrentUser(c); caller != nil && caller.ID == userID && !*req.IsAdmin {
			c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot revoke your own admin access"})
			return
		}

		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}

		user.IsAdmin = *req.IsAdmin
		if err := h.userRepo.UpdateUser(c.Request.Context(), user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"user": userToAdminResponse(user)})
	}
}

// DeleteUserHandler deletes a user account
// @Summary Delete user
// @Description Deletes an account. Cascading deletes remove the user's keys, quotas, and reset tokens.
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param id path string true "User ID"
// @Router /api/v1/admin/users/{id} [delete]
func (h *UserHandlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		if caller := middleware.CurrentUser(c); caller != nil && caller.ID == userID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot delete your own account from the admin panel"})
			return
		}

		if _, err := h.userRepo.GetUserByID(c.Request.Context(), userID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}

		if err := h.userRepo.DeleteUser(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
	}
}
