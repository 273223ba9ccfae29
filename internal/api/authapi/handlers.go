// Package authapi implements the authentication endpoints: password signup and
// login, Google sign-in, email one-time codes, password reset, and session
// verification.
package authapi

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chatdeck/chatdeck/internal/auth"
	"github.com/chatdeck/chatdeck/internal/auth/google"
	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/chatdeck/chatdeck/internal/db/models"
	"github.com/chatdeck/chatdeck/internal/db/repositories"
	"github.com/chatdeck/chatdeck/internal/mail"
	"github.com/chatdeck/chatdeck/internal/middleware"
	"github.com/chatdeck/chatdeck/internal/otp"
)

// stateCookie carries the OAuth CSRF state between login and callback.
const stateCookie = "cd_oauth_state"

// Handlers holds the dependencies for the auth endpoints. Google may be nil
// when sign-in is disabled; the handlers answer 503 in that case.
type Handlers struct {
	cfg       *config.Config
	userRepo  *repositories.UserRepository
	quotaRepo *repositories.QuotaRepository
	resetRepo *repositories.ResetTokenRepository
	otpStore  *otp.Store
	mailer    *mail.Mailer
	google    *google.Provider
}

// NewHandlers creates the auth handler set.
func NewHandlers(
	cfg *config.Config,
	userRepo *repositories.UserRepository,
	quotaRepo *repositories.QuotaRepository,
	resetRepo *repositories.ResetTokenRepository,
	otpStore *otp.Store,
	mailer *mail.Mailer,
	googleProvider *google.Provider,
) *Handlers {
	return &Handlers{
		cfg:       cfg,
		userRepo:  userRepo,
		quotaRepo: quotaRepo,
		resetRepo: resetRepo,
		otpStore:  otpStore,
		mailer:    mailer,
		google:    googleProvider,
	}
}

// userResponse is the public shape of an account. Password hashes and Google
// subjects never leave the server.
type userResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	IsAdmin       bool      `json:"is_admin"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		AvatarURL:     u.AvatarURL,
		IsAdmin:       u.IsAdmin,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

func (h *Handlers) issueToken(user *models.User) (string, error) {
	return auth.GenerateJWT(user.ID, user.Email, user.IsAdmin, h.cfg.Auth.JWT.TokenTTL)
}

type signupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

// @Summary      Sign up with email and password
// @Description  Creates an account and emails a verification code. Returns a session token immediately; the account stays unverified until the code is confirmed.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Success      201  {object}  map[string]interface{}  "token, user, delivery"
// @Failure      400  {object}  map[string]interface{}  "Invalid input or duplicate email"
// @Router       /api/v1/auth/signup [post]
func (h *Handlers) SignupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		if err := auth.CheckPasswordPolicy(req.Password); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
			return
		}

		user := &models.User{
			Email:        strings.ToLower(strings.TrimSpace(req.Email)),
			Name:         strings.TrimSpace(req.Name),
			PasswordHash: &hash,
		}
		if err := h.userRepo.CreateUser(c.Request.Context(), user); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "An account with this email already exists"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
			return
		}

		token, err := h.issueToken(user)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}

		resp := gin.H{"token": token, "user": toUserResponse(user)}
		if delivery := h.sendVerificationCode(c, user.Email); delivery != "" {
			resp["delivery"] = delivery
		}
		c.JSON(http.StatusCreated, resp)
	}
}

// sendVerificationCode issues an OTP and emails it. The code is issued
// server-side regardless of delivery, so a failed send is reported to the
// client (as "failed") rather than failing the request.
func (h *Handlers) sendVerificationCode(c *gin.Context, email string) string {
	code, err := h.otpStore.Issue(c.Request.Context(), email)
	if err != nil {
		slog.Error("failed to issue verification code",
			"error", err, "request_id", c.GetString(middleware.RequestIDKey))
		return "failed"
	}
	if err := h.mailer.SendOTP(email, code, h.cfg.Auth.OTP.TTL); err != nil {
		slog.Error("failed to send verification code",
			"error", err, "request_id", c.GetString(middleware.RequestIDKey))
		return "failed"
	}
	return "sent"
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Log in with email and password
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "token, user"
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials"
// @Router       /api/v1/auth/login [post]
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		user, err := h.userRepo.GetUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log in"})
			return
		}

		if !user.HasPassword() || !auth.VerifyPassword(req.Password, *user.PasswordHash) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}

		token, err := h.issueToken(user)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": token, "user": toUserResponse(user)})
	}
}

type otpRequestBody struct {
	Email string `json:"email" binding:"required,email"`
}

// @Summary      Request a one-time login code
// @Description  Emails a short-lived numeric code. The response is identical whether or not the address has an account, so it cannot be used to enumerate users.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message, delivery"
// @Router       /api/v1/auth/otp/request [post]
func (h *Handlers) OTPRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req otpRequestBody
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))

		resp := gin.H{"message": "If the address has an account, a code has been sent"}

		if _, err := h.userRepo.GetUserByEmail(c.Request.Context(), email); err != nil {
			if !errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send code"})
				return
			}
			c.JSON(http.StatusOK, resp)
			return
		}

		if delivery := h.sendVerificationCode(c, email); delivery != "" {
			resp["delivery"] = delivery
		}
		c.JSON(http.StatusOK, resp)
	}
}

type otpVerifyBody struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// @Summary      Verify a one-time login code
// @Description  Consumes the code, marks the account's email verified, and returns a session token.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "token, user"
// @Failure      400  {object}  map[string]interface{}  "Wrong code"
// @Failure      410  {object}  map[string]interface{}  "Code expired or never issued"
// @Failure      429  {object}  map[string]interface{}  "Too many wrong guesses"
// @Router       /api/v1/auth/otp/verify [post]
func (h *Handlers) OTPVerifyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req otpVerifyBody
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))

		if err := h.otpStore.Verify(c.Request.Context(), email, req.Code); err != nil {
			switch {
			case errors.Is(err, otp.ErrNotFound):
				c.JSON(http.StatusGone, gin.H{"error": "Code expired. Please request a new one."})
			case errors.Is(err, otp.ErrTooManyAttempts):
				c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many incorrect attempts. Please request a new code."})
			case errors.Is(err, otp.ErrMismatch):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Incorrect code"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify code"})
			}
			return
		}

		user, err := h.userRepo.GetUserByEmail(c.Request.Context(), email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify code"})
			return
		}

		if !user.EmailVerified {
			user.EmailVerified = true
			if err := h.userRepo.UpdateUser(c.Request.Context(), user); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify code"})
				return
			}
		}

		token, err := h.issueToken(user)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": token, "user": toUserResponse(user)})
	}
}

type forgotRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// @Summary      Request a password reset link
// @Description  Emails a single-use reset link. The response is identical whether or not the address has an account.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message"
// @Router       /api/v1/auth/password/forgot [post]
func (h *Handlers) PasswordForgotHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req forgotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		resp := gin.H{"message": "If the address has an account, a reset link has been sent"}

		user, err := h.userRepo.GetUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			if !errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
				return
			}
			c.JSON(http.StatusOK, resp)
			return
		}

		plaintext, tokenHash, err := auth.GenerateResetToken()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
			return
		}

		ttl := h.cfg.Auth.Reset.TokenTTL
		record := &models.ResetToken{
			UserID:    user.ID,
			TokenHash: tokenHash,
			ExpiresAt: time.Now().Add(ttl),
		}
		if err := h.resetRepo.Create(c.Request.Context(), record); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
			return
		}

		resetURL := h.cfg.Server.GetPublicURL() + "/reset-password?token=" + plaintext
		if err := h.mailer.SendPasswordReset(user.Email, resetURL, ttl); err != nil {
			slog.Error("failed to send reset email",
				"error", err, "request_id", c.GetString(middleware.RequestIDKey))
			resp["delivery"] = "failed"
		}

		c.JSON(http.StatusOK, resp)
	}
}

type resetRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Reset a password with a token
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      400  {object}  map[string]interface{}  "Invalid, used, or expired token"
// @Router       /api/v1/auth/password/reset [post]
func (h *Handlers) PasswordResetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		if err := auth.CheckPasswordPolicy(req.Password); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		record, err := h.resetRepo.GetByHash(c.Request.Context(), auth.HashResetToken(req.Token))
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset link"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
			return
		}
		if !record.Usable(time.Now()) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset link"})
			return
		}

		// MarkUsed is the race gate: two concurrent redeems of the same token
		// see exactly one winner.
		if err := h.resetRepo.MarkUsed(c.Request.Context(), record.ID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset link"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
			return
		}
		if err := h.userRepo.UpdatePassword(c.Request.Context(), record.UserID, hash); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
			return
		}

		// Older reset emails stop working once the password changes.
		if err := h.resetRepo.InvalidateForUser(c.Request.Context(), record.UserID); err != nil {
			slog.Warn("failed to invalidate outstanding reset tokens",
				"error", err, "user_id", record.UserID)
		}

		c.JSON(http.StatusOK, gin.H{"message": "Password updated. You can now log in."})
	}
}

// @Summary      Start Google sign-in
// @Description  Redirects to Google's consent screen with a CSRF state cookie.
// @Tags         Auth
// @Success      302
// @Failure      503  {object}  map[string]interface{}  "Google sign-in not configured"
// @Router       /api/v1/auth/google/login [get]
func (h *Handlers) GoogleLoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.google == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google sign-in is not configured"})
			return
		}

		stateBytes := make([]byte, 16)
		if _, err := rand.Read(stateBytes); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start sign-in"})
			return
		}
		state := base64.RawURLEncoding.EncodeToString(stateBytes)

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(stateCookie, state, 300, "/", "", false, true)
		c.Redirect(http.StatusFound, h.google.GetAuthURL(state))
	}
}

// @Summary      Google sign-in callback
// @Description  Exchanges the code, verifies the ID token, links or creates the account, and redirects to the frontend with a session token.
// @Tags         Auth
// @Success      302
// @Failure      400  {object}  map[string]interface{}  "State mismatch or failed exchange"
// @Router       /api/v1/auth/google/callback [get]
func (h *Handlers) GoogleCallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.google == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google sign-in is not configured"})
			return
		}

		expected, err := c.Cookie(stateCookie)
		if err != nil || expected == "" || c.Query("state") != expected {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sign-in state"})
			return
		}
		c.SetCookie(stateCookie, "", -1, "/", "", false, true)

		code := c.Query("code")
		if code == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
			return
		}

		oauthToken, err := h.google.ExchangeCode(c.Request.Context(), code)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to complete sign-in"})
			return
		}

		rawIDToken, ok := oauthToken.Extra("id_token").(string)
		if !ok || rawIDToken == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to complete sign-in"})
			return
		}

		idToken, err := h.google.VerifyIDToken(c.Request.Context(), rawIDToken)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to complete sign-in"})
			return
		}

		profile, err := h.google.ExtractProfile(idToken)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to complete sign-in"})
			return
		}

		user, err := h.findOrCreateGoogleUser(c, profile)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete sign-in"})
			return
		}

		token, err := h.issueToken(user)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}

		c.Redirect(http.StatusFound, h.cfg.Server.GetPublicURL()+"/auth/callback?token="+token)
	}
}

// findOrCreateGoogleUser resolves a Google profile to an account: match on the
// Google subject first, then link by verified email, then create. Google
// accounts arrive with the email already verified.
func (h *Handlers) findOrCreateGoogleUser(c *gin.Context, profile *google.Profile) (*models.User, error) {
	ctx := c.Request.Context()

	user, err := h.userRepo.GetUserByGoogleID(ctx, profile.Sub)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	user, err = h.userRepo.GetUserByEmail(ctx, profile.Email)
	if err == nil {
		user.GoogleID = &profile.Sub
		user.EmailVerified = true
		if user.AvatarURL == "" {
			user.AvatarURL = profile.Picture
		}
		if err := h.userRepo.UpdateUser(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	sub := profile.Sub
	user = &models.User{
		Email:         profile.Email,
		Name:          profile.Name,
		GoogleID:      &sub,
		AvatarURL:     profile.Picture,
		EmailVerified: true,
	}
	if err := h.userRepo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// quotaResponse is the per-provider free-tier standing shown to the client.
type quotaResponse struct {
	Provider  string `json:"provider"`
	UsedCalls int    `json:"used_calls"`
	MaxCalls  int    `json:"max_calls"`
	Remaining int    `json:"remaining"`
}

// @Summary      Verify the current session
// @Description  Returns the account behind the bearer token plus its free-tier quota standing per provider.
// @Tags         Auth
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "valid, user, quotas"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/auth/verify [get]
func (h *Handlers) VerifyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		quotas, err := h.quotaRepo.ListByUser(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load quotas"})
			return
		}

		defaultFree := h.cfg.Quota.DefaultFreeCalls
		resp := make([]quotaResponse, 0, len(quotas))
		for _, q := range quotas {
			resp = append(resp, quotaResponse{
				Provider:  q.Provider,
				UsedCalls: q.UsedCalls,
				MaxCalls:  q.Limit(defaultFree),
				Remaining: q.Remaining(defaultFree),
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"valid":  true,
			"user":   toUserResponse(user),
			"quotas": resp,
		})
	}
}
