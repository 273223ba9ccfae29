// Package api wires together all HTTP routes for the Chatdeck backend.
//
// Route grouping philosophy:
//   - /api/v1/auth/ endpoints are public but sit behind a stricter per-IP
//     Redis rate limit, since they accept credentials.
//   - /api/v1/feedback accepts anonymous submissions; optional auth attaches
//     the account when a token is present.
//   - /api/v1/payments/webhook is public because the gateway authenticates
//     itself with an HMAC signature, not a bearer token.
//   - Everything else under /api/v1/ requires a valid JWT, and /api/v1/admin/
//     additionally requires the admin flag.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/chatdeck/chatdeck/internal/api/admin"
	"github.com/chatdeck/chatdeck/internal/api/authapi"
	"github.com/chatdeck/chatdeck/internal/api/chat"
	"github.com/chatdeck/chatdeck/internal/api/feedback"
	"github.com/chatdeck/chatdeck/internal/api/keys"
	"github.com/chatdeck/chatdeck/internal/api/payments"
	"github.com/chatdeck/chatdeck/internal/auth/google"
	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/chatdeck/chatdeck/internal/crypto"
	"github.com/chatdeck/chatdeck/internal/db/repositories"
	"github.com/chatdeck/chatdeck/internal/jobs"
	"github.com/chatdeck/chatdeck/internal/llm"
	"github.com/chatdeck/chatdeck/internal/mail"
	"github.com/chatdeck/chatdeck/internal/middleware"
	"github.com/chatdeck/chatdeck/internal/otp"
	"github.com/chatdeck/chatdeck/internal/payment"
	"github.com/chatdeck/chatdeck/internal/safego"
)

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	resetJanitor *jobs.ResetTokenJanitor
	rateLimiters []*middleware.RateLimiter
	redisClient  *redis.Client
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.resetJanitor != nil {
		bg.resetJanitor.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	providerKeyRepo := repositories.NewProviderKeyRepository(db)
	quotaRepo := repositories.NewQuotaRepository(db)
	appKeyRepo := repositories.NewAppKeyRepository(db)
	resetRepo := repositories.NewResetTokenRepository(db)
	feedbackRepo := repositories.NewFeedbackRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)

	// Wrap *sql.DB with sqlx for the read-only stats queries
	sqlxDB := sqlx.NewDb(db, "postgres")
	statsRepo := repositories.NewStatsRepository(sqlxDB)

	// Initialize token cipher for encrypting stored provider keys
	tokenCipher, err := crypto.NewTokenCipherFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize token cipher: %v", err)
	}

	// Redis backs the OTP store and the auth rate limiter
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	otpStore := otp.NewStore(rdb, cfg.Auth.OTP.TTL, cfg.Auth.OTP.MaxAttempts)

	mailer := mail.NewMailer(&cfg.Mail)

	// Google sign-in is optional; the auth handlers answer 503 for the Google
	// routes when the provider is nil.
	var googleProvider *google.Provider
	if cfg.Auth.Google.Enabled {
		googleProvider, err = google.NewProvider(&cfg.Auth.Google)
		if err != nil {
			log.Fatalf("Failed to initialize Google sign-in: %v", err)
		}
		log.Println("Google sign-in enabled")
	}

	// Key resolution and the upstream LLM client
	resolver := llm.NewResolver(providerKeyRepo, quotaRepo, appKeyRepo, tokenCipher, cfg.Quota.DefaultFreeCalls)
	llmClient := llm.NewClient(cfg.LLM.RequestTimeout)

	// Start the reset token janitor
	resetJanitor := jobs.NewResetTokenJanitor(resetRepo, int(cfg.Auth.Reset.JanitorInterval.Hours()))
	safego.Go(func() { resetJanitor.Start(context.Background()) })

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Readiness check endpoint (includes Redis probe)
	router.GET("/ready", readinessHandler(db, rdb))

	// API version
	router.GET("/version", versionHandler())

	// Initialize handlers
	authHandlers := authapi.NewHandlers(cfg, userRepo, quotaRepo, resetRepo, otpStore, mailer, googleProvider)
	keyHandlers := keys.NewHandlers(providerKeyRepo, tokenCipher)
	chatHandlers := chat.NewHandlers(resolver, llmClient)
	feedbackHandlers := feedback.NewHandlers(feedbackRepo)

	adminUserHandlers := admin.NewUserHandlers(userRepo)
	adminAppKeyHandlers := admin.NewAppKeyHandlers(appKeyRepo, tokenCipher)
	adminQuotaHandlers := admin.NewQuotaHandlers(cfg, quotaRepo)
	adminFeedbackHandlers := admin.NewFeedbackHandlers(feedbackRepo)
	adminStatsHandlers := admin.NewStatsHandlers(statsRepo)

	// Initialize rate limiters
	generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	chatRateLimiter := middleware.NewRateLimiter(middleware.ChatRateLimitConfig())

	apiV1 := router.Group("/api/v1")
	{
		// Public authentication endpoints. The Redis-backed limiter is per-IP
		// and stricter than the general limit because these accept credentials.
		authGroup := apiV1.Group("/auth")
		authGroup.Use(middleware.AuthRateLimitMiddleware(rdb, cfg.Security.RateLimiting.AuthRequestsPerMinute))
		{
			authGroup.POST("/signup", authHandlers.SignupHandler())
			authGroup.POST("/login", authHandlers.LoginHandler())
			authGroup.POST("/otp/request", authHandlers.OTPRequestHandler())
			authGroup.POST("/otp/verify", authHandlers.OTPVerifyHandler())
			authGroup.POST("/password/forgot", authHandlers.PasswordForgotHandler())
			authGroup.POST("/password/reset", authHandlers.PasswordResetHandler())
			authGroup.GET("/google/login", authHandlers.GoogleLoginHandler())
			authGroup.GET("/google/callback", authHandlers.GoogleCallbackHandler())
		}

		// Feedback accepts anonymous submissions; a valid token attaches the
		// account to the submission.
		feedbackGroup := apiV1.Group("/feedback")
		feedbackGroup.Use(middleware.OptionalAuthMiddleware(userRepo))
		feedbackGroup.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		{
			feedbackGroup.POST("", feedbackHandlers.SubmitHandler())
		}

		// Payment routes exist only when the gateway is configured
		if cfg.Payment.Enabled {
			gateway := payment.NewGateway(&cfg.Payment.Razorpay)
			paymentHandlers := payments.NewHandlers(gateway, paymentRepo)

			// The webhook authenticates via HMAC signature, not a bearer token
			apiV1.POST("/payments/webhook", paymentHandlers.WebhookHandler())

			paymentsGroup := apiV1.Group("/payments")
			paymentsGroup.Use(middleware.AuthMiddleware(userRepo))
			paymentsGroup.Use(middleware.RateLimitMiddleware(generalRateLimiter))
			{
				paymentsGroup.POST("/create-order", paymentHandlers.CreateOrderHandler())
				paymentsGroup.POST("/verify", paymentHandlers.VerifyHandler())
				paymentsGroup.GET("/orders", paymentHandlers.ListOrdersHandler())
			}
		}

		// Authenticated-only endpoints
		authenticatedGroup := apiV1.Group("")
		authenticatedGroup.Use(middleware.AuthMiddleware(userRepo))
		authenticatedGroup.Use(middleware.RateLimitMiddleware(generalRateLimiter))
		{
			authenticatedGroup.GET("/auth/verify", authHandlers.VerifyHandler())

			// Personal provider key management
			keysGroup := authenticatedGroup.Group("/api-keys")
			{
				keysGroup.GET("", keyHandlers.ListHandler())
				keysGroup.POST("", keyHandlers.CreateHandler())
				keysGroup.PUT("/:id", keyHandlers.UpdateHandler())
				keysGroup.PATCH("/:id/active", keyHandlers.SetActiveHandler())
				keysGroup.DELETE("/:id", keyHandlers.DeleteHandler())
			}

			// Chat carries its own stricter limiter on top of the general one
			authenticatedGroup.POST("/chat/send",
				middleware.RateLimitMiddleware(chatRateLimiter),
				chatHandlers.SendHandler())

			// Admin panel
			adminGroup := authenticatedGroup.Group("/admin")
			adminGroup.Use(middleware.RequireAdmin())
			{
				adminGroup.GET("/users", adminUserHandlers.ListUsersHandler())
				adminGroup.GET("/users/search", adminUserHandlers.SearchUsersHandler())
				adminGroup.PATCH("/users/:id/admin", adminUserHandlers.SetAdminHandler())
				adminGroup.DELETE("/users/:id", adminUserHandlers.DeleteUserHandler())

				adminGroup.GET("/app-keys", adminAppKeyHandlers.ListAppKeysHandler())
				adminGroup.POST("/app-keys", adminAppKeyHandlers.UpsertAppKeyHandler())
				adminGroup.PATCH("/app-keys/:provider/active", adminAppKeyHandlers.SetAppKeyActiveHandler())
				adminGroup.DELETE("/app-keys/:provider", adminAppKeyHandlers.DeleteAppKeyHandler())

				adminGroup.GET("/user-quotas", adminQuotaHandlers.ListQuotasHandler())
				adminGroup.PUT("/user-quotas/:userId/:provider", adminQuotaHandlers.SetQuotaLimitHandler())
				adminGroup.POST("/reset-quota/:userId/:provider", adminQuotaHandlers.ResetQuotaHandler())

				adminGroup.GET("/feedback", adminFeedbackHandlers.ListFeedbackHandler())
				adminGroup.PATCH("/feedback/:id/read", adminFeedbackHandlers.MarkFeedbackReadHandler())
				adminGroup.DELETE("/feedback/:id", adminFeedbackHandlers.DeleteFeedbackHandler())

				adminGroup.GET("/stats", adminStatsHandlers.DashboardHandler())
				adminGroup.GET("/stats/usage", adminStatsHandlers.UsageByProviderHandler())
			}
		}
	}

	bg := &BackgroundServices{
		resetJanitor: resetJanitor,
		rateLimiters: []*middleware.RateLimiter{generalRateLimiter, chatRateLimiter},
		redisClient:  rdb,
	}

	return router, bg
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database and Redis connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: dependency not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks Redis so that a
// readiness gate fails while OTP login and auth rate limiting would error.
func readinessHandler(db *sql.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		// Check database connection
		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			checks["redis"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "redis not ready",
			})
			return
		}
		checks["redis"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// reuse the same structured output; slog will emit text format when the global
	// handler is a TextHandler (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
