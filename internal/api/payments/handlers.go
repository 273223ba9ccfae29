// Package payments exposes the Razorpay checkout flow: order creation, the
// browser callback verification, and the server-to-server webhook.
package payments

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chatdeck/chatdeck/internal/db/models"
	"github.com/chatdeck/chatdeck/internal/db/repositories"
	"github.com/chatdeck/chatdeck/internal/middleware"
	"github.com/chatdeck/chatdeck/internal/payment"
	"github.com/chatdeck/chatdeck/internal/telemetry"
)

// plans maps a plan identifier to its price in the currency's smallest unit
// (paise for INR). Unknown plans are rejected before any gateway call.
var plans = map[string]int64{
	"pro_monthly": 49900,
	"pro_yearly":  499900,
}

// Handlers holds the dependencies for payment endpoints.
type Handlers struct {
	gateway   *payment.Gateway
	orderRepo *repositories.PaymentRepository
}

// NewHandlers creates payment handlers.
func NewHandlers(gateway *payment.Gateway, orderRepo *repositories.PaymentRepository) *Handlers {
	return &Handlers{gateway: gateway, orderRepo: orderRepo}
}

type createOrderRequest struct {
	Plan     string `json:"plan" binding:"required"`
	Currency string `json:"currency"`
}

type orderResponse struct {
	ID              string    `json:"id"`
	ProviderOrderID string    `json:"order_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Plan            string    `json:"plan"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

func orderToResponse(o *models.PaymentOrder) orderResponse {
	return orderResponse{
		ID:              o.ID,
		ProviderOrderID: o.ProviderOrderID,
		Amount:          o.Amount,
		Currency:        o.Currency,
		Plan:            o.Plan,
		Status:          o.Status,
		CreatedAt:       o.CreatedAt,
	}
}

// CreateOrderHandler registers a gateway order for a plan purchase
// @Summary Create a payment order
// @Description Creates a Razorpay order for the selected plan and returns the checkout parameters
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Router /api/v1/payments/create-order [post]
func (h *Handlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		amount, ok := plans[req.Plan]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown plan: " + req.Plan})
			return
		}

		// The receipt is our own order ID, assigned before the gateway call so
		// the gateway dashboard can be matched back to payment_orders.
		order := &models.PaymentOrder{
			UserID:   user.ID,
			Amount:   amount,
			Currency: req.Currency,
			Plan:     req.Plan,
			Status:   models.OrderStatusCreated,
		}

		providerOrderID, err := h.gateway.CreateOrder(amount, req.Currency, user.ID+":"+req.Plan)
		if err != nil {
			slog.Error("payment order creation failed",
				"user_id", user.ID,
				"plan", req.Plan,
				"error", err,
				"request_id", c.GetString(middleware.RequestIDKey),
			)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway is unavailable. Please try again."})
			return
		}
		order.ProviderOrderID = providerOrderID

		if err := h.orderRepo.Create(c.Request.Context(), order); err != nil {
			slog.Error("payment order persistence failed",
				"user_id", user.ID,
				"provider_order_id", providerOrderID,
				"error", err,
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record payment order"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"order_id": order.ProviderOrderID,
			"amount":   order.Amount,
			"currency": order.Currency,
			"plan":     order.Plan,
			"key_id":   h.gateway.KeyID(),
		})
	}
}

type verifyRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// VerifyHandler confirms a checkout callback
// @Summary Verify a completed payment
// @Description Verifies the Razorpay checkout signature and marks the order paid
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Router /api/v1/payments/verify [post]
func (h *Handlers) VerifyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		var req verifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		order, err := h.orderRepo.GetByProviderOrderID(c.Request.Context(), req.OrderID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order"})
			return
		}
		if order.UserID != user.ID {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}

		if err := h.gateway.VerifyPayment(req.OrderID, req.PaymentID, req.Signature); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Payment verification failed"})
			return
		}

		if err := h.orderRepo.MarkPaid(c.Request.Context(), req.OrderID, req.PaymentID); err != nil {
			slog.Error("payment mark-paid failed",
				"provider_order_id", req.OrderID,
				"payment_id", req.PaymentID,
				"error", err,
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": models.OrderStatusPaid})
	}
}

// ListOrdersHandler returns the caller's order history
// @Summary List payment orders
// @Description Returns the authenticated user's payment orders, newest first
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Router /api/v1/payments/orders [get]
func (h *Handlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		orders, err := h.orderRepo.ListByUser(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list orders"})
			return
		}

		resp := make([]orderResponse, 0, len(orders))
		for _, o := range orders {
			resp = append(resp, orderToResponse(o))
		}
		c.JSON(http.StatusOK, gin.H{"orders": resp, "total": len(resp)})
	}
}

// webhookEvent is the subset of the Razorpay webhook payload the handler
// reads. Everything else in the event is ignored.
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// WebhookHandler ingests gateway webhook deliveries
// @Summary Razorpay webhook receiver
// @Description Verifies the webhook signature and applies payment.captured / payment.failed events
// @Tags payments
// @Accept json
// @Produce json
// @Router /api/v1/payments/webhook [post]
func (h *Handlers) WebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
			return
		}

		sig := c.GetHeader("X-Razorpay-Signature")
		if err := h.gateway.VerifyWebhook(body, sig); err != nil {
			telemetry.PaymentWebhookRejectionsTotal.Inc()
			slog.Warn("payment webhook rejected",
				"error", err,
				"ip", c.ClientIP(),
			)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook signature"})
			return
		}

		var event webhookEvent
		if err := json.Unmarshal(body, &event); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
			return
		}

		entity := event.Payload.Payment.Entity
		switch event.Event {
		case "payment.captured":
			if entity.OrderID == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook payload missing order_id"})
				return
			}
			if err := h.orderRepo.MarkPaid(c.Request.Context(), entity.OrderID, entity.ID); err != nil {
				slog.Error("webhook mark-paid failed", "provider_order_id", entity.OrderID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply event"})
				return
			}
		case "payment.failed":
			if entity.OrderID == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook payload missing order_id"})
				return
			}
			if err := h.orderRepo.MarkFailed(c.Request.Context(), entity.OrderID); err != nil {
				slog.Error("webhook mark-failed failed", "provider_order_id", entity.OrderID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply event"})
				return
			}
		default:
			// Unhandled event types are acknowledged so the gateway stops
			// retrying them.
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
