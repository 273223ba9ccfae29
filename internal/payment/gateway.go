// Package payment wraps the Razorpay gateway: order creation through the SDK
// and signature verification for checkout callbacks and webhooks. Amounts are
// in the currency's smallest unit (paise for INR) throughout.
package payment

import (
	"errors"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"

	"github.com/chatdeck/chatdeck/internal/config"
	"github.com/chatdeck/chatdeck/pkg/signature"
)

// ErrInvalidSignature is returned when a callback or webhook signature does
// not match the shared secret.
var ErrInvalidSignature = errors.New("payment signature mismatch")

// orderAPI is the slice of the Razorpay SDK the gateway uses. The SDK returns
// loosely-typed maps; the interface exists so tests can stub the network.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Gateway talks to Razorpay on behalf of the payment handlers.
type Gateway struct {
	cfg    *config.RazorpayConfig
	orders orderAPI
}

// NewGateway creates a Gateway from the Razorpay configuration.
func NewGateway(cfg *config.RazorpayConfig) *Gateway {
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	return &Gateway{cfg: cfg, orders: client.Order}
}

// KeyID returns the public key ID the frontend checkout needs.
func (g *Gateway) KeyID() string {
	return g.cfg.KeyID
}

// CreateOrder registers an order with the gateway and returns its ID. The
// receipt ties the gateway order back to our payment_orders row.
func (g *Gateway) CreateOrder(amount int64, currency, receipt string) (string, error) {
	if currency == "" {
		currency = g.cfg.Currency
	}
	data := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}
	body, err := g.orders.Create(data, nil)
	if err != nil {
		return "", fmt.Errorf("create gateway order: %w", err)
	}

	orderID, ok := body["id"].(string)
	if !ok || orderID == "" {
		return "", fmt.Errorf("gateway order response missing id")
	}
	return orderID, nil
}

// VerifyPayment checks the checkout callback signature. Razorpay signs
// "<order_id>|<payment_id>" with the API key secret.
func (g *Gateway) VerifyPayment(orderID, paymentID, sig string) error {
	payload := []byte(orderID + "|" + paymentID)
	if !signature.Verify(payload, g.cfg.KeySecret, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyWebhook checks the X-Razorpay-Signature header against the raw
// request body using the webhook secret, which is distinct from the API key
// secret.
func (g *Gateway) VerifyWebhook(body []byte, sig string) error {
	if !signature.Verify(body, g.cfg.WebhookSecret, sig) {
		return ErrInvalidSignature
	}
	return nil
}
