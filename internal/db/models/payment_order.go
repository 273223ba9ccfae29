// Package models - payment_order.go defines the payment order model.
package models

import "time"

// Payment order statuses. An order moves created → paid on a verified
// checkout callback or webhook, or created → failed when the gateway
// reports a failure.
const (
	OrderStatusCreated = "created"
	OrderStatusPaid    = "paid"
	OrderStatusFailed  = "failed"
)

// PaymentOrder mirrors one order created at the payment gateway. Amount is in
// the currency's smallest unit (paise for INR). PaymentID is set once the
// gateway reports a capture.
type PaymentOrder struct {
	ID              string
	UserID          string
	ProviderOrderID string
	Amount          int64
	Currency        string
	Plan            string
	Status          string
	PaymentID       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
