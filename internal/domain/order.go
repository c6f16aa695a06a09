package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"
	OrderStatusCaptured  OrderStatus = "CAPTURED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusFailed    OrderStatus = "FAILED"
	// the capture call failed without a definite answer; the payer may
	// have been charged
	OrderStatusCaptureUnknown OrderStatus = "CAPTURE_UNKNOWN"
)

// OrderRecord tracks one provider order from creation to completion.
// CAPTURED means the provider charged the payer but the cart has not been
// cleared yet. CAPTURED and CAPTURE_UNKNOWN records are picked up by
// reconciliation.
type OrderRecord struct {
	OrderID    string          `json:"order_id"`
	SessionID  string          `json:"session_id"`
	Status     OrderStatus     `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	ItemCount  int             `json:"item_count"`
	PayerEmail string          `json:"payer_email,omitempty"`
	PayerID    string          `json:"payer_id,omitempty"`
	Published  bool            `json:"published"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
