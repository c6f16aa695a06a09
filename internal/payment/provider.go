package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	IntentCapture = "CAPTURE"
	CurrencyUSD   = "USD"

	StatusCreated   = "CREATED"
	StatusApproved  = "APPROVED"
	StatusCompleted = "COMPLETED"
	StatusVoided    = "VOIDED"
)

var (
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrOrderNotFound       = errors.New("provider order not found")
)

// Provider is the hosted payment service. Order creation, approval and
// capture happen on its side; the storefront only drives the calls.
type Provider interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*CapturedOrder, error)
	GetOrder(ctx context.Context, orderID string) (*CapturedOrder, error)
}

type Amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type PurchaseUnit struct {
	Amount      Amount `json:"amount"`
	Description string `json:"description,omitempty"`
}

type OrderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
}

// NewOrderRequest builds the capture-intent order for a cart total.
func NewOrderRequest(total decimal.Decimal, itemCount int) OrderRequest {
	return OrderRequest{
		Intent: IntentCapture,
		PurchaseUnits: []PurchaseUnit{{
			Amount: Amount{
				CurrencyCode: CurrencyUSD,
				Value:        total.StringFixed(2),
			},
			Description: fmt.Sprintf("Order of %d item(s)", itemCount),
		}},
	}
}

type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Payer struct {
	EmailAddress string `json:"email_address"`
	PayerID      string `json:"payer_id"`
}

type CapturedUnit struct {
	Amount Amount `json:"amount"`
}

// CapturedOrder is what the provider reports after capture.
type CapturedOrder struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Payer         Payer          `json:"payer"`
	PurchaseUnits []CapturedUnit `json:"purchase_units"`
}

func (o *CapturedOrder) Completed() bool {
	return o.Status == StatusCompleted
}

// CapturedAmount returns the first purchase unit amount.
func (o *CapturedOrder) CapturedAmount() (decimal.Decimal, error) {
	if len(o.PurchaseUnits) == 0 {
		return decimal.Zero, fmt.Errorf("order %s has no purchase units", o.ID)
	}
	return decimal.NewFromString(o.PurchaseUnits[0].Amount.Value)
}

// ProviderError is a non-2xx answer from the provider API.
type ProviderError struct {
	Op         string
	StatusCode int
	Name       string
	Message    string
	DebugID    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider returned %d %s: %s (debug_id=%s)", e.Op, e.StatusCode, e.Name, e.Message, e.DebugID)
}

// Temporary reports whether retrying the same call may succeed.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

func (e *ProviderError) Unwrap() error {
	if e.StatusCode == 404 {
		return ErrOrderNotFound
	}
	return nil
}
