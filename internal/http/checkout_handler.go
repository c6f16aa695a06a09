package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/payment"
	"github.com/go-chi/chi/v5"
)

type Checkout interface {
	Present(ctx context.Context, sessionID string) (*checkout.Surface, error)
	CreateOrder(ctx context.Context, sessionID string) (*payment.Order, payment.OrderRequest, error)
	Approve(ctx context.Context, sessionID, orderID string) (checkout.Outcome, error)
	Fail(ctx context.Context, sessionID, cause string) (checkout.Outcome, error)
	Cancel(ctx context.Context, sessionID string) (checkout.Outcome, error)
	ReconcileForSession(ctx context.Context, sessionID, orderID string) (checkout.Outcome, error)
	State(sessionID string) checkout.State
}

type CheckoutHandler struct {
	checkout Checkout
}

func NewCheckoutHandler(c Checkout) *CheckoutHandler {
	return &CheckoutHandler{checkout: c}
}

type CreateOrderResponseDTO struct {
	ID      string               `json:"id"`
	Status  string               `json:"status"`
	Request payment.OrderRequest `json:"request"`
}

type ProviderErrorRequestDTO struct {
	Message string `json:"message"`
}

type OutcomeResponseDTO struct {
	Outcome checkout.OutcomeKind   `json:"outcome"`
	Order   *payment.CapturedOrder `json:"order,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

func (h *CheckoutHandler) Present(w http.ResponseWriter, r *http.Request) {
	surface, err := h.checkout.Present(r.Context(), sessionIDFromContext(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, surface)
}

func (h *CheckoutHandler) State(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.checkout.State(sessionIDFromContext(r.Context())))
}

func (h *CheckoutHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	order, req, err := h.checkout.CreateOrder(r.Context(), sessionIDFromContext(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, CreateOrderResponseDTO{
		ID:      order.ID,
		Status:  order.Status,
		Request: req,
	})
}

func (h *CheckoutHandler) Capture(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.checkout.Approve(r.Context(), sessionIDFromContext(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondOutcome(w, outcome)
}

func (h *CheckoutHandler) ProviderError(w http.ResponseWriter, r *http.Request) {
	var req ProviderErrorRequestDTO
	// the provider callback may carry no body at all
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Message == "" {
		req.Message = "payment provider error"
	}

	outcome, err := h.checkout.Fail(r.Context(), sessionIDFromContext(r.Context()), req.Message)
	if err != nil {
		handleError(w, err)
		return
	}
	respondOutcome(w, outcome)
}

func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.checkout.Cancel(r.Context(), sessionIDFromContext(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}
	respondOutcome(w, outcome)
}

func (h *CheckoutHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.checkout.ReconcileForSession(r.Context(), sessionIDFromContext(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondOutcome(w, outcome)
}

// respondOutcome answers 200 for success and cancellation and 402 for a
// failed payment. The user-facing message is delivered as a notification.
func respondOutcome(w http.ResponseWriter, o checkout.Outcome) {
	dto := OutcomeResponseDTO{Outcome: o.Kind, Order: o.Order}
	status := http.StatusOK
	if o.Kind == checkout.OutcomeFailed {
		status = http.StatusPaymentRequired
		if o.Err != nil {
			dto.Error = o.Err.Error()
		}
	}
	respondJSON(w, status, dto)
}
