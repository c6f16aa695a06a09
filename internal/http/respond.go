package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/payment"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError maps service errors to HTTP status codes.
func handleError(w http.ResponseWriter, err error) {
	var status int
	var code string
	var providerErr *payment.ProviderError

	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		status, code = http.StatusNotFound, "product_not_found"
	case errors.Is(err, checkout.ErrOrderNotFound), errors.Is(err, payment.ErrOrderNotFound):
		status, code = http.StatusNotFound, "order_not_found"
	case errors.Is(err, domain.ErrInvalidQuantity):
		status, code = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, checkout.ErrEmptyCart):
		status, code = http.StatusBadRequest, "empty_cart"
	case errors.Is(err, checkout.ErrCaptureInFlight):
		status, code = http.StatusConflict, "capture_in_flight"
	case errors.Is(err, checkout.ErrIllegalTransition),
		errors.Is(err, checkout.ErrNoCheckout),
		errors.Is(err, checkout.ErrOrderMismatch):
		status, code = http.StatusConflict, "invalid_checkout_state"
	case errors.Is(err, checkout.ErrPaymentNotConfigured):
		status, code = http.StatusServiceUnavailable, "payment_not_configured"
	case errors.Is(err, payment.ErrProviderUnavailable):
		status, code = http.StatusServiceUnavailable, "provider_unavailable"
	case errors.As(err, &providerErr):
		status, code = http.StatusBadGateway, "provider_error"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	default:
		zap.L().Error("unhandled request error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondError(w, status, code, err.Error())
}
