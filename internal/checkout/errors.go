package checkout

import "errors"

var (
	ErrCaptureInFlight      = errors.New("payment capture already in progress")
	ErrIllegalTransition    = errors.New("illegal transition of checkout status")
	ErrNoCheckout           = errors.New("no checkout in progress for session")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderMismatch        = errors.New("order does not belong to the current checkout")
	ErrEmptyCart            = errors.New("cart is empty, nothing to checkout")
	ErrPaymentNotConfigured = errors.New("payment system is not configured")
	ErrNotCaptured          = errors.New("provider has not completed the order")
)
