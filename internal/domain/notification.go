package domain

import "time"

type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationError   NotificationLevel = "error"
	NotificationInfo    NotificationLevel = "info"
)

const (
	MessagePaymentSucceeded   = "Payment successful! Thank you for your purchase."
	MessagePaymentFailed      = "Payment failed. Please try again or contact support."
	MessagePostCaptureFailed  = "There was an error processing your payment. Please try again."
	MessagePaymentCancelled   = "Payment cancelled. Your cart items are still saved."
	MessagePaymentUnconfirmed = "We could not confirm your payment yet. Please try again, you will not be charged twice."
	MessageConfigurationError = "Payment system configuration error. Please contact support."
)

type Notification struct {
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	OrderID   string            `json:"order_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
