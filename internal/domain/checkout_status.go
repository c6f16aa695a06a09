package domain

type CheckoutStatus string

const (
	CheckoutStatusIdle             CheckoutStatus = "IDLE"
	CheckoutStatusAwaitingApproval CheckoutStatus = "AWAITING_APPROVAL"
	CheckoutStatusCapturing        CheckoutStatus = "CAPTURING"
	CheckoutStatusSuccess          CheckoutStatus = "SUCCESS"
	CheckoutStatusFailed           CheckoutStatus = "FAILED"
	CheckoutStatusCancelled        CheckoutStatus = "CANCELLED"
)

// A capture with an unknown outcome returns to AWAITING_APPROVAL so the same
// order can be approved again.
var transitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusIdle:             {CheckoutStatusAwaitingApproval},
	CheckoutStatusAwaitingApproval: {CheckoutStatusCapturing, CheckoutStatusCancelled, CheckoutStatusFailed},
	CheckoutStatusCapturing:        {CheckoutStatusSuccess, CheckoutStatusFailed, CheckoutStatusAwaitingApproval},
	CheckoutStatusFailed:           {CheckoutStatusIdle},
	CheckoutStatusCancelled:        {CheckoutStatusIdle},
}

func CanTransitionTo(from, to CheckoutStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the attempt has finished. Failed and cancelled
// attempts return to idle, so only success is final.
func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusSuccess
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}
