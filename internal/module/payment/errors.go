package payment

import "errors"

// Module errors.
var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrUnknownProvider = errors.New("unknown payment provider")
	ErrOrderNotPayable = errors.New("order cannot be paid in its current status")
	ErrOrderExpired    = errors.New("order checkout window has expired")
	ErrDuplicateEvent  = errors.New("webhook event already recorded")
	ErrEventNotFound   = errors.New("webhook event not found")
	ErrNotRefundable   = errors.New("payment is not refundable")
)
