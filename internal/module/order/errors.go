package order

import "errors"

// Module errors.
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPending    = errors.New("order is not pending")
	ErrOrderNotRefundable = errors.New("order cannot be refunded")
	ErrOrderExpired       = errors.New("order has expired")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrEmptyOrder         = errors.New("order has no items")
)
