package payment

import "time"

// CheckoutRequest is the request body for initiating a checkout.
type CheckoutRequest struct {
	OrderNo string `json:"order_no" binding:"required"`
	Method  string `json:"method" binding:"required"`
}

// CheckoutResponse is the result of a checkout initiation.
type CheckoutResponse struct {
	PaymentID         string     `json:"payment_id"`
	ProviderPaymentID string     `json:"provider_payment_id"`
	CheckoutURL       string     `json:"checkout_url"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}
