package provider

import (
	"context"
	"errors"
	"time"
)

// Method identifies a payment network. The registry is keyed by this enum;
// nothing outside the provider implementations branches on it.
type Method string

const (
	MethodWave        Method = "wave"
	MethodOrangeMoney Method = "orange_money"
	MethodStripe      Method = "stripe"
)

// ParseMethod converts a string to a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodWave, MethodOrangeMoney, MethodStripe:
		return Method(s), nil
	default:
		return "", ErrUnknownMethod
	}
}

// Status is the internal payment status vocabulary. Every provider maps its
// own status strings onto this set; unknown strings map to StatusFailed so an
// unrecognized provider state can never leave an order looking open.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Provider package errors.
var (
	ErrUnknownMethod      = errors.New("unknown payment method")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMalformedWebhook   = errors.New("malformed webhook payload")
	ErrRefundNotSupported = errors.New("provider does not support API refunds")
)

// InitiateRequest carries everything a provider needs to create a hosted
// checkout session.
type InitiateRequest struct {
	OrderID       string
	OrderNo       string
	Amount        int64
	Currency      string
	Description   string
	CustomerEmail string
	CustomerPhone string
	SuccessURL    string
	CancelURL     string
	NotifyURL     string
	Metadata      map[string]string
}

// InitiateResponse is the result of a hosted checkout creation.
type InitiateResponse struct {
	ProviderPaymentID string
	CheckoutURL       string
	ExpiresAt         *time.Time
}

// WebhookPayload is the normalized form of an inbound provider webhook. It is
// transient: audit-logged raw, never persisted in this shape.
type WebhookPayload struct {
	Provider       Method
	EventID        string
	EventName      string
	OrderNo        string
	PaymentID      string
	TransactionID  string
	Status         Status
	ProviderStatus string
	Amount         int64
	Currency       string
	Metadata       map[string]string
}

// Provider defines the contract every payment network integration satisfies.
// Callers dispatch through this interface only.
type Provider interface {
	// Name returns the provider's method identifier.
	Name() Method

	// InitiatePayment creates a hosted checkout session and returns the
	// provider payment id plus the URL to send the customer to.
	InitiatePayment(ctx context.Context, req *InitiateRequest) (*InitiateResponse, error)

	// VerifyWebhook checks the signature of a raw webhook payload. A non-nil
	// error means the payload must not be processed.
	VerifyWebhook(payload []byte, signature string) error

	// ParseWebhook normalizes a verified webhook payload.
	ParseWebhook(payload []byte, headers map[string]string) (*WebhookPayload, error)

	// MapStatus translates a provider status string to the internal enum.
	// Unknown strings return StatusFailed.
	MapStatus(providerStatus string) Status

	// Refund refunds a payment through the provider API.
	Refund(ctx context.Context, providerPaymentID string, amount int64) error
}
