package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/refund"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/terangashop/server/internal/shared/config"
)

// StripeProvider implements the Provider interface for Stripe hosted
// checkout. Unlike the mobile-money providers it talks through the official
// SDK, which carries its own retry and idempotency handling.
type StripeProvider struct {
	webhookSecret string
}

// stripeStatusMap translates Stripe session/payment statuses to the internal
// enum. Anything not listed fails closed to StatusFailed.
var stripeStatusMap = map[string]Status{
	"open":       StatusProcessing,
	"unpaid":     StatusProcessing,
	"processing": StatusProcessing,
	"complete":   StatusPaid,
	"paid":       StatusPaid,
	"succeeded":  StatusPaid,
	"expired":    StatusCancelled,
	"canceled":   StatusCancelled,
	"refunded":   StatusRefunded,
	"failed":     StatusFailed,
}

// NewStripeProvider creates a new Stripe provider.
func NewStripeProvider(cfg *config.StripeConfig) *StripeProvider {
	stripe.Key = cfg.APIKey
	return &StripeProvider{
		webhookSecret: cfg.WebhookSecret,
	}
}

// Name returns the provider's method identifier.
func (p *StripeProvider) Name() Method {
	return MethodStripe
}

// InitiatePayment creates a Stripe Checkout Session.
func (p *StripeProvider) InitiatePayment(ctx context.Context, req *InitiateRequest) (*InitiateResponse, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderNo),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					// XOF is zero-decimal: the amount is whole francs
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
			},
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = req.Metadata
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	result := &InitiateResponse{
		ProviderPaymentID: sess.ID,
		CheckoutURL:       sess.URL,
	}
	if sess.ExpiresAt > 0 {
		t := time.Unix(sess.ExpiresAt, 0)
		result.ExpiresAt = &t
	}
	return result, nil
}

// VerifyWebhook validates the Stripe-Signature header against the endpoint
// secret.
func (p *StripeProvider) VerifyWebhook(payload []byte, signature string) error {
	if _, err := webhook.ConstructEvent(payload, signature, p.webhookSecret); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// ParseWebhook normalizes a Stripe event. Only checkout.session.* events
// carry an order reference; everything else is returned with an empty
// OrderNo for the caller to flag.
func (p *StripeProvider) ParseWebhook(payload []byte, _ map[string]string) (*WebhookPayload, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if event.ID == "" {
		return nil, ErrMalformedWebhook
	}

	result := &WebhookPayload{
		Provider:  MethodStripe,
		EventID:   event.ID,
		EventName: string(event.Type),
	}

	if strings.HasPrefix(string(event.Type), "checkout.session.") {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
		}
		providerStatus := string(sess.PaymentStatus)
		if event.Type == "checkout.session.expired" {
			providerStatus = "expired"
		}
		result.OrderNo = sess.ClientReferenceID
		result.PaymentID = sess.ID
		if sess.PaymentIntent != nil {
			result.TransactionID = sess.PaymentIntent.ID
		}
		result.ProviderStatus = providerStatus
		result.Status = p.MapStatus(providerStatus)
		result.Amount = sess.AmountTotal
		result.Currency = strings.ToUpper(string(sess.Currency))
		return result, nil
	}

	result.Status = StatusFailed
	return result, nil
}

// MapStatus translates a Stripe status string to the internal enum.
func (p *StripeProvider) MapStatus(providerStatus string) Status {
	if s, ok := stripeStatusMap[strings.ToLower(providerStatus)]; ok {
		return s
	}
	return StatusFailed
}

// Refund refunds the payment behind a checkout session.
func (p *StripeProvider) Refund(ctx context.Context, providerPaymentID string, amount int64) error {
	sess, err := session.Get(providerPaymentID, nil)
	if err != nil {
		return fmt.Errorf("get checkout session: %w", err)
	}
	if sess.PaymentIntent == nil {
		return fmt.Errorf("checkout session %s has no payment intent", providerPaymentID)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(sess.PaymentIntent.ID),
	}
	if amount > 0 {
		params.Amount = stripe.Int64(amount)
	}
	params.Context = ctx

	if _, err := refund.New(params); err != nil {
		return fmt.Errorf("create refund: %w", err)
	}
	return nil
}
