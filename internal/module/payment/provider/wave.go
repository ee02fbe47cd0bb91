package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/terangashop/server/internal/shared/config"
	"github.com/terangashop/server/internal/shared/metrics"
	"github.com/terangashop/server/internal/shared/retry"
)

// WaveProvider implements the Provider interface for Wave mobile-money
// hosted checkout.
type WaveProvider struct {
	api           *apiClient
	baseURL       string
	apiKey        string
	webhookSecret string
}

// waveSignatureTolerance is the maximum accepted age of a signed webhook.
// A captured payload stops replaying once its timestamp falls outside the
// window, matching the Stripe SDK's default.
const waveSignatureTolerance = 5 * time.Minute

// waveStatusMap translates Wave checkout/payment statuses to the internal
// enum. Anything not listed fails closed to StatusFailed.
var waveStatusMap = map[string]Status{
	"open":       StatusProcessing,
	"processing": StatusProcessing,
	"complete":   StatusPaid,
	"succeeded":  StatusPaid,
	"cancelled":  StatusCancelled,
	"expired":    StatusCancelled,
	"refunded":   StatusRefunded,
	"failed":     StatusFailed,
}

// NewWaveProvider creates a new Wave provider.
func NewWaveProvider(cfg *config.WaveConfig, httpClient *http.Client, breaker *gobreaker.CircuitBreaker[[]byte], policy retry.Policy, m *metrics.Metrics, logger *zap.Logger) *WaveProvider {
	return &WaveProvider{
		api:           newAPIClient(httpClient, breaker, policy, m, MethodWave, logger),
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
	}
}

// Name returns the provider's method identifier.
func (p *WaveProvider) Name() Method {
	return MethodWave
}

type waveCheckoutRequest struct {
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	ClientReference string `json:"client_reference"`
	SuccessURL      string `json:"success_url"`
	ErrorURL        string `json:"error_url"`
}

type waveCheckoutResponse struct {
	ID            string `json:"id"`
	LaunchURL     string `json:"wave_launch_url"`
	WhenExpires   string `json:"when_expires"`
	PaymentStatus string `json:"payment_status"`
}

// InitiatePayment creates a Wave checkout session.
func (p *WaveProvider) InitiatePayment(ctx context.Context, req *InitiateRequest) (*InitiateResponse, error) {
	body, err := json.Marshal(waveCheckoutRequest{
		Amount:          strconv.FormatInt(req.Amount, 10),
		Currency:        req.Currency,
		ClientReference: req.OrderNo,
		SuccessURL:      req.SuccessURL,
		ErrorURL:        req.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal checkout request: %w", err)
	}

	respBody, err := p.api.postJSON(ctx, "create_checkout",
		p.baseURL+"/v1/checkout/sessions",
		map[string]string{"Authorization": "Bearer " + p.apiKey},
		body,
	)
	if err != nil {
		return nil, err
	}

	var resp waveCheckoutResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode checkout response: %w", err)
	}

	result := &InitiateResponse{
		ProviderPaymentID: resp.ID,
		CheckoutURL:       resp.LaunchURL,
	}
	if resp.WhenExpires != "" {
		if t, err := time.Parse(time.RFC3339, resp.WhenExpires); err == nil {
			result.ExpiresAt = &t
		}
	}
	return result, nil
}

// VerifyWebhook validates the Wave-Signature header:
// "t=<unix ts>,v1=<hex hmac>" where the hmac is HMAC-SHA256 over
// "<ts>.<body>" keyed with the webhook secret. Timestamps outside the
// tolerance window are rejected even when the hmac matches.
func (p *WaveProvider) VerifyWebhook(payload []byte, signature string) error {
	var timestamp string
	var candidates []string

	for _, part := range strings.Split(signature, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if age := time.Since(time.Unix(ts, 0)); age > waveSignatureTolerance || age < -waveSignatureTolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

type waveWebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		ID              string `json:"id"`
		ClientReference string `json:"client_reference"`
		PaymentStatus   string `json:"payment_status"`
		TransactionID   string `json:"transaction_id"`
		Amount          string `json:"amount"`
		Currency        string `json:"currency"`
	} `json:"data"`
}

// ParseWebhook normalizes a Wave webhook event.
func (p *WaveProvider) ParseWebhook(payload []byte, _ map[string]string) (*WebhookPayload, error) {
	var event waveWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if event.ID == "" || event.Data.ID == "" {
		return nil, ErrMalformedWebhook
	}

	amount, _ := strconv.ParseInt(event.Data.Amount, 10, 64)

	return &WebhookPayload{
		Provider:       MethodWave,
		EventID:        event.ID,
		EventName:      event.Type,
		OrderNo:        event.Data.ClientReference,
		PaymentID:      event.Data.ID,
		TransactionID:  event.Data.TransactionID,
		Status:         p.MapStatus(event.Data.PaymentStatus),
		ProviderStatus: event.Data.PaymentStatus,
		Amount:         amount,
		Currency:       event.Data.Currency,
	}, nil
}

// MapStatus translates a Wave status string to the internal enum.
func (p *WaveProvider) MapStatus(providerStatus string) Status {
	if s, ok := waveStatusMap[strings.ToLower(providerStatus)]; ok {
		return s
	}
	return StatusFailed
}

// Refund refunds a completed Wave checkout session.
func (p *WaveProvider) Refund(ctx context.Context, providerPaymentID string, _ int64) error {
	// Wave refunds the full session; partial amounts are not supported
	_, err := p.api.postJSON(ctx, "refund",
		fmt.Sprintf("%s/v1/checkout/sessions/%s/refund", p.baseURL, providerPaymentID),
		map[string]string{"Authorization": "Bearer " + p.apiKey},
		nil,
	)
	return err
}
