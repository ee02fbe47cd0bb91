package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/terangashop/server/internal/shared/config"
	"github.com/terangashop/server/internal/shared/metrics"
	"github.com/terangashop/server/internal/shared/retry"
)

// OrangeMoneyProvider implements the Provider interface for the Orange Money
// web payment API. Outbound calls authenticate with a client-credentials
// OAuth token cached until shortly before expiry.
type OrangeMoneyProvider struct {
	api           *apiClient
	baseURL       string
	clientID      string
	clientSecret  string
	merchantKey   string
	webhookSecret string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// orangeStatusMap translates Orange Money transaction statuses to the
// internal enum. Anything not listed fails closed to StatusFailed.
// SUCCESSFULL (sic) is the spelling the API actually sends.
var orangeStatusMap = map[string]Status{
	"INITIATED":   StatusProcessing,
	"PENDING":     StatusProcessing,
	"SUCCESS":     StatusPaid,
	"SUCCESSFULL": StatusPaid,
	"FAILED":      StatusFailed,
	"EXPIRED":     StatusCancelled,
	"CANCELLED":   StatusCancelled,
}

// NewOrangeMoneyProvider creates a new Orange Money provider.
func NewOrangeMoneyProvider(cfg *config.OrangeConfig, httpClient *http.Client, breaker *gobreaker.CircuitBreaker[[]byte], policy retry.Policy, m *metrics.Metrics, logger *zap.Logger) *OrangeMoneyProvider {
	return &OrangeMoneyProvider{
		api:           newAPIClient(httpClient, breaker, policy, m, MethodOrangeMoney, logger),
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		merchantKey:   cfg.MerchantKey,
		webhookSecret: cfg.WebhookSecret,
	}
}

// Name returns the provider's method identifier.
func (p *OrangeMoneyProvider) Name() Method {
	return MethodOrangeMoney
}

type orangeTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// getToken returns a cached OAuth token, fetching a new one when expired.
func (p *OrangeMoneyProvider) getToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.accessToken != "" && time.Now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(p.clientID + ":" + p.clientSecret))
	form := url.Values{"grant_type": {"client_credentials"}}

	respBody, err := p.api.postForm(ctx, "token",
		p.baseURL+"/oauth/v3/token",
		map[string]string{"Authorization": "Basic " + basic},
		form,
	)
	if err != nil {
		return "", fmt.Errorf("fetch oauth token: %w", err)
	}

	var resp orangeTokenResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode oauth token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("oauth token response missing access_token")
	}

	p.accessToken = resp.AccessToken
	// Renew a minute early to avoid using a token at the edge of expiry
	p.tokenExpiry = time.Now().Add(time.Duration(resp.ExpiresIn)*time.Second - time.Minute)
	return p.accessToken, nil
}

type orangeWebPaymentRequest struct {
	MerchantKey string `json:"merchant_key"`
	Currency    string `json:"currency"`
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	ReturnURL   string `json:"return_url"`
	CancelURL   string `json:"cancel_url"`
	NotifURL    string `json:"notif_url"`
	Lang        string `json:"lang"`
	Reference   string `json:"reference"`
}

type orangeWebPaymentResponse struct {
	PayToken   string `json:"pay_token"`
	PaymentURL string `json:"payment_url"`
	NotifToken string `json:"notif_token"`
}

// InitiatePayment creates an Orange Money web payment session.
func (p *OrangeMoneyProvider) InitiatePayment(ctx context.Context, req *InitiateRequest) (*InitiateResponse, error) {
	token, err := p.getToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(orangeWebPaymentRequest{
		MerchantKey: p.merchantKey,
		Currency:    req.Currency,
		OrderID:     req.OrderNo,
		Amount:      req.Amount,
		ReturnURL:   req.SuccessURL,
		CancelURL:   req.CancelURL,
		NotifURL:    req.NotifyURL,
		Lang:        "fr",
		Reference:   req.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal webpayment request: %w", err)
	}

	respBody, err := p.api.postJSON(ctx, "webpayment",
		p.baseURL+"/orange-money-webpay/v1/webpayment",
		map[string]string{"Authorization": "Bearer " + token},
		body,
	)
	if err != nil {
		return nil, err
	}

	var resp orangeWebPaymentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode webpayment response: %w", err)
	}

	return &InitiateResponse{
		ProviderPaymentID: resp.PayToken,
		CheckoutURL:       resp.PaymentURL,
	}, nil
}

// VerifyWebhook validates the X-Signature header: hex HMAC-SHA256 over the
// raw body keyed with the webhook secret.
func (p *OrangeMoneyProvider) VerifyWebhook(payload []byte, signature string) error {
	if signature == "" {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrInvalidSignature
	}
	return nil
}

type orangeWebhookEvent struct {
	Status     string `json:"status"`
	NotifToken string `json:"notif_token"`
	TxnID      string `json:"txnid"`
	OrderID    string `json:"order_id"`
	PayToken   string `json:"pay_token"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
}

// ParseWebhook normalizes an Orange Money webhook notification.
func (p *OrangeMoneyProvider) ParseWebhook(payload []byte, _ map[string]string) (*WebhookPayload, error) {
	var event orangeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if event.OrderID == "" || event.Status == "" {
		return nil, ErrMalformedWebhook
	}

	amount, _ := strconv.ParseInt(event.Amount, 10, 64)

	// Orange sends no distinct event id; the transaction id plus status is
	// the closest unique handle for deduplication
	eventID := event.TxnID + ":" + event.Status
	if event.TxnID == "" {
		eventID = event.NotifToken + ":" + event.Status
	}

	return &WebhookPayload{
		Provider:       MethodOrangeMoney,
		EventID:        eventID,
		EventName:      "payment." + strings.ToLower(event.Status),
		OrderNo:        event.OrderID,
		PaymentID:      event.PayToken,
		TransactionID:  event.TxnID,
		Status:         p.MapStatus(event.Status),
		ProviderStatus: event.Status,
		Amount:         amount,
		Currency:       event.Currency,
	}, nil
}

// MapStatus translates an Orange Money status string to the internal enum.
func (p *OrangeMoneyProvider) MapStatus(providerStatus string) Status {
	if s, ok := orangeStatusMap[strings.ToUpper(providerStatus)]; ok {
		return s
	}
	return StatusFailed
}

// Refund is not available through the Orange Money web payment API; refunds
// are handled out of band through the merchant back office.
func (p *OrangeMoneyProvider) Refund(_ context.Context, _ string, _ int64) error {
	return ErrRefundNotSupported
}
