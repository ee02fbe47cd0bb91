package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terangashop/server/internal/shared/config"
)

func newTestStripe() *StripeProvider {
	return NewStripeProvider(&config.StripeConfig{
		Enabled:       true,
		APIKey:        "sk_test_123",
		WebhookSecret: "whsec_test_secret",
	})
}

// signStripe builds a Stripe-Signature header the way Stripe signs events:
// v1 = HMAC-SHA256 over "<timestamp>.<payload>".
func signStripe(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

const stripeSessionEvent = `{
	"id": "evt_test_1",
	"object": "event",
	"api_version": "2023-10-16",
	"type": "checkout.session.completed",
	"data": {
		"object": {
			"id": "cs_test_abc",
			"object": "checkout.session",
			"client_reference_id": "TS-20260829-abcd1234",
			"payment_status": "paid",
			"amount_total": 50000,
			"currency": "xof"
		}
	}
}`

func TestStripe_VerifyWebhook(t *testing.T) {
	p := newTestStripe()
	payload := []byte(stripeSessionEvent)
	ts := time.Now().Unix()

	sig := signStripe("whsec_test_secret", ts, payload)
	assert.NoError(t, p.VerifyWebhook(payload, sig))

	// One tampered byte
	tampered := make([]byte, len(payload))
	copy(tampered, payload)
	tampered[20] ^= 0x01
	assert.ErrorIs(t, p.VerifyWebhook(tampered, sig), ErrInvalidSignature)

	// Wrong secret
	assert.ErrorIs(t, p.VerifyWebhook(payload, signStripe("whsec_other", ts, payload)), ErrInvalidSignature)

	// Stale timestamp outside tolerance
	stale := signStripe("whsec_test_secret", time.Now().Add(-time.Hour).Unix(), payload)
	assert.ErrorIs(t, p.VerifyWebhook(payload, stale), ErrInvalidSignature)
}

func TestStripe_ParseWebhook(t *testing.T) {
	p := newTestStripe()

	wp, err := p.ParseWebhook([]byte(stripeSessionEvent), nil)
	require.NoError(t, err)
	assert.Equal(t, MethodStripe, wp.Provider)
	assert.Equal(t, "evt_test_1", wp.EventID)
	assert.Equal(t, "checkout.session.completed", wp.EventName)
	assert.Equal(t, "TS-20260829-abcd1234", wp.OrderNo)
	assert.Equal(t, "cs_test_abc", wp.PaymentID)
	assert.Equal(t, StatusPaid, wp.Status)
	assert.Equal(t, int64(50000), wp.Amount)
	assert.Equal(t, "XOF", wp.Currency)
}

func TestStripe_ParseWebhook_Expired(t *testing.T) {
	p := newTestStripe()
	payload := []byte(`{
		"id": "evt_test_2",
		"type": "checkout.session.expired",
		"data": {"object": {"id": "cs_test_exp", "object": "checkout.session", "client_reference_id": "TS-2", "payment_status": "unpaid"}}
	}`)

	wp, err := p.ParseWebhook(payload, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, wp.Status)
	assert.Equal(t, "expired", wp.ProviderStatus)
}

func TestStripe_ParseWebhook_Malformed(t *testing.T) {
	p := newTestStripe()

	_, err := p.ParseWebhook([]byte(`{broken`), nil)
	assert.ErrorIs(t, err, ErrMalformedWebhook)

	_, err = p.ParseWebhook([]byte(`{"type":"checkout.session.completed"}`), nil)
	assert.ErrorIs(t, err, ErrMalformedWebhook)
}

func TestStripe_MapStatus(t *testing.T) {
	p := newTestStripe()

	assert.Equal(t, StatusPaid, p.MapStatus("paid"))
	assert.Equal(t, StatusPaid, p.MapStatus("complete"))
	assert.Equal(t, StatusProcessing, p.MapStatus("open"))
	assert.Equal(t, StatusProcessing, p.MapStatus("unpaid"))
	assert.Equal(t, StatusCancelled, p.MapStatus("expired"))
	assert.Equal(t, StatusRefunded, p.MapStatus("refunded"))

	for _, in := range []string{"", "wat", "requires_capture_maybe"} {
		assert.Equal(t, StatusFailed, p.MapStatus(in), "unknown status %q", in)
	}
}

func TestParseMethod(t *testing.T) {
	for _, s := range []string{"wave", "orange_money", "stripe"} {
		m, err := ParseMethod(s)
		require.NoError(t, err)
		assert.Equal(t, Method(s), m)
	}

	_, err := ParseMethod("paypal")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}
