package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/terangashop/server/internal/module/payment/provider"
)

// Payment tracks a checkout attempt against a provider.
type Payment struct {
	ID                uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID           uuid.UUID       `json:"order_id" gorm:"type:uuid;not null;index"`
	OrderNo           string          `json:"order_no" gorm:"index"`
	Provider          provider.Method `json:"provider" gorm:"not null"`
	ProviderPaymentID string          `json:"provider_payment_id" gorm:"index"`
	TransactionID     string          `json:"transaction_id,omitempty"`
	Amount            int64           `json:"amount"`
	Currency          string          `json:"currency" gorm:"default:XOF"`
	Status            provider.Status `json:"status" gorm:"not null;default:pending"`
	CheckoutURL       string          `json:"checkout_url,omitempty"`
	FailureCode       string          `json:"failure_code,omitempty"`
	FailureMessage    string          `json:"failure_message,omitempty"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName returns the database table name.
func (Payment) TableName() string {
	return "payments"
}

// WebhookEvent is a processed inbound webhook. The unique (provider,
// event_id) index is the second line of defense against duplicate delivery,
// after the conditional order transition.
type WebhookEvent struct {
	ID           uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Provider     provider.Method `json:"provider" gorm:"not null;uniqueIndex:idx_webhook_provider_event"`
	EventID      string          `json:"event_id" gorm:"not null;uniqueIndex:idx_webhook_provider_event"`
	EventName    string          `json:"event_name"`
	OrderNo      string          `json:"order_no" gorm:"index"`
	Payload      string          `json:"-" gorm:"type:text"`
	Processed    bool            `json:"processed"`
	ProcessError string          `json:"process_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TableName returns the database table name.
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
